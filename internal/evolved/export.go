package evolved

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

// Export formats
const (
	ExportFormatJSON = "json"
	ExportFormatXLSX = "xlsx"
)

// Sheet names of the xlsx export
const (
	sheetGenerations = "Generations"
	sheetBest        = "Best"
)

var generationColumns = []string{
	"generation", "best_fitness", "mean_fitness", "worst_fitness",
	"stddev_fitness", "failures", "evaluations", "elapsed_ms",
}

// RunExport is the JSON document produced for a run
type RunExport struct {
	Run       models.Run                 `json:"run"`
	Evolution config.Evolution           `json:"evolution"`
	Simulator config.Simulator           `json:"simulator"`
	History   []models.GenerationSummary `json:"history"`
	Best      *BestDesign                `json:"best,omitempty"`
}

// ExportJSON writes the run and its history as indented JSON
func ExportJSON(w io.Writer, rec *RunRecord) error {
	doc := RunExport{
		Run:       rec.Run,
		Evolution: rec.Input.Evolution,
		Simulator: rec.Input.Simulator,
		History:   rec.History,
		Best:      rec.Best,
	}
	if doc.History == nil {
		doc.History = []models.GenerationSummary{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode run export: %w", err)
	}
	return nil
}

// ExportXLSX writes a workbook with one row per generation and, when the run
// has a result, a sheet listing the best car's parameters.
func ExportXLSX(w io.Writer, rec *RunRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetGenerations); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for i, name := range generationColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetGenerations, cell, name); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for i, s := range rec.History {
		row := []interface{}{
			s.Generation, s.BestFitness, s.MeanFitness, s.WorstFitness,
			s.StdDevFitness, s.Failures, s.Evaluations, s.ElapsedMs,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetGenerations, cell, &row); err != nil {
			return fmt.Errorf("failed to write generation %d: %w", s.Generation, err)
		}
	}

	if rec.Best != nil {
		if _, err := f.NewSheet(sheetBest); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
		rows := [][]interface{}{
			{"parameter", "value"},
			{"fitness", rec.Best.Fitness},
			{"generation", rec.Best.Generation},
		}
		for i, v := range rec.Best.Genome {
			if i >= genome.Length {
				break
			}
			rows = append(rows, []interface{}{genome.FieldName(i), v})
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(sheetBest, cell, &row); err != nil {
				return fmt.Errorf("failed to write best design: %w", err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
