package evolved

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/GoSim-25-26J-441/race-evolution/internal/simulator"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// CreateRunRequest is the body of POST /v1/runs. Omitted evolution and
// simulator fields keep the daemon defaults.
type CreateRunRequest struct {
	RunID          string           `json:"run_id"`
	Evolution      config.Evolution `json:"evolution"`
	Simulator      config.Simulator `json:"simulator"`
	CallbackURL    string           `json:"callback_url"`
	CallbackSecret string           `json:"callback_secret"`
	Start          bool             `json:"start"`
}

type HTTPServer struct {
	router   *gin.Engine
	store    *RunStore
	Executor *RunExecutor
	hub      *Hub
	defaults config.Config
	upgrader websocket.Upgrader
}

// NewHTTPServer builds the gin router. defaults supplies the parameters of
// runs created without them; hub may be nil to disable streaming.
func NewHTTPServer(store *RunStore, executor *RunExecutor, hub *Hub, defaults config.Config) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	s := &HTTPServer{
		router:   gin.New(),
		store:    store,
		Executor: executor,
		hub:      hub,
		defaults: defaults,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := s.router
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", s.handleHealthz)

	runs := r.Group("/v1/runs")
	runs.POST("", s.handleCreateRun)
	runs.GET("", s.handleListRuns)
	runs.GET("/:id", s.handleGetRun)
	runs.POST("/:id/start", s.handleStartRun)
	runs.POST("/:id/stop", s.handleStopRun)
	runs.GET("/:id/generations", s.handleGenerations)
	runs.GET("/:id/best", s.handleBest)
	runs.GET("/:id/trajectory", s.handleTrajectory)
	runs.GET("/:id/export", s.handleExport)
	runs.GET("/:id/stream", s.handleStream)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *HTTPServer) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleCreateRun(c *gin.Context) {
	req := CreateRunRequest{
		Evolution: s.defaults.Evolution,
		Simulator: s.defaults.Simulator,
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	input := RunInput{
		Evolution:      req.Evolution,
		Simulator:      req.Simulator,
		CallbackURL:    req.CallbackURL,
		CallbackSecret: req.CallbackSecret,
	}
	if err := input.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.Create(req.RunID, input)
	if err != nil {
		writeError(c, statusForError(err), err.Error())
		return
	}
	if req.Start {
		rec, err = s.Executor.Start(rec.Run.ID)
		if err != nil {
			writeError(c, statusForError(err), err.Error())
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"run": rec.Run})
}

func (s *HTTPServer) handleListRuns(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	status := models.RunStatus(c.Query("status"))
	switch status {
	case "", models.RunStatusPending, models.RunStatusRunning, models.RunStatusCompleted,
		models.RunStatusFailed, models.RunStatusCancelled:
	default:
		writeError(c, http.StatusBadRequest, "unknown status: "+string(status))
		return
	}

	recs := s.store.List(limit, status)
	runs := make([]models.Run, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, rec.Run)
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *HTTPServer) handleGetRun(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": rec.Run, "input": rec.Input})
}

func (s *HTTPServer) handleStartRun(c *gin.Context) {
	rec, err := s.Executor.Start(c.Param("id"))
	if err != nil {
		writeError(c, statusForError(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": rec.Run})
}

func (s *HTTPServer) handleStopRun(c *gin.Context) {
	rec, err := s.Executor.Stop(c.Param("id"))
	if err != nil {
		writeError(c, statusForError(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": rec.Run})
}

func (s *HTTPServer) handleGenerations(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	history := rec.History
	if history == nil {
		history = []models.GenerationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": rec.Run.ID, "generations": history})
}

func (s *HTTPServer) handleBest(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	if rec.Best == nil {
		writeError(c, http.StatusNotFound, "run has no result yet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": rec.Run.ID, "best": rec.Best})
}

func (s *HTTPServer) handleTrajectory(c *gin.Context) {
	states, err := s.Executor.Trajectory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, statusForError(err), err.Error())
		return
	}
	if states == nil {
		states = []simulator.State{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "states": states})
}

func (s *HTTPServer) handleExport(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	switch format := c.DefaultQuery("format", ExportFormatJSON); format {
	case ExportFormatJSON:
		if err := ExportJSON(&buf, rec); err != nil {
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+rec.Run.ID+`.json"`)
		c.Data(http.StatusOK, "application/json", buf.Bytes())
	case ExportFormatXLSX:
		if err := ExportXLSX(&buf, rec); err != nil {
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+rec.Run.ID+`.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		writeError(c, http.StatusBadRequest, "unsupported export format: "+format)
	}
}

// handleStream replays the run's history over a websocket and then follows
// live events until the run ends.
func (s *HTTPServer) handleStream(c *gin.Context) {
	if s.hub == nil {
		writeError(c, http.StatusNotImplemented, "streaming is disabled")
		return
	}
	rec, ok := s.lookup(c)
	if !ok {
		return
	}

	initial := make([]Event, 0, len(rec.History)+1)
	for i := range rec.History {
		summary := rec.History[i]
		initial = append(initial, Event{
			ID:         utils.GenerateEventID(),
			Type:       EventGeneration,
			RunID:      rec.Run.ID,
			Timestamp:  nowUTC(),
			Generation: &summary,
		})
	}
	run := rec.Run
	initial = append(initial, Event{
		ID:        utils.GenerateEventID(),
		Type:      EventStatus,
		RunID:     run.ID,
		Timestamp: nowUTC(),
		Run:       &run,
	})

	if err := s.hub.Serve(&s.upgrader, c.Writer, c.Request, rec.Run.ID, initial); err != nil {
		logger.Warn("websocket upgrade failed", "run_id", rec.Run.ID, "error", err)
	}
}

func (s *HTTPServer) lookup(c *gin.Context) (*RunRecord, bool) {
	runID := c.Param("id")
	rec, ok := s.store.Get(runID)
	if !ok {
		writeError(c, http.StatusNotFound, "run not found: "+runID)
		return nil, false
	}
	return rec, true
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// statusForError maps run service errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, config.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunNotFound), errors.Is(err, ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, ErrRunExists), errors.Is(err, ErrRunTerminal):
		return http.StatusConflict
	case errors.Is(err, simulator.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
