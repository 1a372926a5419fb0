package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID generates a run ID with a timestamp prefix, e.g. run-20260101-120000-<32 hex chars>
func GenerateRunID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("run-%s-%s", timestamp, strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// GenerateEventID generates a unique ID for a published event
func GenerateEventID() string {
	return uuid.New().String()
}
