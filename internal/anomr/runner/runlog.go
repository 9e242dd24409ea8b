package runner

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/logger"
)

// RunSummary is one JSON line appended to the run log per batch run.
type RunSummary struct {
	RunID         string `json:"run_id"`
	Timestamp     string `json:"timestamp"`
	Stage         string `json:"stage"`
	Input         string `json:"input,omitempty"`
	Output        string `json:"output,omitempty"`
	RejectFile    string `json:"reject_file,omitempty"`
	RawCount      int    `json:"raw_count,omitempty"`
	ParsedCount   int    `json:"parsed_count,omitempty"`
	RejectedCount int    `json:"rejected_count,omitempty"`
	EventCount    int    `json:"event_count,omitempty"`
	BucketCount   int    `json:"bucket_count,omitempty"`
	AnomalyCount  int    `json:"anomaly_count,omitempty"`
	FindingCount  int    `json:"finding_count,omitempty"`
}

func appendRunLog(path string, summary RunSummary) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	return enc.Encode(summary)
}

// recordRun stamps and appends summary when a run log is configured.
func recordRun(cfg *config.Config, summary RunSummary) {
	if cfg == nil || cfg.Logging.RunLog == "" {
		return
	}
	summary.RunID = uuid.NewString()
	summary.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	if err := appendRunLog(cfg.Logging.RunLog, summary); err != nil {
		logger.L().Errorw("failed to write run log",
			"path", cfg.Logging.RunLog,
			"err", err.Error())
		return
	}
	logger.L().Debugw("wrote run summary", "path", cfg.Logging.RunLog, "stage", summary.Stage)
}
