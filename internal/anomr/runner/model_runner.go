package runner

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/features"
	"github.com/vaibhaw-/anomr/internal/anomr/investigate"
	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/metrics"
	"github.com/vaibhaw-/anomr/internal/anomr/model"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
	"github.com/vaibhaw-/anomr/internal/anomr/scaler"
	"github.com/vaibhaw-/anomr/internal/anomr/store"
)

// ErrNoEvents is returned when a training run has nothing to learn from.
var ErrNoEvents = errors.New("no events to train on")

// topBuckets is how many of the worst training buckets are logged.
const topBuckets = 5

// Bands converts configured severity cutoffs.
func Bands(cfg *config.Config) model.Bands {
	return model.Bands{Critical: cfg.Severity.Critical, High: cfg.Severity.High, Medium: cfg.Severity.Medium}
}

func aggregator(cfg *config.Config) features.Aggregator {
	return features.Aggregator{Width: cfg.Features.BucketWidth, FillGaps: cfg.Features.FillGaps}
}

// TrainResult holds the fitted artifacts and the training buckets scored by them.
type TrainResult struct {
	Schema  features.Schema
	Scaler  *scaler.Params
	Model   *model.Forest
	Records []model.Record
}

// Anomalies returns the flagged training buckets, most anomalous first.
func (r *TrainResult) Anomalies() []model.Record { return model.Anomalies(r.Records) }

// RunTrain fits the scaler and model on events, saves both artifacts and
// logs how many training buckets fall below the decision boundary.
func RunTrain(ctx context.Context, events []parsers.Event, cfg *config.Config) (*TrainResult, error) {
	log := logger.L()
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	start := time.Now()

	schema := features.SchemaFromEvents(events)
	vectors := aggregator(cfg).Aggregate(events)
	log.Infow("aggregated training buckets",
		"events", len(events),
		"buckets", len(vectors),
		"columns", len(schema),
		"bucket_width", cfg.Features.BucketWidth)

	sc, scaled, err := scaler.Fit(schema, features.Matrix(schema, vectors))
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	m, err := model.Fit(schema, scaled, model.Options{
		NumTrees:      cfg.Model.NumTrees,
		SampleSize:    cfg.Model.SampleSize,
		Contamination: cfg.Model.Contamination,
		Seed:          cfg.Model.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := sc.Save(cfg.Artifacts.ScalerPath); err != nil {
		return nil, fmt.Errorf("save scaler: %w", err)
	}
	if err := m.Save(cfg.Artifacts.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	log.Infow("saved artifacts",
		"scaler", cfg.Artifacts.ScalerPath,
		"model", cfg.Artifacts.ModelPath)

	res := &TrainResult{
		Schema:  schema,
		Scaler:  sc,
		Model:   m,
		Records: m.Records(Bands(cfg), vectors, scaled),
	}
	logTrainingSummary(res, cfg.Model.Contamination)

	recordRun(cfg, RunSummary{
		Stage:        "train",
		Input:        cfg.Input.FilePath,
		Output:       cfg.Artifacts.ModelPath,
		EventCount:   len(events),
		BucketCount:  len(vectors),
		AnomalyCount: len(res.Anomalies()),
	})
	log.Infow("completed train run", "duration", time.Since(start))
	return res, nil
}

func logTrainingSummary(res *TrainResult, contamination float64) {
	log := logger.L()
	scores := make(stats.Float64Data, len(res.Records))
	for i, r := range res.Records {
		scores[i] = r.Score
	}
	median, _ := scores.Median()
	minScore, _ := scores.Min()

	flagged := res.Anomalies()
	log.Infow("training summary",
		"buckets", len(res.Records),
		"anomalies", len(flagged),
		"expected", contamination*float64(len(res.Records)),
		"median_score", median,
		"min_score", minScore,
		"offset", res.Model.Offset)
	for i, r := range flagged {
		if i == topBuckets {
			break
		}
		log.Infow("anomalous training bucket",
			"rank", i+1,
			"bucket_start", r.BucketStart.Format(parsers.TimestampLayout),
			"score", r.Score,
			"severity", r.Severity)
	}
}

// LoadArtifacts loads the scaler and model and checks they agree on columns.
func LoadArtifacts(cfg *config.Config) (*scaler.Params, *model.Forest, error) {
	sc, err := scaler.Load(cfg.Artifacts.ScalerPath)
	if err != nil {
		return nil, nil, err
	}
	m, err := model.Load(cfg.Artifacts.ModelPath)
	if err != nil {
		return nil, nil, err
	}
	if err := m.CheckColumns(sc.Columns); err != nil {
		return nil, nil, fmt.Errorf("scaler and model disagree: %w", err)
	}
	return sc, m, nil
}

// RunScore scores every bucket of events against trained artifacts. Columns
// are reconciled to the training schema before scaling. When st is non-nil
// flagged buckets are persisted to it.
func RunScore(ctx context.Context, events []parsers.Event, sc *scaler.Params, m *model.Forest, st *store.Store, cfg *config.Config) ([]model.Record, error) {
	log := logger.L()
	vectors := aggregator(cfg).Aggregate(events)
	if len(vectors) == 0 {
		log.Infow("no buckets to score")
		return nil, nil
	}
	cols := sc.Columns
	scaled := sc.Apply(cols, features.Matrix(cols, vectors))
	records := m.Records(Bands(cfg), vectors, scaled)

	flagged := 0
	for i := range records {
		records[i].Source = batchMode
		if !records[i].IsAnomaly {
			continue
		}
		flagged++
		metrics.Anomalies.WithLabelValues(batchMode, string(records[i].Severity)).Inc()
		if st == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := st.Put(records[i])
		if err != nil {
			return nil, fmt.Errorf("store anomaly: %w", err)
		}
		records[i].ID = id
	}
	log.Infow("scored buckets", "buckets", len(records), "anomalies", flagged)

	recordRun(cfg, RunSummary{
		Stage:        "score",
		Input:        cfg.Input.FilePath,
		EventCount:   len(events),
		BucketCount:  len(records),
		AnomalyCount: flagged,
	})
	return records, nil
}

// RunInvestigate joins flagged records back to the critical events that fell
// inside them.
func RunInvestigate(records []model.Record, events []parsers.Event, cfg *config.Config) ([]investigate.Finding, []investigate.SessionCount) {
	inv := investigate.New(cfg.Features.BucketWidth, cfg.Investigate.CriticalTypes)
	findings := inv.Investigate(records, events)
	top := investigate.TopSessions(findings, cfg.Investigate.TopSessions)

	logger.L().Infow("investigated anomalies",
		"anomalies", len(model.Anomalies(records)),
		"findings", len(findings))
	for _, s := range top {
		logger.L().Infow("top session", "pid", s.PID, "user", s.User.String(), "count", s.Count)
	}
	recordRun(cfg, RunSummary{
		Stage:        "investigate",
		Input:        cfg.Input.FilePath,
		EventCount:   len(events),
		AnomalyCount: len(model.Anomalies(records)),
		FindingCount: len(findings),
	})
	return findings, top
}

// WriteAnomalyCSV writes bucket_start, anomaly_score, is_anomaly and severity
// followed by every feature column. With onlyAnomalies set, unflagged
// buckets are left out and the rest are ordered worst first.
func WriteAnomalyCSV(w io.Writer, columns []string, records []model.Record, onlyAnomalies bool) error {
	if onlyAnomalies {
		records = model.Anomalies(records)
	} else {
		records = append([]model.Record(nil), records...)
		sort.SliceStable(records, func(i, j int) bool { return records[i].BucketStart.Before(records[j].BucketStart) })
	}

	cw := csv.NewWriter(w)
	header := append([]string{"bucket_start", "anomaly_score", "is_anomaly", "severity"}, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.BucketStart.Format(parsers.TimestampLayout),
			strconv.FormatFloat(r.Score, 'f', 6, 64),
			strconv.FormatBool(r.IsAnomaly),
			string(r.Severity),
		}
		for _, c := range columns {
			row = append(row, strconv.FormatFloat(r.Features[c], 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
