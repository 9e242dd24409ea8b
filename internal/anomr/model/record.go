package model

import (
	"sort"
	"time"

	"github.com/vaibhaw-/anomr/internal/anomr/features"
)

// Record is the scored outcome for one bucket.
type Record struct {
	ID          string             `json:"id,omitempty"`
	BucketStart time.Time          `json:"bucket_start"`
	Score       float64            `json:"anomaly_score"`
	IsAnomaly   bool               `json:"is_anomaly"`
	Severity    Severity           `json:"severity"`
	Features    map[string]float64 `json:"features"`
	Source      string             `json:"source,omitempty"`
}

// Records scores already scaled rows and pairs each score with its bucket
// and raw, schema-reconciled feature values.
func (f *Forest) Records(bands Bands, vectors []features.Vector, scaled [][]float64) []Record {
	scores := f.Score(scaled)
	out := make([]Record, len(vectors))
	for i := range vectors {
		raw := vectors[i].Row(f.Columns)
		feats := make(map[string]float64, len(f.Columns))
		for j, c := range f.Columns {
			feats[c] = raw[j]
		}
		anomalous := Decide(scores[i])
		out[i] = Record{
			BucketStart: vectors[i].BucketStart,
			Score:       scores[i],
			IsAnomaly:   anomalous,
			Severity:    bands.Classify(scores[i], anomalous),
			Features:    feats,
		}
	}
	return out
}

// Anomalies returns the flagged records, most anomalous first.
func Anomalies(records []Record) []Record {
	var out []Record
	for _, r := range records {
		if r.IsAnomaly {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}
