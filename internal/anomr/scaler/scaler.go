// Package scaler standardizes feature rows to zero mean and unit variance
// using parameters fitted once on the training set.
package scaler

import (
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/vaibhaw-/anomr/internal/anomr/artifact"
)

// ErrMissingArtifact is returned (wrapped with the path) when no scaler has been saved.
var ErrMissingArtifact = artifact.ErrMissing

// ErrEmptyInput is returned when fitting on zero rows.
var ErrEmptyInput = errors.New("no rows to fit")

// stdEpsilon guards constant columns: anything smaller scales by 1.
const stdEpsilon = 1e-9

// Params are the fitted per-column statistics. Columns fixes the order every
// later row is reconciled to.
type Params struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

// Fit computes population mean and standard deviation per column and returns
// the scaled training rows.
func Fit(columns []string, rows [][]float64) (*Params, [][]float64, error) {
	if len(rows) == 0 {
		return nil, nil, ErrEmptyInput
	}
	p := &Params{
		Columns: append([]string(nil), columns...),
		Mean:    make([]float64, len(columns)),
		Std:     make([]float64, len(columns)),
	}
	col := make(stats.Float64Data, len(rows))
	for j := range columns {
		for i, row := range rows {
			if len(row) != len(columns) {
				return nil, nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
			}
			col[i] = row[j]
		}
		mean, err := stats.Mean(col)
		if err != nil {
			return nil, nil, fmt.Errorf("mean of %s: %w", columns[j], err)
		}
		std, err := stats.StandardDeviationPopulation(col)
		if err != nil {
			return nil, nil, fmt.Errorf("std of %s: %w", columns[j], err)
		}
		if std < stdEpsilon {
			std = 1.0
		}
		p.Mean[j] = mean
		p.Std[j] = std
	}

	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		scaled[i] = p.Transform(row)
	}
	return p, scaled, nil
}

// Transform scales a row already ordered as p.Columns.
func (p *Params) Transform(row []float64) []float64 {
	out := make([]float64, len(p.Columns))
	for j := range p.Columns {
		var x float64
		if j < len(row) {
			x = row[j]
		}
		out[j] = (x - p.Mean[j]) / p.Std[j]
	}
	return out
}

// Apply scales rows labelled by columns with the fitted parameters. Rows are
// reordered to p.Columns; columns p does not know are dropped and columns it
// expects but rows lack are injected as 0 before scaling. It never refits.
func (p *Params) Apply(columns []string, rows [][]float64) [][]float64 {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	out := make([][]float64, len(rows))
	aligned := make([]float64, len(p.Columns))
	for i, row := range rows {
		for j, c := range p.Columns {
			aligned[j] = 0
			if k, ok := pos[c]; ok && k < len(row) {
				aligned[j] = row[k]
			}
		}
		out[i] = p.Transform(aligned)
	}
	return out
}

// Save persists p as JSON at path.
func (p *Params) Save(path string) error {
	return artifact.Save(path, p)
}

// Load reads scaler parameters from path.
func Load(path string) (*Params, error) {
	var p Params
	if err := artifact.Load(path, &p); err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	if len(p.Mean) != len(p.Columns) || len(p.Std) != len(p.Columns) {
		return nil, fmt.Errorf("load scaler %s: %d columns but %d means and %d stds",
			path, len(p.Columns), len(p.Mean), len(p.Std))
	}
	return &p, nil
}
