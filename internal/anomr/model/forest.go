// Package model implements a seeded isolation forest whose decision boundary
// is fixed at fit time from the configured contamination rate.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/vaibhaw-/anomr/internal/anomr/artifact"
)

// ErrMissingArtifact is returned (wrapped with the path) when no model has been saved.
var ErrMissingArtifact = artifact.ErrMissing

// ErrTooFewRows is returned when fitting on fewer than two rows.
var ErrTooFewRows = errors.New("need at least two rows to fit")

const eulerGamma = 0.5772156649

// Options controls training.
type Options struct {
	NumTrees      int
	SampleSize    int
	Contamination float64
	Seed          int64
}

// node is one tree node. Leaves have Left == -1.
type node struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int     `json:"l"`
	Right   int     `json:"r"`
	Size    int     `json:"n"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// Forest is a trained isolation forest. It is immutable after Fit.
type Forest struct {
	Columns       []string `json:"columns"`
	NumTrees      int      `json:"num_trees"`
	SampleSize    int      `json:"sample_size"`
	Contamination float64  `json:"contamination"`
	Seed          int64    `json:"seed"`
	Offset        float64  `json:"offset"`
	Trees         []tree   `json:"trees"`
}

// Fit trains a forest on rows ordered as columns. Identical input and seed
// produce an identical forest.
func Fit(columns []string, rows [][]float64, opts Options) (*Forest, error) {
	if len(rows) < 2 {
		return nil, ErrTooFewRows
	}
	if opts.NumTrees <= 0 {
		return nil, fmt.Errorf("num trees must be positive, got %d", opts.NumTrees)
	}
	if opts.Contamination <= 0 || opts.Contamination > 0.5 {
		return nil, fmt.Errorf("contamination must be in (0, 0.5], got %v", opts.Contamination)
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
	}

	psi := opts.SampleSize
	if psi <= 0 || psi > len(rows) {
		psi = len(rows)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	f := &Forest{
		Columns:       append([]string(nil), columns...),
		NumTrees:      opts.NumTrees,
		SampleSize:    psi,
		Contamination: opts.Contamination,
		Seed:          opts.Seed,
		Trees:         make([]tree, 0, opts.NumTrees),
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	idx := make([]int, len(rows))
	for t := 0; t < opts.NumTrees; t++ {
		for i := range idx {
			idx[i] = i
		}
		// partial Fisher-Yates: first psi entries are a sample without replacement
		for i := 0; i < psi; i++ {
			j := i + rng.Intn(len(idx)-i)
			idx[i], idx[j] = idx[j], idx[i]
		}
		sample := make([][]float64, psi)
		for i := 0; i < psi; i++ {
			sample[i] = rows[idx[i]]
		}
		b := builder{rng: rng, maxDepth: maxDepth}
		b.build(sample, 0)
		f.Trees = append(f.Trees, tree{Nodes: b.nodes})
	}

	f.Offset = percentile(f.ScoreSamples(rows), 100*opts.Contamination)
	return f, nil
}

type builder struct {
	rng      *rand.Rand
	maxDepth int
	nodes    []node
}

func (b *builder) leaf(size int) int {
	b.nodes = append(b.nodes, node{Left: -1, Right: -1, Size: size})
	return len(b.nodes) - 1
}

func (b *builder) build(data [][]float64, depth int) int {
	if len(data) <= 1 || depth >= b.maxDepth {
		return b.leaf(len(data))
	}

	// choose uniformly among features that still vary in this partition
	var candidates []int
	for j := range data[0] {
		lo, hi := featureRange(data, j)
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return b.leaf(len(data))
	}
	feature := candidates[b.rng.Intn(len(candidates))]
	lo, hi := featureRange(data, feature)
	split := lo + b.rng.Float64()*(hi-lo)

	left := make([][]float64, 0, len(data))
	right := make([][]float64, 0, len(data))
	for _, x := range data {
		if x[feature] < split {
			left = append(left, x)
		} else {
			right = append(right, x)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return b.leaf(len(data))
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, node{Feature: feature, Split: split, Size: len(data)})
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func featureRange(data [][]float64, j int) (float64, float64) {
	lo, hi := data[0][j], data[0][j]
	for _, x := range data[1:] {
		if x[j] < lo {
			lo = x[j]
		}
		if x[j] > hi {
			hi = x[j]
		}
	}
	return lo, hi
}

// pathLength is the depth at which x lands plus the expected remaining depth
// of the leaf it lands in.
func (t *tree) pathLength(x []float64) float64 {
	i, depth := 0, 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] < n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	return 2*(math.Log(float64(n-1))+eulerGamma) - 2*float64(n-1)/float64(n)
}

// ScoreSamples returns -2^(-E[h(x)]/c(psi)) per row. Values lie in [-1, 0);
// lower is more anomalous.
func (f *Forest) ScoreSamples(rows [][]float64) []float64 {
	c := averagePathLength(f.SampleSize)
	out := make([]float64, len(rows))
	for i, x := range rows {
		var total float64
		for t := range f.Trees {
			total += f.Trees[t].pathLength(x)
		}
		mean := total / float64(len(f.Trees))
		out[i] = -math.Pow(2, -mean/c)
	}
	return out
}

// Score returns ScoreSamples shifted by the fitted offset: negative scores
// are anomalies, and more negative is more anomalous.
func (f *Forest) Score(rows [][]float64) []float64 {
	out := f.ScoreSamples(rows)
	for i := range out {
		out[i] -= f.Offset
	}
	return out
}

// Decide reports whether a score lies below the decision boundary.
func Decide(score float64) bool {
	return score < 0
}

// CheckColumns verifies the forest was trained on exactly columns, in order.
func (f *Forest) CheckColumns(columns []string) error {
	if len(columns) != len(f.Columns) {
		return fmt.Errorf("model expects %d columns, scaler provides %d", len(f.Columns), len(columns))
	}
	for i := range columns {
		if columns[i] != f.Columns[i] {
			return fmt.Errorf("column %d: model expects %q, scaler provides %q", i, f.Columns[i], columns[i])
		}
	}
	return nil
}

// Save persists the forest as JSON at path.
func (f *Forest) Save(path string) error {
	return artifact.Save(path, f)
}

// Load reads a forest from path.
func Load(path string) (*Forest, error) {
	var f Forest
	if err := artifact.Load(path, &f); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("load model %s: no trees", path)
	}
	return &f, nil
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	if len(s) == 1 {
		return s[0]
	}
	rank := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if hi >= len(s) {
		return s[len(s)-1]
	}
	return s[lo] + (rank-float64(lo))*(s[hi]-s[lo])
}
