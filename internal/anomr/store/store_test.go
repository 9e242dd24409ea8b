package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhaw-/anomr/internal/anomr/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "anomalies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutList_NewestFirst(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2025, 10, 4, 21, 0, 0, 0, time.FixedZone("", 7*3600))

	for i := 0; i < 5; i++ {
		id, err := s.Put(model.Record{
			BucketStart: base.Add(time.Duration(i) * 5 * time.Minute),
			Score:       -0.1 * float64(i),
			IsAnomaly:   true,
			Severity:    model.SeverityLow,
			Features:    map[string]float64{"count_fatal": float64(i)},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.True(t, base.Add(20*time.Minute).Equal(all[0].BucketStart))
	assert.Equal(t, 4.0, all[0].Features["count_fatal"])

	top, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestPut_KeepsGivenID(t *testing.T) {
	s := openTemp(t)
	id, err := s.Put(model.Record{ID: "fixed", BucketStart: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	// Same bucket, different IDs: both kept.
	_, err = s.Put(model.Record{BucketStart: time.Unix(0, 0)})
	require.NoError(t, err)
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestList_Empty(t *testing.T) {
	s := openTemp(t)
	got, err := s.List(10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
