package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/markerservo/pkg/actuator"
	"github.com/teslashibe/markerservo/pkg/pipeline"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	transitions := []pipeline.Transition{
		{RunID: "run-1", Seq: 1, Command: actuator.MoveToZero, MarkerIDs: []int{7, 12}, At: base},
		{RunID: "run-1", Seq: 2, Command: actuator.MoveToNinety, At: base.Add(3 * time.Second), Err: actuator.ErrWrite},
		{RunID: "run-1", Seq: 3, Command: actuator.MoveToZero, MarkerIDs: []int{7}, At: base.Add(6 * time.Second)},
	}
	for _, tr := range transitions {
		require.NoError(t, s.Record(ctx, tr))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// newest first
	assert.Equal(t, uint64(3), recs[0].Seq)
	assert.Equal(t, uint64(2), recs[1].Seq)
	assert.Equal(t, uint64(1), recs[2].Seq)

	first := recs[2]
	assert.Equal(t, "move_to_zero", first.Command)
	assert.Equal(t, 0, first.Angle)
	assert.Equal(t, "7,12", first.MarkerIDs)
	assert.Equal(t, []int{7, 12}, first.IDs())
	assert.True(t, first.Delivered)
	assert.Empty(t, first.Error)
	assert.True(t, first.At.Equal(base))
	assert.Len(t, first.ID, 36)

	failed := recs[1]
	assert.Equal(t, "move_to_ninety", failed.Command)
	assert.Equal(t, 90, failed.Angle)
	assert.False(t, failed.Delivered)
	assert.Contains(t, failed.Error, "write failed")
	assert.Nil(t, failed.IDs())
}

func TestStore_RecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Record(ctx, pipeline.Transition{
			RunID:   "run-2",
			Seq:     uint64(i),
			Command: actuator.MoveToZero,
			At:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	recs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(5), recs[0].Seq)

	recs, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 5, "non-positive limit falls back to the default")
}

func TestStore_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, pipeline.Transition{RunID: "r", Seq: 1, Command: actuator.MoveToNinety, At: base}))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, path, s.Path())
}

func TestCommandRecord_IDs(t *testing.T) {
	tests := []struct {
		csv  string
		want []int
	}{
		{"", nil},
		{"3", []int{3}},
		{"1,2,3", []int{1, 2, 3}},
		{"1, x ,4", []int{1, 4}},
	}
	for _, tc := range tests {
		got := CommandRecord{MarkerIDs: tc.csv}.IDs()
		if tc.want == nil {
			assert.Nil(t, got, tc.csv)
			continue
		}
		assert.Equal(t, tc.want, got, tc.csv)
	}
}
