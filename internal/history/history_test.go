package history

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/riaworks/aios-core-sub000/internal/diagnostics"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", DefaultFile))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(id string, ts time.Time, hook float64) diagnostics.Snapshot {
	return diagnostics.Snapshot{
		ID:                 id,
		Timestamp:          ts,
		ActivationPercent:  100,
		ActivationGrade:    "A",
		HookPercent:        hook,
		HookGrade:          "B",
		ConsistencyPassed:  4,
		ConsistencyTotal:   5,
		GapCount:           2,
		PipelineDurationMs: 12.5,
	}
}

func TestLatest_Empty(t *testing.T) {
	s := openTest(t)
	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecordAndRecent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	first := snapshot("run-1", base, 60)
	second := snapshot("run-2", base.Add(time.Minute), 75)
	require.NoError(t, s.Record(ctx, first))
	require.NoError(t, s.Record(ctx, second))

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(second, *latest); diff != "" {
		t.Errorf("Latest() mismatch (-want +got):\n%s", diff)
	}

	runs, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID)
	require.Equal(t, "run-1", runs[1].ID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRecord_DuplicateID(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	snap := snapshot("dup", time.Now(), 50)
	require.NoError(t, s.Record(ctx, snap))
	require.Error(t, s.Record(ctx, snap))
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), snapshot("kept", time.Now(), 80)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	latest, err := s.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "kept", latest.ID)
}

func TestOpen_DriverError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }

	_, err := Open(filepath.Join(t.TempDir(), DefaultFile))
	require.ErrorContains(t, err, "boom")
}
