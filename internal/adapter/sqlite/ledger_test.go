package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/sqlite"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

func openLedger(t *testing.T) *sqlite.Ledger {
	t.Helper()
	l, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func run(stage string, finished time.Time, outcome domain.StageOutcome) domain.StageRun {
	return domain.StageRun{
		Model:      "gfs",
		Region:     "puertorico",
		Cycle:      "2024050106",
		Stage:      stage,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Outcome:    outcome,
		Detail:     stage + " detail",
	}
}

func TestLedger_RecordAndRecent(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	id, err := l.Record(ctx, run("download", base, domain.OutcomeOK))
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	_, err = l.Record(ctx, run("convert", base.Add(time.Minute), domain.OutcomeFailed))
	require.NoError(t, err)

	runs, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "convert", runs[0].Stage)
	assert.Equal(t, domain.OutcomeFailed, runs[0].Outcome)
	assert.Equal(t, base.Add(time.Minute), runs[0].FinishedAt)
	assert.Equal(t, base, runs[0].StartedAt)

	assert.Equal(t, id, runs[1].ID)
	assert.Equal(t, "download detail", runs[1].Detail)
	assert.Equal(t, "puertorico", runs[1].Region)
}

func TestLedger_RecentRespectsLimit(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := range 5 {
		_, err := l.Record(ctx, run("zonal", base.Add(time.Duration(i)*time.Second), domain.OutcomeOK))
		require.NoError(t, err)
	}

	runs, err := l.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, base.Add(4*time.Second), runs[0].FinishedAt)
}

func TestLedger_KeepsExplicitID(t *testing.T) {
	l := openLedger(t)
	r := run("publish", time.Now(), domain.OutcomeSkipped)
	r.ID = "fixed-id"

	id, err := l.Record(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	_, err = l.Record(context.Background(), r)
	assert.Error(t, err, "duplicate ids are rejected")
}

func TestLedger_ReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	ctx := context.Background()

	l, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	_, err = l.Record(ctx, run("download", time.Now(), domain.OutcomeOK))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.CheckReadiness(ctx))

	runs, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
