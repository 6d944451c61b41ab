package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"domovik/internal/models"
	"domovik/internal/queue"
	"domovik/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportFailed(t *testing.T) {
	logger := zerolog.Nop()
	st := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, st.Open())
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	m := &models.PendingMutation{
		ID:         "m-1",
		EntityType: models.EntityTask,
		Payload:    `{"title":"fix fence"}`,
		Status:     models.MutationPending,
		EnqueuedAt: time.Now(),
	}
	require.NoError(t, st.InsertMutation(ctx, m))
	require.NoError(t, st.UpdateMutationStatus(ctx, m.ID, models.MutationFailed, "backend returned 422", nil))

	q := queue.NewManager(st, &logger)
	exportDir := t.TempDir()
	exporter := NewExporter(q, exportDir, &logger)

	path, err := exporter.ExportFailed(ctx)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sync Failures")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one failure")
	assert.Equal(t, "m-1", rows[1][0])
	assert.Equal(t, models.EntityTask, rows[1][1])
	assert.Contains(t, rows[1][4], "422")
}

func TestExportFailedEmptyQueue(t *testing.T) {
	logger := zerolog.Nop()
	st := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, st.Open())
	t.Cleanup(func() { st.Close() })

	q := queue.NewManager(st, &logger)
	exporter := NewExporter(q, t.TempDir(), &logger)

	path, err := exporter.ExportFailed(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sync Failures")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}
