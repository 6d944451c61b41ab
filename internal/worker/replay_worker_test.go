package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"domovik/internal/config"
	"domovik/internal/models"
	"domovik/internal/remote"
	"domovik/internal/store"
	"domovik/internal/syncerr"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTarget records replayed mutations and fails on demand.
type fakeTarget struct {
	mu       sync.Mutex
	err      error
	replayed []string
}

func (f *fakeTarget) Replay(ctx context.Context, m *models.PendingMutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.replayed = append(f.replayed, m.ID)
	return nil
}

func (f *fakeTarget) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replayed...)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	logger := zerolog.Nop()
	st := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, st.Open())
	t.Cleanup(func() { st.Close() })
	return st
}

func enqueue(t *testing.T, st *store.SQLiteStore, entityType string, n int) *models.PendingMutation {
	t.Helper()

	m := &models.PendingMutation{
		ID:         fmt.Sprintf("%s-%d", entityType, n),
		EntityType: entityType,
		Payload:    fmt.Sprintf(`{"n":%d}`, n),
		Status:     models.MutationPending,
		EnqueuedAt: time.Now().Add(time.Duration(n) * time.Millisecond),
	}
	require.NoError(t, st.InsertMutation(context.Background(), m))
	return m
}

func TestProcessEntityReplaysFIFOAndRemoves(t *testing.T) {
	st := newTestStore(t)
	target := &fakeTarget{}
	logger := zerolog.Nop()
	w := NewReplayWorker(st, target, nil, nil, Settings{}, &logger)

	for i := 0; i < 3; i++ {
		enqueue(t, st, models.EntityTask, i)
	}

	ctx := context.Background()
	processed := w.processEntity(ctx, models.EntityTask)
	assert.Equal(t, 3, processed)
	assert.Equal(t, []string{"task-0", "task-1", "task-2"}, target.order())

	summary, err := st.CountPendingByEntity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())

	_, ok, err := st.GetValue(ctx, models.KeyLastReplayAt)
	require.NoError(t, err)
	assert.True(t, ok, "replay timestamp recorded")
}

func TestProcessMutationRetrySchedulesBackoff(t *testing.T) {
	st := newTestStore(t)
	target := &fakeTarget{err: syncerr.New(syncerr.KindReplayFailure, "remote.Replay", errors.New("503"))}
	logger := zerolog.Nop()
	w := NewReplayWorker(st, target, nil, nil, Settings{Retry: RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}}, &logger)

	m := enqueue(t, st, models.EntityAsset, 1)
	ctx := context.Background()
	w.processMutation(ctx, m)

	// The mutation stays queued with a future retry window.
	pending, err := st.PendingMutations(ctx, models.EntityAsset, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "backoff window keeps it out of the due list")

	summary, err := st.CountPendingByEntity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Assets, "still pending, not dropped")
}

func TestProcessMutationExhaustsRetries(t *testing.T) {
	st := newTestStore(t)
	target := &fakeTarget{err: errors.New("boom")}
	logger := zerolog.Nop()
	w := NewReplayWorker(st, target, nil, nil, Settings{Retry: RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond}}, &logger)

	m := enqueue(t, st, models.EntityBooking, 1)
	m.RetryCount = 1 // one attempt already burned
	ctx := context.Background()
	w.processMutation(ctx, m)

	failed, err := st.FailedMutations(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, m.ID, failed[0].ID)
}

func TestProcessMutationPermanentErrorFailsImmediately(t *testing.T) {
	st := newTestStore(t)
	logger := zerolog.Nop()

	// A 422 from the backend is a permanent rejection: no retries left over.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "validation failed", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	target := remote.NewClient(srv.URL, "hh-1", "token", time.Second, &logger)
	w := NewReplayWorker(st, target, nil, nil, Settings{Retry: RetryPolicy{MaxRetries: 5}}, &logger)

	m := enqueue(t, st, models.EntityTask, 1)
	ctx := context.Background()
	w.processMutation(ctx, m)

	failed, err := st.FailedMutations(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, m.ID, failed[0].ID)
	require.NotNil(t, failed[0].LastError)
	assert.Contains(t, *failed[0].LastError, "422")
}

func TestStartConsumesJobQueueAndStops(t *testing.T) {
	st := newTestStore(t)
	target := &fakeTarget{}
	logger := zerolog.Nop()
	w := NewReplayWorker(st, target, nil, nil, Settings{PollInterval: 10 * time.Millisecond}, &logger)

	enqueue(t, st, models.EntityTask, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(target.order()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSettingsPlumbedIntoWorker(t *testing.T) {
	st := newTestStore(t)
	logger := zerolog.Nop()

	w := NewReplayWorker(st, &fakeTarget{}, nil, nil, Settings{
		Retry:        RetryPolicy{MaxRetries: 7},
		BatchSize:    3,
		PollInterval: 500 * time.Millisecond,
	}, &logger)

	assert.Equal(t, 3, w.batchSize)
	assert.Equal(t, 500*time.Millisecond, w.pollInterval)
	assert.Equal(t, 7, w.retryPolicy.MaxRetries)

	// Zero values get the documented defaults.
	w = NewReplayWorker(st, &fakeTarget{}, nil, nil, Settings{}, &logger)
	assert.Equal(t, models.DefaultBatchSize, w.batchSize)
	assert.Equal(t, 2*time.Second, w.pollInterval)
	assert.Equal(t, 5, w.retryPolicy.MaxRetries)
}

func TestSmallBatchStillDrainsQueue(t *testing.T) {
	st := newTestStore(t)
	target := &fakeTarget{}
	logger := zerolog.Nop()
	w := NewReplayWorker(st, target, nil, nil, Settings{BatchSize: 1}, &logger)

	for i := 0; i < 3; i++ {
		enqueue(t, st, models.EntityBooking, i)
	}

	processed := w.processEntity(context.Background(), models.EntityBooking)
	assert.Equal(t, 3, processed, "batch size limits reads, not the drain")
	assert.Len(t, target.order(), 3)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{
		MaxRetries:    3,
		InitialDelay:  config.Duration(time.Second),
		BackoffFactor: 3,
	})
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, time.Minute, p.MaxDelay, "omitted cap takes the default")
	assert.Equal(t, float64(3), p.BackoffFactor)

	p = PolicyFromConfig(config.RetryConfig{})
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, 2*time.Second, p.InitialDelay)
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 8*time.Second, p.NextDelay(4))
	assert.Equal(t, 10*time.Second, p.NextDelay(10), "clamped at MaxDelay")
	assert.Equal(t, time.Second, p.NextDelay(0), "attempt floor")
}
