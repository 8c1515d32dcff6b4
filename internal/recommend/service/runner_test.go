package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlink-service/internal/catalog/model"
)

func staticConfig(cfg model.RunConfig) ConfigSource {
	return func() (model.RunConfig, error) { return cfg, nil }
}

func waitDone(t *testing.T, r *Runner, id string) {
	t.Helper()
	done, err := r.Done(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func drain(ch <-chan model.ProgressEvent) []model.ProgressEvent {
	var out []model.ProgressEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRunner_CompletesRun(t *testing.T) {
	store := newMemRecs()
	r := NewRunner(NewProcessor(mixedCatalog(), store, zerolog.Nop()), staticConfig(testConfig()), zerolog.Nop())

	h, err := r.StartRun(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, h.ID)
	waitDone(t, r, h.ID)

	st, err := r.Status(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, st.State)
	assert.Equal(t, 12, st.Stats.RecommendationsWritten)
	assert.NotNil(t, st.FinishedAt)
	assert.Equal(t, model.ProgressCompleted, st.Progress.Status)
	assert.Equal(t, 100, st.Progress.Percent)

	ch, unsubscribe, err := r.Subscribe(h.ID)
	require.NoError(t, err)
	defer unsubscribe()
	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, model.ProgressCompleted, evs[0].Status)

	_, active := r.Active()
	assert.False(t, active)
}

func TestRunner_EmptyCatalogCompletes(t *testing.T) {
	r := NewRunner(NewProcessor(newMemCatalog(), newMemRecs(), zerolog.Nop()), staticConfig(testConfig()), zerolog.Nop())

	h, err := r.StartRun(context.Background())
	require.NoError(t, err)
	waitDone(t, r, h.ID)

	st, err := r.Status(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, st.State)
	assert.Zero(t, st.Stats.Errors())
	assert.Zero(t, st.Stats.RecommendationsWritten)
}

func TestRunner_SingleActiveRun(t *testing.T) {
	store := newMemRecs()
	store.gate = make(chan struct{})
	r := NewRunner(NewProcessor(mixedCatalog(), store, zerolog.Nop()), staticConfig(testConfig()), zerolog.Nop())

	h, err := r.StartRun(context.Background())
	require.NoError(t, err)

	_, err = r.StartRun(context.Background())
	assert.ErrorIs(t, err, model.ErrRunInProgress)
	assert.ErrorIs(t, r.ClearAll(context.Background()), model.ErrRunInProgress)

	st, err := r.Status(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, st.State)

	close(store.gate)
	waitDone(t, r, h.ID)

	require.NoError(t, r.ClearAll(context.Background()))
	assert.Empty(t, store.snapshot())

	h2, err := r.StartRun(context.Background())
	require.NoError(t, err)
	waitDone(t, r, h2.ID)
}

func TestRunner_CancelGivesPartialCompletion(t *testing.T) {
	store := newMemRecs()
	store.gate = make(chan struct{})
	r := NewRunner(NewProcessor(mixedCatalog(), store, zerolog.Nop()), staticConfig(testConfig()), zerolog.Nop())

	h, err := r.StartRun(context.Background())
	require.NoError(t, err)
	ch, unsubscribe, err := r.Subscribe(h.ID)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, r.Cancel(h.ID))
	waitDone(t, r, h.ID)

	st, err := r.Status(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, st.State)
	assert.True(t, st.Stats.Partial)

	evs := drain(ch)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, model.ProgressCompleted, last.Status)
	assert.Contains(t, last.Message, "partial")
}

func TestRunner_StorageFailureFailsRun(t *testing.T) {
	store := newMemRecs()
	store.failOn = "1"
	r := NewRunner(NewProcessor(mixedCatalog(), store, zerolog.Nop()), staticConfig(testConfig()), zerolog.Nop())

	h, err := r.StartRun(context.Background())
	require.NoError(t, err)
	waitDone(t, r, h.ID)

	st, err := r.Status(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, st.State)
	assert.Contains(t, st.Error, "disk full")
	assert.Equal(t, model.ProgressError, st.Progress.Status)
}

func TestRunner_ConfigRejectedBeforeStart(t *testing.T) {
	bad := testConfig()
	bad.Policy = nil
	r := NewRunner(NewProcessor(mixedCatalog(), newMemRecs(), zerolog.Nop()), staticConfig(bad), zerolog.Nop())

	_, err := r.StartRun(context.Background())
	assert.ErrorIs(t, err, model.ErrConfigValidation)
	_, active := r.Active()
	assert.False(t, active)

	r = NewRunner(NewProcessor(mixedCatalog(), newMemRecs(), zerolog.Nop()),
		func() (model.RunConfig, error) { return model.RunConfig{}, errors.New("bad yaml") }, zerolog.Nop())
	_, err = r.StartRun(context.Background())
	assert.ErrorIs(t, err, model.ErrConfigValidation)
}

func TestRunner_UnknownRun(t *testing.T) {
	r := NewRunner(NewProcessor(newMemCatalog(), newMemRecs(), zerolog.Nop()), staticConfig(testConfig()), zerolog.Nop())

	_, err := r.Status("nope")
	assert.ErrorIs(t, err, model.ErrRunNotFound)
	assert.ErrorIs(t, r.Cancel("nope"), model.ErrRunNotFound)
	_, _, err = r.Subscribe("nope")
	assert.ErrorIs(t, err, model.ErrRunNotFound)
}

func TestRunner_ShutdownCancelsActiveRun(t *testing.T) {
	store := newMemRecs()
	store.gate = make(chan struct{})
	r := NewRunner(NewProcessor(mixedCatalog(), store, zerolog.Nop()), staticConfig(testConfig()), zerolog.Nop())

	h, err := r.StartRun(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	st, err := r.Status(h.ID)
	require.NoError(t, err)
	assert.True(t, st.State.Terminal())
}

func TestRunner_CancelDuringClearCompletesEmpty(t *testing.T) {
	store := newMemRecs()
	store.clearGate = make(chan struct{})
	r := NewRunner(NewProcessor(mixedCatalog(), store, zerolog.Nop()), staticConfig(testConfig()), zerolog.Nop())

	h, err := r.StartRun(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.Cancel(h.ID))
	waitDone(t, r, h.ID)

	st, err := r.Status(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, st.State)
	assert.Empty(t, st.Error)
	assert.True(t, st.Stats.Partial)
	assert.Zero(t, st.Stats.Processed)
	assert.Empty(t, store.snapshot())
}

func TestRun_ReportKeepsNewestSnapshot(t *testing.T) {
	rn := &run{progress: NewProgress(), status: model.RunStatus{Stats: model.NewRunStats(10)}}

	newer := model.NewRunStats(10)
	newer.Processed = 5
	older := model.NewRunStats(10)
	older.Processed = 3

	rn.Report(newer)
	rn.Report(older)

	rn.mu.Lock()
	got := rn.status.Stats.Processed
	rn.mu.Unlock()
	assert.Equal(t, 5, got)

	ch, unsubscribe := rn.progress.Subscribe()
	defer unsubscribe()
	assert.Equal(t, 50, (<-ch).Percent)
}
