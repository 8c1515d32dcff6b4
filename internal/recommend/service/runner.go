package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/metrics"
)

// ConfigSource loads the run configuration; it is called once per run.
type ConfigSource func() (model.RunConfig, error)

// RunHandle identifies a started run.
type RunHandle struct {
	ID string `json:"id"`
}

const maxRetainedRuns = 32

// Runner: управление прогонами: не более одного активного прогона на каталог.
type Runner struct {
	proc   *Processor
	config ConfigSource
	logger zerolog.Logger

	mu     sync.Mutex
	active string
	runs   map[string]*run
	order  []string
}

type run struct {
	cancel   context.CancelFunc
	progress *Progress
	done     chan struct{}

	mu     sync.Mutex
	status model.RunStatus
}

// Report keeps the latest running stats for Status and forwards them to the
// subscribers. A snapshot older than the stored one is dropped.
func (rn *run) Report(stats model.RunStats) {
	rn.mu.Lock()
	if stats.Processed < rn.status.Stats.Processed {
		rn.mu.Unlock()
		return
	}
	rn.status.Stats = stats
	rn.mu.Unlock()
	rn.progress.Report(stats)
}

func NewRunner(proc *Processor, config ConfigSource, logger zerolog.Logger) *Runner {
	return &Runner{
		proc:   proc,
		config: config,
		logger: logger.With().Str("component", "runner").Logger(),
		runs:   make(map[string]*run),
	}
}

// StartRun validates the configuration and launches a full recompute in the
// background. The run outlives ctx; use Cancel to stop it.
func (r *Runner) StartRun(ctx context.Context) (RunHandle, error) {
	cfg, err := r.config()
	if err != nil {
		if !errors.Is(err, model.ErrConfigValidation) {
			err = fmt.Errorf("%w: %v", model.ErrConfigValidation, err)
		}
		return RunHandle{}, err
	}
	if err := cfg.Validate(); err != nil {
		return RunHandle{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != "" {
		return RunHandle{}, fmt.Errorf("%w: %s", model.ErrRunInProgress, r.active)
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rn := &run{
		cancel:   cancel,
		progress: NewProgress(),
		done:     make(chan struct{}),
		status: model.RunStatus{
			ID:        id,
			State:     model.RunRunning,
			Stats:     model.NewRunStats(0),
			StartedAt: time.Now().UTC(),
		},
	}
	r.active = id
	r.runs[id] = rn
	r.order = append(r.order, id)
	r.pruneLocked()
	metrics.RunActive.Set(1)

	r.logger.Info().Str("run_id", id).Msg("run started")
	go r.execute(runCtx, id, rn, cfg)
	return RunHandle{ID: id}, nil
}

func (r *Runner) execute(ctx context.Context, id string, rn *run, cfg model.RunConfig) {
	start := time.Now()
	stats, err := r.proc.Run(ctx, cfg, rn)
	rn.cancel()

	finished := time.Now().UTC()
	rn.mu.Lock()
	rn.status.Stats = stats
	rn.status.FinishedAt = &finished
	label := "completed"
	if err != nil {
		rn.status.State = model.RunFailed
		rn.status.Error = err.Error()
		label = "failed"
	} else {
		rn.status.State = model.RunCompleted
		if stats.Partial {
			label = "partial"
		}
	}
	rn.mu.Unlock()

	r.mu.Lock()
	if r.active == id {
		r.active = ""
	}
	r.mu.Unlock()

	metrics.RunActive.Set(0)
	metrics.RunsTotal.WithLabelValues(label).Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		r.logger.Error().Err(err).Str("run_id", id).Msg("run failed")
		rn.progress.Finish(model.ProgressError, err.Error())
	} else {
		msg := stats.Message()
		if stats.Partial {
			msg += " (cancelled, partial)"
		}
		r.logger.Info().Str("run_id", id).Bool("partial", stats.Partial).Msg("run completed")
		rn.progress.Finish(model.ProgressCompleted, msg)
	}
	close(rn.done)
}

// ClearAll deletes every recommendation without recomputing.
func (r *Runner) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != "" {
		return fmt.Errorf("%w: %s", model.ErrRunInProgress, r.active)
	}
	return r.proc.store.ClearRecommendations(ctx)
}

// Subscribe attaches a progress observer. The channel starts with the latest
// snapshot and is closed after the terminal event.
func (r *Runner) Subscribe(id string) (<-chan model.ProgressEvent, func(), error) {
	rn, err := r.get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := rn.progress.Subscribe()
	return ch, unsubscribe, nil
}

// Cancel requests cooperative cancellation; cancelling a finished run is a no-op.
func (r *Runner) Cancel(id string) error {
	rn, err := r.get(id)
	if err != nil {
		return err
	}
	rn.cancel()
	r.logger.Info().Str("run_id", id).Msg("run cancellation requested")
	return nil
}

func (r *Runner) Status(id string) (model.RunStatus, error) {
	rn, err := r.get(id)
	if err != nil {
		return model.RunStatus{}, err
	}
	rn.mu.Lock()
	st := rn.status
	st.Stats = rn.status.Stats.Clone()
	rn.mu.Unlock()
	st.Progress = rn.progress.Snapshot()
	return st, nil
}

// Done is closed once the run reaches a terminal state.
func (r *Runner) Done(id string) (<-chan struct{}, error) {
	rn, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return rn.done, nil
}

// Active returns the id of the running run, if any.
func (r *Runner) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != ""
}

// Shutdown cancels the active run and waits for it or for ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	id, ok := r.Active()
	if !ok {
		return nil
	}
	rn, err := r.get(id)
	if err != nil {
		return nil
	}
	rn.cancel()
	select {
	case <-rn.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) get(id string) (*run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrRunNotFound, id)
	}
	return rn, nil
}

// pruneLocked drops the oldest finished runs beyond maxRetainedRuns.
func (r *Runner) pruneLocked() {
	for len(r.order) > maxRetainedRuns {
		id := r.order[0]
		if id == r.active {
			return
		}
		r.order = r.order[1:]
		delete(r.runs, id)
	}
}
