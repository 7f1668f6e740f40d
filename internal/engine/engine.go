// Package engine owns the download queue: admission, strictly sequential
// dispatch, cancellation and the snapshot contract towards the presentation
// sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/albadl/albadl/internal/app"
	"github.com/albadl/albadl/internal/logging"
)

// Pipeline runs one admitted job to completion. Implementations emit only
// non-terminal snapshots; the engine derives the terminal one from the return
// values.
type Pipeline interface {
	Run(ctx context.Context, job app.Job, h *app.Handle, emit app.EmitFunc) (app.Result, error)
}

type activeJob struct {
	job    app.Job
	handle *app.Handle
}

// Engine serializes downloads: one job transfers at a time, the rest wait in
// submission order.
type Engine struct {
	ctx       context.Context
	store     app.Store
	pipelines map[app.Source]Pipeline

	mu      sync.Mutex
	pending []app.Job
	active  *activeJob

	// emitMu orders every snapshot leaving the engine. The terminal map and
	// the progress clamp live under it so a terminal snapshot is provably
	// the last one published for its id.
	emitMu       sync.Mutex
	terminal     map[string]app.State
	lastProgress map[string]int
	sink         app.EmitFunc
}

// New creates an idle engine. ctx carries the logger and outlives every job;
// store supplies the default download directory and may be nil.
func New(ctx context.Context, store app.Store, sink app.EmitFunc) *Engine {
	return &Engine{
		ctx:          ctx,
		store:        store,
		pipelines:    make(map[app.Source]Pipeline),
		terminal:     make(map[string]app.State),
		lastProgress: make(map[string]int),
		sink:         sink,
	}
}

// Register installs the pipeline for a source. Not safe to call once jobs are
// being submitted.
func (e *Engine) Register(source app.Source, p Pipeline) {
	e.pipelines[source] = p
}

// Submit admits a request, emits its queued snapshot and dispatches it as
// soon as the engine is idle. Admission failures are returned synchronously
// and leave no trace in the snapshot stream.
func (e *Engine) Submit(req app.Request) (string, error) {
	if req.URL == "" {
		return "", errors.New("no URL was given")
	}
	dir := req.Directory
	if dir == "" && e.store != nil {
		dir = e.store.DownloadDir()
	}
	if dir == "" {
		return "", errors.New("no download directory is configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	job := app.Job{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Directory: dir,
		Format:    app.ParseFormat(string(req.Format)),
		Playlist:  req.Playlist,
		Quality:   app.ParseQuality(string(req.Quality)),
	}
	logging.FromContextS(e.ctx).Infof("Queued job %s for %q", job.ID, job.URL)

	e.publish(app.Snapshot{
		ID:     job.ID,
		State:  app.StateQueued,
		URL:    job.URL,
		Format: job.Format,
	})

	e.mu.Lock()
	e.pending = append(e.pending, job)
	e.dispatchLocked()
	e.mu.Unlock()

	return job.ID, nil
}

// Cancel stops the job with the given id. A pending job is dropped and gets
// its cancelled snapshot immediately; the active job is torn down and
// classified by its own completion path. Unknown and already finished ids
// report ErrJobNotFound.
func (e *Engine) Cancel(id string) error {
	e.emitMu.Lock()
	_, done := e.terminal[id]
	e.emitMu.Unlock()
	if done {
		return app.ErrJobNotFound
	}

	e.mu.Lock()
	if e.active != nil && e.active.job.ID == id {
		h := e.active.handle
		e.mu.Unlock()
		h.Cancel()
		return nil
	}
	for i, j := range e.pending {
		if j.ID == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			e.mu.Unlock()
			e.publish(app.Snapshot{
				ID:     id,
				State:  app.StateCancelled,
				URL:    j.URL,
				Format: j.Format,
			})
			return nil
		}
	}
	e.mu.Unlock()
	return app.ErrJobNotFound
}

// CancelAll cancels every pending job and then the active one.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	pending := append([]app.Job(nil), e.pending...)
	var h *app.Handle
	if e.active != nil {
		h = e.active.handle
	}
	e.mu.Unlock()

	for _, j := range pending {
		_ = e.Cancel(j.ID)
	}
	if h != nil {
		h.Cancel()
	}
}

// dispatchLocked starts the next pending job when nothing is running. Callers
// hold e.mu.
func (e *Engine) dispatchLocked() {
	if e.active != nil || len(e.pending) == 0 {
		return
	}
	job := e.pending[0]
	e.pending = e.pending[1:]

	ctx, cancel := context.WithCancel(e.ctx)
	h := app.NewHandle(cancel)
	e.active = &activeJob{job: job, handle: h}
	go e.run(ctx, cancel, job, h)
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, job app.Job, h *app.Handle) {
	defer cancel()
	log := logging.FromContextS(ctx)

	source, err := Classify(job.URL)
	if err != nil {
		e.finish(ctx, job, h, app.Result{}, err)
		return
	}
	p := e.pipelines[source]
	if p == nil {
		e.finish(ctx, job, h, app.Result{}, fmt.Errorf("no pipeline registered for %s downloads", source))
		return
	}

	log.Infof("Starting job %s (%s)", job.ID, source)
	res, err := p.Run(ctx, job, h, e.emitFor(job))
	e.finish(ctx, job, h, res, err)
}

// finish derives the single terminal snapshot of a job, publishes it and
// hands the slot to the next pending job.
func (e *Engine) finish(ctx context.Context, job app.Job, h *app.Handle, res app.Result, err error) {
	log := logging.FromContextS(ctx)

	var term app.Snapshot
	switch {
	case err == nil:
		log.Infof("Job %s completed: %q (%d bytes)", job.ID, res.FileName, res.Size)
		term = app.Snapshot{
			ID:            job.ID,
			State:         app.StateCompleted,
			Progress:      app.Percent(100),
			ReceivedBytes: res.Size,
			TotalBytes:    res.Size,
			FileName:      res.FileName,
			FilePath:      res.FilePath,
			Format:        job.Format,
		}.WithPreview(res.Preview)
	case h.Cancelled() || errors.Is(err, context.Canceled):
		log.Infof("Job %s cancelled", job.ID)
		term = app.Snapshot{
			ID:     job.ID,
			State:  app.StateCancelled,
			URL:    job.URL,
			Format: job.Format,
		}
	default:
		log.Errorf("Job %s failed: %v", job.ID, err)
		term = app.Snapshot{
			ID:      job.ID,
			State:   app.StateError,
			Message: err.Error(),
			URL:     job.URL,
			Format:  job.Format,
		}
	}
	e.publish(term)

	e.mu.Lock()
	e.active = nil
	e.dispatchLocked()
	e.mu.Unlock()
}

// emitFor decorates pipeline snapshots with the job identity before they hit
// the shared publish path.
func (e *Engine) emitFor(job app.Job) app.EmitFunc {
	return func(s app.Snapshot) {
		s.ID = job.ID
		if s.Format == "" {
			s.Format = job.Format
		}
		if s.URL == "" {
			s.URL = job.URL
		}
		e.publish(s)
	}
}

// publish is the only way a snapshot reaches the sink. It enforces the two
// stream invariants: nothing follows a terminal snapshot, and the progress
// percentage never moves backwards.
func (e *Engine) publish(s app.Snapshot) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	if _, done := e.terminal[s.ID]; done {
		return
	}
	if s.Progress != nil {
		if last, ok := e.lastProgress[s.ID]; ok && *s.Progress < last {
			s.Progress = app.Percent(last)
		} else {
			e.lastProgress[s.ID] = *s.Progress
		}
	}
	if s.State.IsTerminal() {
		e.terminal[s.ID] = s.State
		delete(e.lastProgress, s.ID)
	}
	if e.sink != nil {
		e.sink(s)
	}
}
