package export

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"log"
	"sync"
	"time"

	"github.com/versecast/backend/internal/config"
	"github.com/versecast/backend/internal/session"
)

// SnapshotFunc fetches the cached state for a session.
type SnapshotFunc func(id string) (session.Snapshot, bool)

// Exporter coordinates the image-export pipeline: debounced triggers, one
// render worker per session, compositing, and publishing. Each session's
// work funnels through a single-slot trigger channel drained by exactly one
// worker goroutine, which gives all three scheduling guarantees at once:
// bursts collapse into the minimum number of renders, the final state of a
// burst always renders, and no session ever has two renders in flight.
type Exporter struct {
	cfg      config.ExportConfig
	engine   Engine
	pub      *Publisher
	pins     *PinSet
	snapshot SnapshotFunc

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

type job struct {
	id      string
	trigger chan struct{} // capacity 1, replace-pending semantics
	stop    chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
}

func NewExporter(cfg config.ExportConfig, engine Engine, pub *Publisher, pins *PinSet, snapshot SnapshotFunc) *Exporter {
	return &Exporter{
		cfg:      cfg,
		engine:   engine,
		pub:      pub,
		pins:     pins,
		snapshot: snapshot,
		jobs:     make(map[string]*job),
	}
}

// Enabled reports whether the export subsystem is on at all.
func (e *Exporter) Enabled() bool { return e.cfg.Enabled }

// Pins exposes the runtime-mutable pinned-session set.
func (e *Exporter) Pins() *PinSet { return e.pins }

// Publisher exposes artifact paths for the HTTP surface.
func (e *Exporter) Publisher() *Publisher { return e.pub }

// Dimensions returns the configured output size.
func (e *Exporter) Dimensions() (w, h int) { return e.cfg.Width, e.cfg.Height }

// Trigger notes a state change for the session and (re)starts its debounce
// window. A no-op for sessions that aren't pinned. Never blocks; the actual
// render happens on the session's worker goroutine.
func (e *Exporter) Trigger(id string) {
	if !e.cfg.Enabled || !e.pins.Pinned(id) {
		return
	}
	j := e.ensureJob(id)
	if j == nil {
		return
	}

	j.timerMu.Lock()
	defer j.timerMu.Unlock()
	if j.timer != nil {
		j.timer.Reset(e.cfg.Debounce)
		return
	}
	j.timer = time.AfterFunc(e.cfg.Debounce, func() {
		select {
		case j.trigger <- struct{}{}:
		default:
			// A render is pending already; it will pick up this state.
		}
	})
}

// Refresh forces a render for the session right away, bypassing the
// debounce window but not the single-flight worker. Works even for
// sessions that aren't pinned, so an operator can poke a one-off export.
func (e *Exporter) Refresh(id string) {
	if !e.cfg.Enabled {
		return
	}
	// The session id is caller-supplied; a job for a session that does not
	// exist would park a worker goroutine forever.
	if _, ok := e.snapshot(id); !ok {
		return
	}
	j := e.ensureJob(id)
	if j == nil {
		return
	}
	select {
	case j.trigger <- struct{}{}:
	default:
	}
}

// Cancel tears down the session's export job: pending debounce timer,
// worker goroutine, and browser page. Safe to call when no job exists.
func (e *Exporter) Cancel(id string) {
	e.mu.Lock()
	j, ok := e.jobs[id]
	delete(e.jobs, id)
	e.mu.Unlock()

	if ok {
		j.timerMu.Lock()
		if j.timer != nil {
			j.timer.Stop()
			j.timer = nil
		}
		j.timerMu.Unlock()
		close(j.stop)
	}
	if e.engine != nil {
		e.engine.Release(id)
	}
}

// Close cancels every job and shuts the engine down.
func (e *Exporter) Close() {
	e.mu.Lock()
	e.closed = true
	jobs := e.jobs
	e.jobs = make(map[string]*job)
	e.mu.Unlock()

	for _, j := range jobs {
		j.timerMu.Lock()
		if j.timer != nil {
			j.timer.Stop()
		}
		j.timerMu.Unlock()
		close(j.stop)
	}
	if e.engine != nil {
		e.engine.Close()
	}
}

// jobActive reports whether the session's job is still registered.
func (e *Exporter) jobActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.jobs[id]
	return ok
}

func (e *Exporter) ensureJob(id string) *job {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if j, ok := e.jobs[id]; ok {
		return j
	}
	j := &job{
		id:      id,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	e.jobs[id] = j
	go e.worker(j)
	return j
}

// worker drains the session's trigger slot. Because a trigger arriving
// mid-render parks in the slot, the loop naturally re-renders once with the
// latest state after a burst.
func (e *Exporter) worker(j *job) {
	for {
		select {
		case <-j.stop:
			return
		case <-j.trigger:
			e.renderOnce(j.id)
		}
	}
}

func (e *Exporter) renderOnce(id string) {
	snap, ok := e.snapshot(id)
	if !ok {
		// Session torn down between trigger and render; reap the job so a
		// stale id cannot hold a worker forever.
		e.Cancel(id)
		return
	}

	ctx := context.Background()
	data, err := e.engine.Render(ctx, id, snap)
	if !e.jobActive(id) {
		// Cancelled mid-render. The cancel already released the page, but
		// the render may have recreated it in the meantime; release again
		// so an empty room never keeps a page alive.
		e.engine.Release(id)
		return
	}
	if errors.Is(err, ErrUnavailable) {
		log.Printf("export: engine unavailable for %s, publishing placeholder: %v", id, err)
		if perr := e.pub.PublishPlaceholder(ctx, id, e.cfg.Width, e.cfg.Height); perr != nil {
			log.Printf("export: placeholder publish for %s: %v", id, perr)
		}
		return
	}
	if err != nil {
		// Keep the previous artifact; the next state change retries.
		log.Printf("export: render %s: %v", id, err)
		return
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		log.Printf("export: decoding capture for %s: %v", id, err)
		return
	}

	straight := toNRGBA(img)
	premultiplied := Premultiply(straight)

	if err := e.pub.Publish(ctx, id, straight, premultiplied); err != nil {
		log.Printf("export: publish %s: %v", id, err)
	}
}
