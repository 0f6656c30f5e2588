// Package worker runs the rasterization engine on one dedicated goroutine.
//
// Callers never touch the engine. They submit commands, which coalesce
// latest-wins per kind, and poll the Mailbox for finished frames.
//
// Goroutine topology:
//   - 1 fixed: run loop (spawned by Start, stopped by Stop or ctx cancel)
//   - N external: submitters and the mailbox consumer
package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ivlev/animrender/internal/framecache"
	"github.com/ivlev/animrender/internal/sizing"
	"github.com/ivlev/animrender/internal/source"
)

var (
	// ErrStopped is returned when submitting to a stopping or stopped worker.
	ErrStopped = errors.New("worker: stopped")
	// ErrRaster wraps engine failures while drawing a frame.
	ErrRaster = errors.New("worker: raster failed")
)

// Phase is the worker lifecycle: Idle → Running → Draining → Stopped.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Options configures a Worker.
type Options struct {
	Opener source.Opener
	Cache  *framecache.Cache // nil disables frame caching
	Logger *slog.Logger

	QuantStep      int  // frame quantization step for cache keys
	FixAlphaBorder bool // only applied together with Unpremultiply
	Unpremultiply  bool
}

// RenderRequest asks for one frame at a size decided by the sizing policy.
// Sizing.Native is filled in by the worker from the loaded document.
type RenderRequest struct {
	Frame     float64
	Sizing    sizing.Input
	Cacheable bool
}

// Segment restricts rendering to the frame window [Begin, End].
type Segment struct {
	Begin, End float64
}

// DocumentInfo describes the outcome of the latest load command.
type DocumentInfo struct {
	Seq         uint64 // increments with every load attempt
	Path        string
	Anim        string
	TotalFrames float64
	Duration    float64
	NativeSize  image.Point
	Err         error // non-nil means there is no active document
}

type loadCmd struct {
	path string
	anim string
}

type segmentCmd struct {
	seg   Segment
	clear bool
}

// pending holds at most one command of each kind.
type pending struct {
	load    *loadCmd
	segment *segmentCmd
	render  *RenderRequest
}

func (p pending) empty() bool {
	return p.load == nil && p.segment == nil && p.render == nil
}

// Worker owns one engine document and at most one render target.
type Worker struct {
	opts    Options
	log     *slog.Logger
	mailbox *Mailbox

	mu       sync.Mutex // protects pending, stopping, started, unwatch
	cond     *sync.Cond // signals the run loop
	pending  pending
	stopping bool
	started  bool
	unwatch  func() bool // detaches the Start context

	phase   atomic.Int32
	done    chan struct{}
	info    atomic.Pointer[DocumentInfo]
	loadSeq atomic.Uint64
	stats   counters
}

// New creates an idle worker. Call Start to spawn its goroutine.
func New(opts Options) *Worker {
	if opts.Opener == nil {
		opts.Opener = source.Engines{}
	}
	if opts.QuantStep < 1 {
		opts.QuantStep = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	w := &Worker{
		opts:    opts,
		log:     log.With("component", "render-worker"),
		mailbox: &Mailbox{},
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Mailbox returns the worker's result slot.
func (w *Worker) Mailbox() *Mailbox { return w.mailbox }

// Phase returns the current lifecycle phase.
func (w *Worker) Phase() Phase { return Phase(w.phase.Load()) }

// Info returns the outcome of the latest load, or nil before any load ran.
func (w *Worker) Info() *DocumentInfo { return w.info.Load() }

// Start spawns the run loop. Cancelling ctx has the same effect as Stop,
// except that it does not wait for the loop to exit.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("worker already started")
	}
	if w.stopping {
		return ErrStopped
	}
	w.started = true
	w.phase.Store(int32(PhaseRunning))

	w.unwatch = context.AfterFunc(ctx, w.requestStop)
	go w.run()
	return nil
}

// Stop requests shutdown and waits for the run loop to release the engine.
// An in-flight render is allowed to finish. Idempotent.
func (w *Worker) Stop() {
	w.requestStop()

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if !started {
		w.phase.Store(int32(PhaseStopped))
		return
	}
	<-w.done
}

func (w *Worker) requestStop() {
	w.mu.Lock()
	w.stopping = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Load replaces the active document. anim is the identity used in cache
// keys; empty means the path itself.
func (w *Worker) Load(path, anim string) error {
	if anim == "" {
		anim = path
	}
	return w.submit(func(p *pending) bool {
		replaced := p.load != nil
		p.load = &loadCmd{path: path, anim: anim}
		return replaced
	})
}

// Render requests a frame. Only the newest request not yet started is kept.
func (w *Worker) Render(req RenderRequest) error {
	return w.submit(func(p *pending) bool {
		replaced := p.render != nil
		p.render = &req
		return replaced
	})
}

// SetSegment restricts rendering to a frame window.
func (w *Worker) SetSegment(seg Segment) error {
	return w.submit(func(p *pending) bool {
		replaced := p.segment != nil
		p.segment = &segmentCmd{seg: seg}
		return replaced
	})
}

// ClearSegment removes any frame window.
func (w *Worker) ClearSegment() error {
	return w.submit(func(p *pending) bool {
		replaced := p.segment != nil
		p.segment = &segmentCmd{clear: true}
		return replaced
	})
}

func (w *Worker) submit(apply func(*pending) bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopping {
		return ErrStopped
	}
	if apply(&w.pending) {
		w.stats.coalesced.Add(1)
	}
	w.cond.Signal()
	return nil
}

// run is the worker goroutine. It is the only code that touches the session.
func (w *Worker) run() {
	defer close(w.done)

	s := newSession(w)
	for {
		w.mu.Lock()
		for w.pending.empty() && !w.stopping {
			w.cond.Wait()
		}
		if w.stopping {
			unwatch := w.unwatch
			w.unwatch = nil
			w.mu.Unlock()
			if unwatch != nil {
				unwatch()
			}
			break
		}
		job := w.pending
		w.pending = pending{}
		w.mu.Unlock()

		s.execute(job)
	}

	w.phase.Store(int32(PhaseDraining))
	s.release()
	w.phase.Store(int32(PhaseStopped))
	w.log.Debug("worker stopped")
}
