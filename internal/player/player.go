// Package player drives one animation: it advances time, decides what to
// render and uploads finished frames from the worker to a display surface.
//
// A Player is not safe for concurrent use. All methods are meant to be
// called from the goroutine that calls Tick.
package player

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/ivlev/animrender/internal/config"
	"github.com/ivlev/animrender/internal/display"
	"github.com/ivlev/animrender/internal/framecache"
	"github.com/ivlev/animrender/internal/sizing"
	"github.com/ivlev/animrender/internal/source"
	"github.com/ivlev/animrender/internal/statemachine"
	"github.com/ivlev/animrender/internal/worker"
)

// Options wires a Player to its collaborators.
type Options struct {
	Config  *config.Config // nil means config.Default()
	Opener  source.Opener
	Cache   *framecache.Cache // shared between players; nil disables caching
	Surface display.Surface
	Logger  *slog.Logger
	Now     func() time.Time
}

// postKey identifies the last render request, so unchanged requests are
// not posted again.
type postKey struct {
	anim    string
	frame   int
	sizing  sizing.Input
	visible bool
}

// shownKey identifies what is on the surface.
type shownKey struct {
	anim  string
	frame int
	size  image.Point
}

// Stats counts what the player did with published frames.
type Stats struct {
	Posted  uint64 // render requests sent to the worker
	Uploads uint64 // frames uploaded to the surface
	Skipped uint64 // published frames identical to what was shown
	Culled  uint64 // ticks without a render because the player was off screen
}

type Player struct {
	cfg     config.Config
	log     *slog.Logger
	w       *worker.Worker
	cache   *framecache.Cache
	surface display.Surface
	now     func() time.Time

	path     string
	anim     string
	retained string
	info     *worker.DocumentInfo // nil until a load succeeds
	infoSeq  uint64

	playing bool
	frame   float64
	segment *statemachine.Segment

	container  image.Point // applied requested size
	wanted     image.Point
	lastResize time.Time

	bounds   image.Rectangle
	viewport image.Rectangle

	posted       bool
	awaiting     bool // a posted render has not been consumed yet
	lastPost     postKey
	force        bool
	lastConsumed uint64
	shown        shownKey
	hasShown     bool

	onFinished []func()
	stats      Stats
}

// New creates a player and its render worker. Call Start before Tick.
func New(opts Options) *Player {
	cfg := config.Default()
	if opts.Config != nil {
		c := *opts.Config
		cfg = &c
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cache := opts.Cache
	if !cfg.Cache.Enabled {
		cache = nil
	}

	p := &Player{
		cfg:     *cfg,
		log:     log,
		cache:   cache,
		surface: opts.Surface,
		now:     now,
		playing: cfg.Playback.Playing,
		frame:   cfg.Playback.Frame,
	}
	p.w = worker.New(worker.Options{
		Opener:         opts.Opener,
		Cache:          cache,
		Logger:         log,
		QuantStep:      cfg.Cache.Quant,
		FixAlphaBorder: cfg.Post.FixAlphaBorder,
		Unpremultiply:  cfg.Post.Unpremultiply,
	})
	p.wanted = image.Pt(cfg.Sizing.Width, cfg.Sizing.Height)
	return p
}

// Start runs the worker and loads the configured source, if any.
func (p *Player) Start(ctx context.Context) error {
	if err := p.w.Start(ctx); err != nil {
		return err
	}
	if p.cfg.Source != "" {
		return p.Load(p.cfg.Source)
	}
	return nil
}

// Close stops the worker and releases the player's cache registration.
func (p *Player) Close() {
	p.release()
	p.w.Stop()
}

// Load switches to a new asset. The previous frame stays on the surface
// until the new document produces one.
func (p *Player) Load(path string) error {
	if err := p.w.Load(path, path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	p.release()
	p.path = path
	p.anim = path
	if p.cache != nil {
		p.cache.Retain(path)
		p.retained = path
	}
	p.info = nil
	p.frame = 0
	p.segment = nil
	p.posted = false
	p.awaiting = false
	return nil
}

func (p *Player) release() {
	if p.retained != "" {
		p.cache.Release(p.retained)
		p.retained = ""
	}
}

func (p *Player) Play() {
	if !p.cfg.Playback.Looping && p.info != nil {
		if _, hi := p.window(); p.frame >= hi {
			p.frame, _ = p.window()
		}
	}
	p.playing = true
}

func (p *Player) Pause() { p.playing = false }

// Stop pauses and rewinds to the start of the active window.
func (p *Player) Stop() {
	p.playing = false
	p.frame = 0
	if p.segment != nil {
		p.frame = p.segment.Begin
	}
	p.force = true
}

// Seek jumps to frame and renders it even while paused.
func (p *Player) Seek(frame float64) {
	p.SetFrame(frame)
	p.force = true
}

func (p *Player) SetFrame(frame float64) { p.frame = p.clampToWindow(frame) }

func (p *Player) Frame() float64 { return p.frame }
func (p *Player) Playing() bool  { return p.playing }

func (p *Player) SetLooping(loop bool) { p.cfg.Playback.Looping = loop }
func (p *Player) Looping() bool        { return p.cfg.Playback.Looping }

func (p *Player) SetSpeed(speed float64) { p.cfg.Playback.Speed = max(0, speed) }
func (p *Player) Speed() float64         { return p.cfg.Playback.Speed }

func (p *Player) SetAutoplay(on bool) { p.cfg.Playback.Autoplay = on }

// SetContainerSize requests a new render size. Changes are applied at most
// once per resize interval.
func (p *Player) SetContainerSize(w, h int) { p.wanted = image.Pt(w, h) }

// SetBounds sets the player's on-screen rectangle used for culling.
func (p *Player) SetBounds(r image.Rectangle) { p.bounds = r }

// SetViewport sets the visible screen area. An empty viewport disables
// culling.
func (p *Player) SetViewport(r image.Rectangle) { p.viewport = r }

// SetSegment limits playback and rendering to [begin, end].
func (p *Player) SetSegment(begin, end float64) error {
	if end < begin {
		begin, end = end, begin
	}
	if err := p.w.SetSegment(worker.Segment{Begin: begin, End: end}); err != nil {
		return err
	}
	p.segment = &statemachine.Segment{Begin: begin, End: end}
	p.frame = p.clampToWindow(p.frame)
	p.force = true
	return nil
}

func (p *Player) ClearSegment() error {
	if err := p.w.ClearSegment(); err != nil {
		return err
	}
	p.segment = nil
	p.force = true
	return nil
}

// RenderStatic requests the current frame once, regardless of dedup.
func (p *Player) RenderStatic() { p.force = true }

// OnFinished registers fn for the end of non-looping playback.
func (p *Player) OnFinished(fn func()) { p.onFinished = append(p.onFinished, fn) }

// Loaded reports whether a document is active.
func (p *Player) Loaded() bool { return p.info != nil }

// Duration returns the active document's length in seconds.
func (p *Player) Duration() float64 {
	if p.info == nil {
		return 0
	}
	return p.info.Duration
}

func (p *Player) TotalFrames() float64 {
	if p.info == nil {
		return 0
	}
	return p.info.TotalFrames
}

// RenderSize returns the size of the frame on the surface.
func (p *Player) RenderSize() image.Point { return p.shown.size }

func (p *Player) Stats() Stats { return p.stats }

// Pending reports whether a posted render has not produced a frame yet.
// A failed render keeps it set until the next successful one.
func (p *Player) Pending() bool { return p.awaiting }

// WorkerStats exposes the render worker counters.
func (p *Player) WorkerStats() worker.Stats { return p.w.Stats() }

// SwitchClip applies a state machine directive: load the clip's source if
// it changed, apply its playback parameters and play from its start.
func (p *Player) SwitchClip(c statemachine.Clip) {
	if c.Source != p.path {
		if err := p.Load(c.Source); err != nil {
			p.log.Warn("clip switch failed", "source", c.Source, "err", err)
			return
		}
	}
	p.SetLooping(c.Loop)
	p.SetSpeed(c.Speed)

	var err error
	if c.Segment != nil {
		err = p.SetSegment(c.Segment.Begin, c.Segment.End)
		p.frame = c.Segment.Begin
	} else {
		err = p.ClearSegment()
		p.frame = 0
	}
	if err != nil {
		p.log.Warn("clip segment ignored", "source", c.Source, "err", err)
	}
	p.playing = true
}

// Tick advances playback by delta seconds, posts a render if anything
// relevant changed and uploads a newly published frame.
func (p *Player) Tick(delta float64) error {
	p.syncDocument()
	p.applyResize()

	if p.info != nil {
		if p.playing {
			p.advance(delta)
		}
		p.post()
	}
	return p.consume()
}

func (p *Player) syncDocument() {
	info := p.w.Info()
	if info == nil || info.Seq == p.infoSeq || info.Path != p.path {
		return
	}
	p.infoSeq = info.Seq

	if info.Err != nil {
		p.info = nil
		p.log.Warn("no active document", "path", info.Path, "err", info.Err)
		return
	}
	p.info = info
	p.frame = p.clampToWindow(p.frame)
	if p.cfg.Playback.Autoplay {
		p.playing = true
	}
	p.log.Debug("document ready", "path", info.Path, "frames", info.TotalFrames, "duration", info.Duration)
}

func (p *Player) applyResize() {
	if p.wanted == p.container {
		return
	}
	now := p.now()
	if !p.lastResize.IsZero() && now.Sub(p.lastResize) < p.cfg.Worker.ResizeInterval {
		return
	}
	p.container = p.wanted
	p.lastResize = now
}

// window returns the playable frame range.
func (p *Player) window() (lo, hi float64) {
	hi = max(0, p.info.TotalFrames-1)
	if p.segment != nil {
		lo = max(0, min(p.segment.Begin, hi))
		hi = max(lo, min(p.segment.End, hi))
	}
	return lo, hi
}

func (p *Player) clampToWindow(frame float64) float64 {
	if p.info == nil {
		return frame
	}
	lo, hi := p.window()
	return math.Max(lo, math.Min(frame, hi))
}

func (p *Player) advance(delta float64) {
	fps := source.DefaultFrameRate
	if p.info.Duration > 0 {
		fps = p.info.TotalFrames / p.info.Duration
	}
	p.frame += delta * p.cfg.Playback.Speed * fps

	// The last frame of the window plays for a full frame before wrapping.
	lo, hi := p.window()
	span := hi - lo + 1
	if p.frame < lo+span {
		return
	}
	if p.cfg.Playback.Looping {
		p.frame = lo + math.Mod(p.frame-lo, span)
		return
	}

	p.frame = hi
	p.playing = false
	for _, fn := range p.onFinished {
		fn()
	}
}

func (p *Player) sizingInput() sizing.Input {
	s := p.cfg.Sizing
	return sizing.Input{
		Requested:     p.container,
		UseNativeSize: s.Mode == config.SizeNative,
		FitIntoBox:    s.Mode == config.SizeFit,
		Box:           image.Pt(s.BoxW, s.BoxH),
		Dynamic:       s.Dynamic,
		Threshold:     s.Threshold,
		MaxSize:       image.Pt(s.MaxWidth, s.MaxHeight),
		Step:          s.Step,
	}
}

func (p *Player) visible() bool {
	if p.cfg.Culling.Mode == config.CullAlways || p.viewport.Empty() || p.bounds.Empty() {
		return true
	}
	r := p.bounds
	if p.cfg.Culling.Mode == config.CullWithMargin {
		r = r.Inset(-p.cfg.Culling.Margin)
	}
	return r.Overlaps(p.viewport)
}

// cacheable decides whether the worker may store the frame. While playing
// with cache-only-when-paused, live frames are cached only when forced or
// when enough players share the animation.
func (p *Player) cacheable() bool {
	if p.cache == nil {
		return false
	}
	c := p.cfg.Cache
	if !p.playing || !c.OnlyWhenPaused || c.ForceLive {
		return true
	}
	return c.LiveThreshold > 0 && p.cache.Users(p.anim) >= c.LiveThreshold
}

func (p *Player) post() {
	key := postKey{
		anim:    p.anim,
		frame:   framecache.Quantize(p.frame, p.cfg.Cache.Quant),
		sizing:  p.sizingInput(),
		visible: p.visible(),
	}
	if !key.visible {
		p.stats.Culled++
		p.lastPost = key
		return
	}
	if p.posted && key == p.lastPost && !p.force {
		return
	}

	err := p.w.Render(worker.RenderRequest{
		Frame:     p.frame,
		Sizing:    key.sizing,
		Cacheable: p.cacheable(),
	})
	if err != nil {
		p.log.Warn("render request dropped", "err", err)
		return
	}
	p.posted = true
	p.awaiting = true
	p.lastPost = key
	p.force = false
	p.stats.Posted++
}

func (p *Player) consume() error {
	r, ok := p.w.Mailbox().TryTake()
	if !ok || r.ID <= p.lastConsumed {
		return nil
	}
	p.lastConsumed = r.ID

	if r.Anim != p.anim {
		// Published for a document that was replaced since.
		return nil
	}
	p.awaiting = false
	key := shownKey{anim: r.Anim, frame: r.Frame, size: image.Pt(r.Width, r.Height)}
	if p.hasShown && key == p.shown {
		p.stats.Skipped++
		return nil
	}
	if p.surface != nil {
		if err := p.surface.Upload(r.Width, r.Height, r.Pix); err != nil {
			return fmt.Errorf("upload frame %d: %w", r.Frame, err)
		}
	}
	p.shown = key
	p.hasShown = true
	p.stats.Uploads++
	return nil
}
