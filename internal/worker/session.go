package worker

import (
	"fmt"
	"image"

	"github.com/ivlev/animrender/internal/framecache"
	"github.com/ivlev/animrender/internal/pixel"
	"github.com/ivlev/animrender/internal/sizing"
	"github.com/ivlev/animrender/internal/source"
	"github.com/ivlev/animrender/internal/system"
)

// session is the engine state confined to the worker goroutine.
// It is created inside run and never escapes it.
type session struct {
	w *Worker

	doc    source.Document
	anim   string
	target *image.RGBA
	pool   *system.ImagePool
	size   sizing.State

	segment    Segment
	hasSegment bool
}

func newSession(w *Worker) *session {
	return &session{w: w, pool: system.NewImagePool()}
}

// execute runs one coalesced batch: load, then segment, then render.
func (s *session) execute(job pending) {
	if job.load != nil {
		s.load(*job.load)
	}
	if job.segment != nil {
		if job.segment.clear {
			s.hasSegment = false
		} else {
			s.segment = job.segment.seg
			s.hasSegment = true
		}
	}
	if job.render != nil {
		s.render(*job.render)
	}
}

func (s *session) load(cmd loadCmd) {
	s.release()

	seq := s.w.loadSeq.Add(1)
	var doc source.Document
	err := guard(func() error {
		var err error
		doc, err = s.w.opts.Opener.Open(cmd.path)
		return err
	})
	if err == nil && doc == nil {
		err = fmt.Errorf("%w: engine returned no document", source.ErrLoad)
	}
	if err != nil {
		s.w.stats.loadFailures.Add(1)
		s.w.log.Warn("load failed", "path", cmd.path, "err", err)
		s.w.info.Store(&DocumentInfo{Seq: seq, Path: cmd.path, Anim: cmd.anim, Err: err})
		return
	}

	s.doc = doc
	s.anim = cmd.anim
	s.w.info.Store(&DocumentInfo{
		Seq:         seq,
		Path:        cmd.path,
		Anim:        cmd.anim,
		TotalFrames: doc.TotalFrames(),
		Duration:    doc.Duration(),
		NativeSize:  doc.NativeSize(),
	})
	s.w.log.Debug("document loaded", "path", cmd.path, "frames", doc.TotalFrames())
}

func (s *session) render(req RenderRequest) {
	if s.doc == nil {
		s.w.log.Debug("render skipped, no active document")
		return
	}

	in := req.Sizing
	in.Native = s.doc.NativeSize()
	res := sizing.Resolve(in, s.size)
	if res.Changed || s.target == nil {
		s.reallocate(res.Size)
	}
	s.size = res.State

	frame := s.resolveFrame(req.Frame)
	qf := framecache.Quantize(frame, s.w.opts.QuantStep)
	key := framecache.Key{Anim: s.anim, Frame: qf, Width: res.Size.X, Height: res.Size.Y}

	cache := s.w.opts.Cache
	if cache != nil {
		if img, ok := cache.Get(key); ok {
			s.w.stats.cacheHits.Add(1)
			s.publish(img, key, true)
			return
		}
	}

	// Cached entries hold exactly the quantized frame so every hit is exact.
	drawAt := frame
	if req.Cacheable && cache != nil {
		drawAt = float64(qf)
	}

	err := guard(func() error { return s.doc.Render(s.target, drawAt) })
	if err != nil {
		s.w.stats.rasterFailures.Add(1)
		s.w.log.Warn("raster failed", "anim", s.anim, "frame", drawAt,
			"err", fmt.Errorf("%w: %v", ErrRaster, err))
		return
	}
	s.w.stats.renders.Add(1)

	out := image.NewRGBA(s.target.Rect)
	copy(out.Pix, s.target.Pix)
	// Colour under alpha 0 is only valid in straight alpha; a premultiplied
	// frame keeps its transparent pixels black.
	if s.w.opts.Unpremultiply {
		pixel.Unpremultiply(out.Pix)
		if s.w.opts.FixAlphaBorder {
			pixel.FixAlphaBorder(out.Pix, res.Size.X, res.Size.Y)
		}
	}

	if req.Cacheable && cache != nil {
		cache.Put(key, out, int64(len(out.Pix)))
	}
	s.publish(out, key, false)
}

// resolveFrame applies the segment window, then the document range.
func (s *session) resolveFrame(frame float64) float64 {
	if s.hasSegment {
		lo, hi := s.segment.Begin, s.segment.End
		if hi < lo {
			lo, hi = hi, lo
		}
		if frame < lo {
			frame = lo
		}
		if frame > hi {
			frame = hi
		}
	}
	return source.ClampFrame(frame, s.doc.TotalFrames())
}

func (s *session) reallocate(size image.Point) {
	if s.target != nil {
		s.pool.Put(s.target)
	}
	s.target = s.pool.Get(image.Rect(0, 0, size.X, size.Y))
	s.w.stats.reallocations.Add(1)
	s.w.log.Debug("render target reallocated", "width", size.X, "height", size.Y)
}

func (s *session) publish(img *image.RGBA, key framecache.Key, hit bool) {
	s.w.mailbox.Publish(FrameResult{
		Pix:      img.Pix,
		Width:    key.Width,
		Height:   key.Height,
		Anim:     key.Anim,
		Frame:    key.Frame,
		CacheHit: hit,
	})
}

// release closes the document and drops the target and local sizing state.
// The shared frame cache is left alone.
func (s *session) release() {
	if s.doc != nil {
		if err := guard(s.doc.Close); err != nil {
			s.w.log.Warn("document close failed", "anim", s.anim, "err", err)
		}
		s.doc = nil
	}
	if s.target != nil {
		s.pool.Put(s.target)
		s.target = nil
	}
	s.anim = ""
	s.size = sizing.State{}
	s.hasSegment = false
}

// guard turns an engine panic into an error so one bad asset cannot take
// the worker down.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return fn()
}
