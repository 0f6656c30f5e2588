// Package engine renders an animation offline: it drives a player at a
// fixed tick rate, optionally through a state machine, and hands every
// tick's picture to an output.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ivlev/animrender/internal/config"
	"github.com/ivlev/animrender/internal/display"
	"github.com/ivlev/animrender/internal/framecache"
	"github.com/ivlev/animrender/internal/player"
	"github.com/ivlev/animrender/internal/source"
	"github.com/ivlev/animrender/internal/statemachine"
	"github.com/ivlev/animrender/internal/worker"
)

// Emitter is implemented by outputs that write one picture per tick, such
// as a video stream.
type Emitter interface {
	Emit() error
}

// ParamChange sets a state machine parameter once playback time reaches At.
type ParamChange struct {
	Name  string
	Value statemachine.Value
	At    float64 // seconds
}

// Report summarizes a finished run.
type Report struct {
	Ticks      int
	TotalTime  time.Duration
	RenderWait time.Duration // time spent waiting on the worker
	Player     player.Stats
	Worker     worker.Stats
	Cache      framecache.Stats
	FinalState string
}

// EffectiveFPS is the number of ticks produced per wall-clock second.
func (r Report) EffectiveFPS() float64 {
	if r.TotalTime <= 0 {
		return 0
	}
	return float64(r.Ticks) / r.TotalTime.Seconds()
}

type Project struct {
	Config  *config.Config
	Opener  source.Opener
	Machine *statemachine.Machine // optional, drives the active clip
	Params  []ParamChange
	Output  display.Surface

	Duration float64 // seconds; <= 0 plays the document once
	FPS      int
	Logger   *slog.Logger

	FrameTimeout time.Duration // max wait for one frame from the worker

	done  atomic.Int64
	total atomic.Int64
}

// Progress returns finished and total ticks. Total is 0 until the first
// document is ready.
func (p *Project) Progress() (done, total int) {
	return int(p.done.Load()), int(p.total.Load())
}

// Run plays the project to the end and returns its report.
func (p *Project) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	var rep Report

	cfg := *p.Config
	if p.Machine != nil {
		cfg.Source = ""
	}
	if p.FPS <= 0 {
		p.FPS = 30
	}
	if p.FrameTimeout <= 0 {
		p.FrameTimeout = 5 * time.Second
	}
	log := p.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var cache *framecache.Cache
	if cfg.Cache.Enabled {
		cache = framecache.New(cfg.CacheBudget())
	}
	pl := player.New(player.Options{
		Config:  &cfg,
		Opener:  p.Opener,
		Cache:   cache,
		Surface: p.Output,
		Logger:  log,
	})
	if err := pl.Start(ctx); err != nil {
		return rep, err
	}
	defer pl.Close()

	if p.Machine != nil {
		st, ok := p.Machine.State(p.Machine.CurrentState())
		if !ok {
			return rep, fmt.Errorf("state machine has no initial state: %w", statemachine.ErrUnknownState)
		}
		pl.SwitchClip(st.Clip())
	}

	if err := p.waitDocument(ctx, pl); err != nil {
		return rep, err
	}
	if !pl.Playing() {
		pl.Play()
	}

	ticks := int(p.Duration * float64(p.FPS))
	if p.Duration <= 0 {
		ticks = int(pl.Duration() * float64(p.FPS))
	}
	ticks = max(ticks, 1)
	p.total.Store(int64(ticks))

	params := append([]ParamChange(nil), p.Params...)
	sort.SliceStable(params, func(i, j int) bool { return params[i].At < params[j].At })

	dt := 1 / float64(p.FPS)
	emitter, _ := p.Output.(Emitter)

	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		now := float64(i) * dt

		if p.Machine != nil {
			for len(params) > 0 && params[0].At <= now {
				p.Machine.SetParameter(params[0].Name, params[0].Value)
				params = params[1:]
			}
			p.Machine.Update(dt, pl)
		}

		if err := pl.Tick(dt); err != nil {
			return rep, err
		}
		waitStart := time.Now()
		if err := p.waitFrame(ctx, pl); err != nil {
			return rep, err
		}
		rep.RenderWait += time.Since(waitStart)

		if emitter != nil {
			if err := emitter.Emit(); err != nil {
				return rep, err
			}
		}
		p.done.Store(int64(i + 1))
	}

	rep.Ticks = ticks
	rep.TotalTime = time.Since(start)
	rep.Player = pl.Stats()
	rep.Worker = pl.WorkerStats()
	if cache != nil {
		rep.Cache = cache.Stats()
	}
	if p.Machine != nil {
		rep.FinalState = p.Machine.CurrentState()
	}
	return rep, nil
}

// waitDocument ticks until the player has a document or the load failed.
func (p *Project) waitDocument(ctx context.Context, pl *player.Player) error {
	deadline := time.Now().Add(p.FrameTimeout)
	for !pl.Loaded() {
		if err := pl.Tick(0); err != nil {
			return err
		}
		if pl.WorkerStats().LoadFailures > 0 && !pl.Loaded() {
			return fmt.Errorf("no active document: %w", source.ErrLoad)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("document load timed out after %v", p.FrameTimeout)
		}
		if err := sleep(ctx, time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// waitFrame blocks until the posted render reaches the surface. A raster
// failure keeps the previous picture.
func (p *Project) waitFrame(ctx context.Context, pl *player.Player) error {
	failures := pl.WorkerStats().RasterFailures
	deadline := time.Now().Add(p.FrameTimeout)
	for pl.Pending() {
		if pl.WorkerStats().RasterFailures != failures {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("frame timed out after %v", p.FrameTimeout)
		}
		if err := sleep(ctx, 200*time.Microsecond); err != nil {
			return err
		}
		if err := pl.Tick(0); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PrintReport writes the performance report to stdout and appends a line
// to benchmarkLog, when set.
func PrintReport(rep Report, build, input, benchmarkLog string) {
	fmt.Printf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Waiting on worker: %.2fs\n"+
			"Ticks: %d | Effective FPS: %.2f\n"+
			"Renders: %d | Cache hits: %d | Coalesced: %d | Raster failures: %d\n"+
			"Uploads: %d | Skipped uploads: %d\n"+
			"Cache: %d entries, %.1f/%.1f MB, %d evictions\n"+
			"----------------------------\n",
		build, rep.TotalTime.Seconds(), rep.RenderWait.Seconds(),
		rep.Ticks, rep.EffectiveFPS(),
		rep.Worker.Renders, rep.Worker.CacheHits, rep.Worker.Coalesced, rep.Worker.RasterFailures,
		rep.Player.Uploads, rep.Player.Skipped,
		rep.Cache.Len, float64(rep.Cache.Used)/(1<<20), float64(rep.Cache.Capacity)/(1<<20), rep.Cache.Evictions,
	)

	if benchmarkLog == "" {
		return
	}
	entry := fmt.Sprintf("[%s] Build: %s | Input: %s | Ticks: %d | Total: %.2fs | Renders: %d | Hits: %d | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		build,
		filepath.Base(input),
		rep.Ticks,
		rep.TotalTime.Seconds(),
		rep.Worker.Renders,
		rep.Worker.CacheHits,
		rep.EffectiveFPS(),
	)
	if err := appendLine(benchmarkLog, entry); err != nil {
		fmt.Printf("[!] Не удалось записать %s: %v\n", benchmarkLog, err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(line)
	return errors.Join(werr, f.Close())
}
