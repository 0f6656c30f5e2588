package engine

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/animrender/internal/config"
	"github.com/ivlev/animrender/internal/display"
	"github.com/ivlev/animrender/internal/source"
	"github.com/ivlev/animrender/internal/statemachine"
)

type flatDoc struct{ frames float64 }

func (d flatDoc) TotalFrames() float64    { return d.frames }
func (d flatDoc) Duration() float64       { return d.frames / 30 }
func (d flatDoc) NativeSize() image.Point { return image.Pt(8, 8) }
func (d flatDoc) Close() error            { return nil }

func (d flatDoc) Render(dst *image.RGBA, frame float64) error {
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = uint8(frame)
		dst.Pix[i+3] = 255
	}
	return nil
}

var opener = source.OpenerFunc(func(path string) (source.Document, error) {
	switch path {
	case "short":
		return flatDoc{frames: 15}, nil
	case "long":
		return flatDoc{frames: 90}, nil
	}
	return nil, source.ErrLoad
})

// countingSink records uploads and emitted ticks.
type countingSink struct {
	display.Memory
	emits int
}

func (s *countingSink) Emit() error {
	s.emits++
	return nil
}

func testConfig(src string) *config.Config {
	cfg := config.Default()
	cfg.Source = src
	cfg.Sizing.Width, cfg.Sizing.Height = 16, 16
	return cfg
}

func TestRunPlaysDocumentOnce(t *testing.T) {
	sink := &countingSink{}
	p := &Project{Config: testConfig("short"), Opener: opener, Output: sink, FPS: 30}

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Ticks != 15 || sink.emits != 15 {
		t.Errorf("expected 15 ticks and emits, got %d and %d", rep.Ticks, sink.emits)
	}
	if sink.Uploads() == 0 || rep.Player.Uploads != uint64(sink.Uploads()) {
		t.Errorf("uploads mismatch: report %d, sink %d", rep.Player.Uploads, sink.Uploads())
	}
	if done, total := p.Progress(); done != 15 || total != 15 {
		t.Errorf("unexpected progress %d/%d", done, total)
	}
	if rep.EffectiveFPS() <= 0 {
		t.Error("expected a positive effective fps")
	}
}

func TestRunWithDuration(t *testing.T) {
	sink := &countingSink{}
	p := &Project{Config: testConfig("short"), Opener: opener, Output: sink, FPS: 10, Duration: 2}

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Ticks != 20 {
		t.Errorf("expected 20 ticks, got %d", rep.Ticks)
	}
}

func TestRunLoadFailure(t *testing.T) {
	p := &Project{Config: testConfig("missing"), Opener: opener, Output: &display.Memory{}}
	if _, err := p.Run(context.Background()); !errors.Is(err, source.ErrLoad) {
		t.Errorf("expected ErrLoad, got %v", err)
	}
}

func TestRunDrivenByStateMachine(t *testing.T) {
	m := statemachine.New(nil)
	m.AddState(statemachine.NewState("idle", "short"))
	m.AddState(statemachine.NewState("run", "long"))
	m.AddTransition(statemachine.Transition{
		From: "idle", To: "run", Parameter: "speed", Mode: statemachine.Greater, Value: statemachine.Number(0.5),
	})
	m.SetCurrentState("idle")

	var switched []string
	m.OnTransitionStarted(func(from, to string) { switched = append(switched, from+"→"+to) })

	sink := &countingSink{}
	p := &Project{
		Config:   testConfig(""),
		Opener:   opener,
		Machine:  m,
		Params:   []ParamChange{{Name: "speed", Value: statemachine.Number(1), At: 0.5}},
		Output:   sink,
		FPS:      20,
		Duration: 1,
	}

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.FinalState != "run" {
		t.Errorf("expected final state run, got %q", rep.FinalState)
	}
	if len(switched) != 1 || switched[0] != "idle→run" {
		t.Errorf("unexpected transitions %v", switched)
	}
	if sink.emits != 20 {
		t.Errorf("expected 20 emitted ticks, got %d", sink.emits)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Project{Config: testConfig("long"), Opener: opener, Output: &display.Memory{}, FrameTimeout: time.Second}
	if _, err := p.Run(ctx); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}

func TestPrintReportAppendsBenchmark(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "benchmark.log")
	rep := Report{Ticks: 30, TotalTime: time.Second}

	PrintReport(rep, "test", "/tmp/clip.pdf", logPath)
	PrintReport(rep, "test", "/tmp/clip.pdf", logPath)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "Input: clip.pdf") || !strings.Contains(lines[0], "FPS: 30.00") {
		t.Errorf("unexpected entry %q", lines[0])
	}
}
