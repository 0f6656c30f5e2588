package sizing

import (
	"image"
	"math"
	"testing"
)

func TestResolveModes(t *testing.T) {
	tests := []struct {
		name      string
		in        Input
		wantSize  image.Point
		wantScale float64
	}{
		{
			name:      "native",
			in:        Input{Native: image.Pt(320, 240), Requested: image.Pt(50, 50), UseNativeSize: true},
			wantSize:  image.Pt(320, 240),
			wantScale: 1,
		},
		{
			name:      "fit into box",
			in:        Input{Native: image.Pt(100, 50), FitIntoBox: true, Box: image.Pt(200, 60)},
			wantSize:  image.Pt(120, 60),
			wantScale: 1.2,
		},
		{
			name:      "fit into tiny box",
			in:        Input{Native: image.Pt(1000, 10), FitIntoBox: true, Box: image.Pt(10, 10)},
			wantSize:  image.Pt(10, 1),
			wantScale: 0.01,
		},
		{
			name:      "fixed size",
			in:        Input{Native: image.Pt(100, 100), Requested: image.Pt(300, 150)},
			wantSize:  image.Pt(300, 150),
			wantScale: 3,
		},
		{
			name:      "zero request clamps to one pixel",
			in:        Input{Native: image.Pt(100, 100)},
			wantSize:  image.Pt(1, 1),
			wantScale: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(tt.in, State{})
			if res.Size != tt.wantSize {
				t.Errorf("size = %v, want %v", res.Size, tt.wantSize)
			}
			if math.Abs(res.Scale-tt.wantScale) > 1e-9 {
				t.Errorf("scale = %v, want %v", res.Scale, tt.wantScale)
			}
			if !res.Changed {
				t.Error("first resolution must report a change")
			}
		})
	}
}

func TestDynamicResolutionHysteresis(t *testing.T) {
	in := Input{Native: image.Pt(100, 100), Dynamic: true, Threshold: 0.1, Step: 1}

	in.Requested = image.Pt(100, 100)
	first := Resolve(in, State{})
	if first.Size != image.Pt(100, 100) || !first.Changed {
		t.Fatalf("unexpected first resolution: %+v", first)
	}

	in.Requested = image.Pt(104, 104)
	small := Resolve(in, first.State)
	if small.Changed {
		t.Errorf("4%% change must not reallocate, got %+v", small)
	}
	if small.Size != image.Pt(100, 100) {
		t.Errorf("size should stay 100x100, got %v", small.Size)
	}

	in.Requested = image.Pt(115, 115)
	big := Resolve(in, small.State)
	if !big.Changed {
		t.Errorf("15%% change must reallocate, got %+v", big)
	}
	if big.Size != image.Pt(115, 115) {
		t.Errorf("size = %v, want 115x115", big.Size)
	}
}

func TestDynamicResolutionStepAndMax(t *testing.T) {
	in := Input{
		Native:    image.Pt(100, 100),
		Requested: image.Pt(517, 203),
		Dynamic:   true,
		Threshold: 0.05,
		Step:      16,
		MaxSize:   image.Pt(400, 0),
	}
	res := Resolve(in, State{})
	if res.Size != image.Pt(400, 192) {
		t.Errorf("size = %v, want 400x192", res.Size)
	}
	if math.Abs(res.Scale-4) > 1e-9 {
		t.Errorf("scale = %v, want 4", res.Scale)
	}

	in.Requested = image.Pt(5, 5)
	res = Resolve(in, res.State)
	if res.Size != image.Pt(16, 16) {
		t.Errorf("sizes below one step round up to the step, got %v", res.Size)
	}
}

func TestSameSizeIsNotAChange(t *testing.T) {
	in := Input{Native: image.Pt(64, 64), Requested: image.Pt(128, 128)}
	first := Resolve(in, State{})
	again := Resolve(in, first.State)
	if again.Changed {
		t.Error("identical request must not report a change")
	}
}

func TestRelativeChange(t *testing.T) {
	if got := RelativeChange(image.Pt(100, 100), image.Pt(104, 90)); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("RelativeChange = %v, want 0.1", got)
	}
	if got := RelativeChange(image.Pt(0, 0), image.Pt(3, 1)); got != 2 {
		t.Errorf("RelativeChange from zero = %v, want 2", got)
	}
}
