package source

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/gg"
	qrcode "github.com/skip2/go-qrcode"
)

// PatternScheme prefixes test-pattern paths: "pattern:<frames>[@<fps>]".
const PatternScheme = "pattern:"

// patternNativeSize is the design size of a test-pattern frame.
const patternNativeSize = 256

// PatternDocument is a diagnostic animation. Every frame shows a progress ring
// and a QR code encoding the frame index, so a recorded output can be checked
// frame by frame.
type PatternDocument struct {
	frames int
	fps    float64
}

// OpenPattern parses a "pattern:" path.
func OpenPattern(path string) (*PatternDocument, error) {
	arg := strings.TrimPrefix(path, PatternScheme)
	fps := DefaultFrameRate

	if at := strings.IndexByte(arg, '@'); at >= 0 {
		v, err := strconv.ParseFloat(arg[at+1:], 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: bad frame rate in %q", ErrLoad, path)
		}
		fps = v
		arg = arg[:at]
	}

	frames, err := strconv.Atoi(arg)
	if err != nil || frames <= 0 {
		return nil, fmt.Errorf("%w: bad frame count in %q", ErrLoad, path)
	}

	return &PatternDocument{frames: frames, fps: fps}, nil
}

// PatternPath builds a test-pattern path.
func PatternPath(frames int, fps float64) string {
	return fmt.Sprintf("%s%d@%g", PatternScheme, frames, fps)
}

func (p *PatternDocument) TotalFrames() float64 { return float64(p.frames) }

func (p *PatternDocument) Duration() float64 { return float64(p.frames) / p.fps }

func (p *PatternDocument) NativeSize() image.Point {
	return image.Pt(patternNativeSize, patternNativeSize)
}

func (p *PatternDocument) Render(dst *image.RGBA, frame float64) error {
	idx := int(ClampFrame(frame, float64(p.frames)))
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	dc := gg.NewContext(b.Dx(), b.Dy())
	defer dc.Close()

	dc.ClearWithColor(gg.RGB(0.08, 0.09, 0.12))

	side := math.Min(w, h)
	cx, cy := w/2, h/2
	radius := side * 0.45
	progress := float64(idx+1) / float64(p.frames)
	start := -math.Pi / 2

	dc.SetRGB(0.25, 0.27, 0.32)
	dc.SetLineWidth(math.Max(1, side*0.04))
	dc.DrawCircle(cx, cy, radius)
	if err := dc.Stroke(); err != nil {
		return err
	}

	dc.SetRGB(0.95, 0.65, 0.15)
	dc.DrawArc(cx, cy, radius, start, start+2*math.Pi*progress)
	if err := dc.Stroke(); err != nil {
		return err
	}

	qr, err := qrcode.New(fmt.Sprintf("frame:%d", idx), qrcode.Medium)
	if err != nil {
		return err
	}
	qrSide := side * 0.55
	if px := int(qrSide); px >= 21 {
		dc.DrawImageEx(gg.ImageBufFromImage(qr.Image(px)), gg.DrawImageOptions{
			X:             cx - qrSide/2,
			Y:             cy - qrSide/2,
			DstWidth:      qrSide,
			DstHeight:     qrSide,
			Interpolation: gg.InterpNearest,
			Opacity:       1,
			BlendMode:     gg.BlendNormal,
		})
	}

	draw.Draw(dst, b, dc.Image(), image.Point{}, draw.Src)
	return nil
}

func (p *PatternDocument) Close() error { return nil }
