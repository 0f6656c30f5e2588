package display

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// PNGSink writes every uploaded frame to Dir as frame_00001.png and so on.
type PNGSink struct {
	Dir      string
	Straight bool // frames carry straight alpha, not premultiplied
	n        int
}

func NewPNGSink(dir string) (*PNGSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &PNGSink{Dir: dir}, nil
}

func (s *PNGSink) Upload(w, h int, rgba []byte) error {
	if len(rgba) < w*h*4 {
		return fmt.Errorf("short frame: %d bytes for %dx%d", len(rgba), w, h)
	}
	var img image.Image = &image.RGBA{Pix: rgba[:w*h*4], Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	if s.Straight {
		img = &image.NRGBA{Pix: rgba[:w*h*4], Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	}

	s.n++
	path := filepath.Join(s.Dir, fmt.Sprintf("frame_%05d.png", s.n))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Written returns how many files were written.
func (s *PNGSink) Written() int { return s.n }
