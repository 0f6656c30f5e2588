package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// frame opens the encoded bytes of one picture.
type frame struct {
	name string
	open func() (io.ReadCloser, error)
}

// ImageSequence plays PNG/JPEG pictures as frames, in name order. The
// pictures come from a directory, a single file or a zip bundle.
type ImageSequence struct {
	frames []frame
	native image.Point
	fps    float64
	closer io.Closer // bundle handle, nil for plain files
}

// OpenImageSequence lists the frames at path and validates every header.
// A single image file is a one-frame document.
func OpenImageSequence(path string, fps float64) (*ImageSequence, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImageFile(strings.ToLower(entry.Name())) {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}

	frames := make([]frame, len(paths))
	for i, p := range paths {
		frames[i] = frame{name: filepath.Base(p), open: func() (io.ReadCloser, error) { return os.Open(p) }}
	}
	return newImageSequence(path, frames, fps, nil)
}

func newImageSequence(path string, frames []frame, fps float64, closer io.Closer) (*ImageSequence, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s: no frames", ErrLoad, path)
	}

	sizes := make([]image.Point, len(frames))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, f := range frames {
		g.Go(func() error {
			size, err := decodeSize(f)
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			sizes[i] = size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	return &ImageSequence{frames: frames, native: sizes[0], fps: fps, closer: closer}, nil
}

func decodeSize(f frame) (image.Point, error) {
	r, err := f.open()
	if err != nil {
		return image.Point{}, err
	}
	defer r.Close()

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return image.Point{}, err
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

func (s *ImageSequence) TotalFrames() float64 { return float64(len(s.frames)) }

func (s *ImageSequence) Duration() float64 { return float64(len(s.frames)) / s.fps }

func (s *ImageSequence) NativeSize() image.Point { return s.native }

func (s *ImageSequence) Render(dst *image.RGBA, frame float64) error {
	idx := int(ClampFrame(frame, float64(len(s.frames))))

	r, err := s.frames[idx].open()
	if err != nil {
		return err
	}
	defer r.Close()

	img, _, err := image.Decode(r)
	if err != nil {
		return err
	}

	fitInto(dst, img)
	return nil
}

func (s *ImageSequence) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
