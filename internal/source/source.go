// Package source adapts rasterization engines to the render worker.
//
// A Document is not safe for concurrent use. The render worker is the only
// goroutine that ever calls into one.
package source

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrLoad wraps every failure to parse or open an asset.
	ErrLoad = errors.New("source: load failed")
	// ErrUnsupported is returned for paths no engine recognizes.
	ErrUnsupported = errors.New("source: unsupported asset")
)

// DefaultFrameRate is used for engines whose assets carry no timing.
const DefaultFrameRate = 30.0

// Document is a parsed animation asset.
type Document interface {
	TotalFrames() float64
	Duration() float64
	NativeSize() image.Point
	// Render rasterizes frame into dst, covering dst's full bounds.
	Render(dst *image.RGBA, frame float64) error
	Close() error
}

// Opener parses assets into Documents.
type Opener interface {
	Open(path string) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Document, error)

func (f OpenerFunc) Open(path string) (Document, error) { return f(path) }

// Engines picks an engine by the shape of the path.
type Engines struct {
	FrameRate float64 // timing for PDF and image-sequence documents
}

// Open dispatches to the PDF, image-sequence, bundle or test-pattern engine.
func (e Engines) Open(path string) (Document, error) {
	fps := e.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
	}

	if strings.HasPrefix(path, PatternScheme) {
		return OpenPattern(path)
	}

	if isBundle(path) {
		return OpenBundle(path, fps)
	}

	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".pdf") {
		return OpenFitz(path, fps)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if fi.IsDir() || isImageFile(lower) {
		return OpenImageSequence(path, fps)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
}

func isImageFile(name string) bool {
	switch filepath.Ext(name) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// ClampFrame limits frame to the valid range of a document with total frames.
func ClampFrame(frame, total float64) float64 {
	if frame < 0 || total <= 0 {
		return 0
	}
	if last := total - 1; frame > last {
		return last
	}
	return frame
}
