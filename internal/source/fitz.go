package source

import (
	"fmt"
	"image"
	"math"

	"github.com/gen2brain/go-fitz"
)

// pdfPointsPerInch is the resolution go-fitz reports page bounds in.
const pdfPointsPerInch = 72.0

// FitzDocument treats every PDF page as one animation frame.
type FitzDocument struct {
	doc    *fitz.Document
	path   string
	pages  int
	native image.Point
	fps    float64
}

// OpenFitz parses a PDF. The first page defines the native size.
func OpenFitz(path string, fps float64) (*FitzDocument, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}
	return newFitzDocument(doc, path, fps)
}

// OpenFitzMemory parses a PDF already read into memory, such as a bundle
// entry. name is only used in errors.
func OpenFitzMemory(name string, data []byte, fps float64) (*FitzDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}
	return newFitzDocument(doc, name, fps)
}

func newFitzDocument(doc *fitz.Document, path string, fps float64) (*FitzDocument, error) {
	pages := doc.NumPage()
	if pages == 0 {
		doc.Close()
		return nil, fmt.Errorf("%w: %s: no pages", ErrLoad, path)
	}

	rect, err := doc.Bound(0)
	if err != nil {
		doc.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}

	return &FitzDocument{
		doc:    doc,
		path:   path,
		pages:  pages,
		native: image.Pt(rect.Dx(), rect.Dy()),
		fps:    fps,
	}, nil
}

func (f *FitzDocument) TotalFrames() float64 { return float64(f.pages) }

func (f *FitzDocument) Duration() float64 { return float64(f.pages) / f.fps }

func (f *FitzDocument) NativeSize() image.Point { return f.native }

// Render rasterizes the page at the DPI that covers dst, then scales the
// result to the exact target size.
func (f *FitzDocument) Render(dst *image.RGBA, frame float64) error {
	page := int(ClampFrame(frame, float64(f.pages)))

	rect, err := f.doc.Bound(page)
	if err != nil {
		return err
	}
	if rect.Dx() == 0 || rect.Dy() == 0 {
		return fmt.Errorf("page %d has empty bounds", page)
	}

	db := dst.Bounds()
	scale := math.Max(
		float64(db.Dx())/float64(rect.Dx()),
		float64(db.Dy())/float64(rect.Dy()),
	)
	img, err := f.doc.ImageDPI(page, scale*pdfPointsPerInch)
	if err != nil {
		return err
	}

	fitInto(dst, img)
	return nil
}

func (f *FitzDocument) Close() error {
	return f.doc.Close()
}
