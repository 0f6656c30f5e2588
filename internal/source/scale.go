package source

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// fitInto scales src into dst preserving aspect ratio and centering it.
// Uncovered pixels are cleared to transparent.
func fitInto(dst *image.RGBA, src image.Image) {
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)

	sb := src.Bounds()
	if sb.Empty() {
		return
	}
	db := dst.Bounds()

	sx := float64(db.Dx()) / float64(sb.Dx())
	sy := float64(db.Dy()) / float64(sb.Dy())
	s := sx
	if sy < s {
		s = sy
	}

	w := int(float64(sb.Dx())*s + 0.5)
	h := int(float64(sb.Dy())*s + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x0 := db.Min.X + (db.Dx()-w)/2
	y0 := db.Min.Y + (db.Dy()-h)/2
	rect := image.Rect(x0, y0, x0+w, y0+h)

	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, rect, src, sb.Min, draw.Over)
		return
	}
	xdraw.CatmullRom.Scale(dst, rect, src, sb, draw.Over, nil)
}
