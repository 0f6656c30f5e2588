// Package pixel holds per-pixel corrections applied to freshly rasterized
// frames before they are cached or displayed.
package pixel

// FixAlphaBorder gives fully transparent pixels the average color of their
// visible 4-neighbours. Alpha is untouched, so nothing becomes visible, but
// bilinear sampling at shape edges no longer bleeds black into the border.
//
// rgba is tightly packed, w*h*4 bytes.
func FixAlphaBorder(rgba []byte, w, h int) {
	if len(rgba) < w*h*4 {
		return
	}
	src := make([]byte, len(rgba))
	copy(src, rgba)

	stride := w * 4
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*stride + x*4
			if src[i+3] != 0 {
				continue
			}

			var r, g, b, n int
			add := func(j int) {
				if src[j+3] == 0 {
					return
				}
				r += int(src[j])
				g += int(src[j+1])
				b += int(src[j+2])
				n++
			}
			if x > 0 {
				add(i - 4)
			}
			if x < w-1 {
				add(i + 4)
			}
			if y > 0 {
				add(i - stride)
			}
			if y < h-1 {
				add(i + stride)
			}
			if n == 0 {
				continue
			}

			rgba[i] = byte(r / n)
			rgba[i+1] = byte(g / n)
			rgba[i+2] = byte(b / n)
		}
	}
}

// Unpremultiply converts premultiplied RGBA to straight alpha in place.
func Unpremultiply(rgba []byte) {
	for i := 0; i+3 < len(rgba); i += 4 {
		a := int(rgba[i+3])
		if a == 0 || a == 255 {
			continue
		}
		rgba[i] = unmul(rgba[i], a)
		rgba[i+1] = unmul(rgba[i+1], a)
		rgba[i+2] = unmul(rgba[i+2], a)
	}
}

func unmul(c byte, a int) byte {
	v := (int(c)*255 + a/2) / a
	if v > 255 {
		v = 255
	}
	return byte(v)
}
