// Package display holds the surfaces a player uploads finished frames to.
package display

import (
	"image"
	"sync"
)

// Surface accepts tightly packed RGBA frames.
type Surface interface {
	Upload(w, h int, rgba []byte) error
}

// Memory keeps a copy of the last uploaded frame.
type Memory struct {
	mu      sync.Mutex
	last    *image.RGBA
	uploads int
}

func (m *Memory) Upload(w, h int, rgba []byte) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, rgba)

	m.mu.Lock()
	m.last = img
	m.uploads++
	m.mu.Unlock()
	return nil
}

// Last returns the last uploaded frame, nil before the first upload.
func (m *Memory) Last() *image.RGBA {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Uploads returns how many frames were uploaded.
func (m *Memory) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}
