package framecache

import (
	"image"
	"sync"
	"testing"
)

const mb = 1024 * 1024

func frame(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func key(anim string, f int) Key {
	return Key{Anim: anim, Frame: f, Width: 4, Height: 4}
}

func TestNew(t *testing.T) {
	c := New(0)
	if c.Capacity() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, c.Capacity())
	}
	if c.Len() != 0 || c.Used() != 0 {
		t.Errorf("expected empty cache, got len=%d used=%d", c.Len(), c.Used())
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	c := New(25 * mb)
	a, b, cc, d := key("x", 1), key("x", 2), key("x", 3), key("x", 4)

	c.Put(a, frame(4, 4), 10*mb)
	c.Put(b, frame(4, 4), 10*mb)
	c.Put(cc, frame(4, 4), 10*mb)

	if _, ok := c.Get(a); ok {
		t.Fatal("expected A to be evicted after inserting C")
	}
	if c.Used() > c.Capacity() {
		t.Fatalf("used %d exceeds capacity %d", c.Used(), c.Capacity())
	}

	if _, ok := c.Get(b); !ok {
		t.Fatal("expected B to be cached")
	}
	c.Put(d, frame(4, 4), 10*mb)

	if _, ok := c.Get(cc); ok {
		t.Error("expected C to be evicted (least recently used)")
	}
	if _, ok := c.Get(b); !ok {
		t.Error("expected B to survive, it was touched by Get")
	}
	if _, ok := c.Get(d); !ok {
		t.Error("expected D to be cached")
	}
	if c.Used() != 20*mb {
		t.Errorf("expected 20MB used, got %d", c.Used())
	}
}

func TestKeyDiscrimination(t *testing.T) {
	c := New(10 * mb)
	small := Key{Anim: "x", Frame: 5, Width: 100, Height: 100}
	big := Key{Anim: "x", Frame: 5, Width: 200, Height: 200}

	c.Put(small, frame(100, 100), 100*100*4)
	if _, ok := c.Get(big); ok {
		t.Fatal("different size must not hit another entry")
	}

	variants := []Key{
		{Anim: "y", Frame: 5, Width: 100, Height: 100},
		{Anim: "x", Frame: 6, Width: 100, Height: 100},
		{Anim: "x", Frame: 5, Width: 101, Height: 100},
		{Anim: "x", Frame: 5, Width: 100, Height: 99},
	}
	for _, k := range variants {
		t.Run(k.String(), func(t *testing.T) {
			if _, ok := c.Get(k); ok {
				t.Errorf("key %v should miss", k)
			}
		})
	}

	c.Put(big, frame(200, 200), 200*200*4)
	img, ok := c.Get(small)
	if !ok || img.Bounds().Dx() != 100 {
		t.Error("small entry should still resolve to its own buffer")
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}

func TestPutIgnoresFailedRenders(t *testing.T) {
	c := New(mb)
	c.Put(key("x", 1), frame(4, 4), 0)
	c.Put(key("x", 2), nil, 64)
	c.Put(key("x", 3), &image.RGBA{}, 64)

	if c.Len() != 0 || c.Used() != 0 {
		t.Errorf("expected no entries, got len=%d used=%d", c.Len(), c.Used())
	}
}

func TestRePutAdjustsUsage(t *testing.T) {
	c := New(100)
	k := key("x", 1)
	c.Put(k, frame(4, 4), 40)
	c.Put(k, frame(2, 2), 16)

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	if c.Used() != 16 {
		t.Errorf("expected 16 bytes used after replace, got %d", c.Used())
	}
	img, _ := c.Get(k)
	if img.Bounds().Dx() != 2 {
		t.Error("expected replaced buffer")
	}
}

func TestOversizedEntryIsEvicted(t *testing.T) {
	c := New(10)
	c.Put(key("x", 1), frame(4, 4), 64)
	if c.Len() != 0 {
		t.Errorf("entry larger than capacity must not survive, len=%d", c.Len())
	}
}

func TestSetCapacityEvictsImmediately(t *testing.T) {
	c := New(100)
	for i := 0; i < 5; i++ {
		c.Put(key("x", i), frame(4, 4), 20)
	}
	c.SetCapacity(50)

	if c.Used() > 50 {
		t.Fatalf("used %d exceeds new capacity", c.Used())
	}
	for _, f := range []int{3, 4} {
		if _, ok := c.Get(key("x", f)); !ok {
			t.Errorf("expected most recent frame %d to survive", f)
		}
	}
	if _, ok := c.Get(key("x", 0)); ok {
		t.Error("expected oldest frame to be evicted")
	}
}

func TestClear(t *testing.T) {
	c := New(mb)
	c.Put(key("x", 1), frame(4, 4), 64)
	c.Put(key("x", 2), frame(4, 4), 64)
	c.Clear()

	if c.Len() != 0 || c.Used() != 0 {
		t.Errorf("expected empty cache after Clear, got len=%d used=%d", c.Len(), c.Used())
	}
}

func TestStats(t *testing.T) {
	c := New(100)
	c.Put(key("x", 1), frame(4, 4), 60)
	c.Get(key("x", 1))
	c.Get(key("x", 2))
	c.Put(key("x", 3), frame(4, 4), 60)

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", s)
	}
	if s.Evictions != 1 || s.Len != 1 {
		t.Errorf("expected 1 eviction leaving 1 entry, got %+v", s)
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		frame float64
		step  int
		want  int
	}{
		{0, 1, 0},
		{5.7, 1, 5},
		{5.7, 0, 5},
		{7.9, 4, 4},
		{8.0, 4, 8},
		{-2.5, 3, 0},
	}
	for _, tt := range tests {
		if got := Quantize(tt.frame, tt.step); got != tt.want {
			t.Errorf("Quantize(%v, %d) = %d, want %d", tt.frame, tt.step, got, tt.want)
		}
	}
}

func TestRetainRelease(t *testing.T) {
	c := New(mb)
	if n := c.Retain("x"); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
	c.Retain("x")
	if c.Users("x") != 2 {
		t.Errorf("expected 2 users, got %d", c.Users("x"))
	}
	c.Release("x")
	if n := c.Release("x"); n != 0 {
		t.Errorf("expected 0 users, got %d", n)
	}
	if n := c.Release("x"); n != 0 {
		t.Errorf("extra release must not go negative, got %d", n)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New(64 * 64)
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				k := key("x", n*1000+j)
				c.Put(k, frame(4, 4), 64)
				c.Get(k)
				if c.Used() > c.Capacity() {
					t.Errorf("used %d exceeds capacity %d", c.Used(), c.Capacity())
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if c.Len() == 0 {
		t.Error("expected non-empty cache after concurrent operations")
	}
}
