package system

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestImagePoolReuse(t *testing.T) {
	p := NewImagePool()
	rect := image.Rect(0, 0, 8, 4)

	img := p.Get(rect)
	if img.Rect != rect {
		t.Fatalf("unexpected bounds %v", img.Rect)
	}
	img.Pix[0] = 200
	p.Put(img)

	again := p.Get(rect)
	if again.Rect != rect {
		t.Fatalf("unexpected bounds %v", again.Rect)
	}
	if again.Pix[0] != 0 {
		t.Error("pooled image must come back cleared")
	}

	p.Put(image.NewRGBA(image.Rect(0, 0, 3, 3)))
	p.Put(nil)
}

func TestClampBudget(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{1, minAutoBudget},
		{64 << 20, 64 << 20},
		{8 << 30, maxAutoBudget},
	}
	for _, tt := range tests {
		if got := clampBudget(tt.in); got != tt.want {
			t.Errorf("clampBudget(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAutoCacheBudgetInRange(t *testing.T) {
	b := AutoCacheBudget(123)
	if b != 123 && (b < minAutoBudget || b > maxAutoBudget) {
		t.Errorf("budget %d outside [%d, %d]", b, minAutoBudget, maxAutoBudget)
	}
	t.Logf("auto cache budget: %d MB", b>>20)
}

func TestFindLatestAsset(t *testing.T) {
	dir := t.TempDir()
	files := []string{"old.pdf", "newest.png", "notes.txt"}
	for i, name := range files {
		p := filepath.Join(dir, name)
		os.WriteFile(p, []byte("x"), 0644)
		mt := time.Now().Add(time.Duration(i) * time.Hour)
		os.Chtimes(p, mt, mt)
	}

	latest, err := FindLatestAsset(dir)
	if err != nil {
		t.Fatalf("FindLatestAsset failed: %v", err)
	}
	if filepath.Base(latest) != "newest.png" {
		t.Errorf("expected newest.png, got %s", latest)
	}

	if _, err := FindLatestAsset(t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}
}
