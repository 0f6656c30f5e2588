package system

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// autoBudgetShare is the part of available memory the frame cache may use.
	autoBudgetShare = 0.10
	minAutoBudget   = 32 << 20
	maxAutoBudget   = 1 << 30
)

// AutoCacheBudget sizes the frame cache from currently available memory,
// clamped to [32MB, 1GB]. fallback is returned if memory cannot be queried.
func AutoCacheBudget(fallback int64) int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return fallback
	}
	return clampBudget(int64(float64(vm.Available) * autoBudgetShare))
}

func clampBudget(b int64) int64 {
	if b < minAutoBudget {
		return minAutoBudget
	}
	if b > maxAutoBudget {
		return maxAutoBudget
	}
	return b
}

var assetExtensions = []string{".pdf", ".zip", ".png", ".jpg", ".jpeg"}

// FindLatestAsset returns the newest animation asset in dir: a PDF, an image,
// or a subdirectory holding an image sequence.
func FindLatestAsset(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if !f.IsDir() && !hasExtension(f.Name(), assetExtensions) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено анимаций", dir)
	}

	return latestFile, nil
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// GetBestH264Encoder probes ffmpeg for a hardware encoder and falls back to
// libx264.
func GetBestH264Encoder() string {
	out, err := exec.Command("ffmpeg", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}
