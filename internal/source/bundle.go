package source

import (
	"archive/zip"
	"fmt"
	"io"
	"sort"
	"strings"
)

// EntrySeparator splits a bundle path from an inner entry name:
// "clip.zip#scene.pdf".
const EntrySeparator = "#"

// SplitEntry separates "bundle.zip#entry" into its parts. entry is empty
// when path names the whole bundle.
func SplitEntry(p string) (bundle, entry string) {
	bundle, entry, _ = strings.Cut(p, EntrySeparator)
	return bundle, entry
}

func isBundle(p string) bool {
	bundle, _ := SplitEntry(p)
	return strings.HasSuffix(strings.ToLower(bundle), ".zip")
}

// ReadEntry returns the bytes of one entry inside a zip bundle. It is only
// used at load time.
func ReadEntry(bundle, entry string) ([]byte, error) {
	zr, err := zip.OpenReader(bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer zr.Close()

	f, err := zr.Open(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, bundle, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s#%s: %v", ErrLoad, bundle, entry, err)
	}
	return data, nil
}

// OpenBundle opens a zip bundle. "clip.zip#scene.pdf" loads the inner PDF;
// a bare "clip.zip" plays its PNG/JPEG entries as an image sequence.
func OpenBundle(p string, fps float64) (Document, error) {
	bundle, entry := SplitEntry(p)
	if entry != "" {
		if !strings.HasSuffix(strings.ToLower(entry), ".pdf") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, p)
		}
		data, err := ReadEntry(bundle, entry)
		if err != nil {
			return nil, err
		}
		return OpenFitzMemory(p, data, fps)
	}

	zr, err := zip.OpenReader(bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	var frames []frame
	for _, zf := range zr.File {
		name := zf.Name
		if zf.FileInfo().IsDir() || !isImageFile(strings.ToLower(name)) {
			continue
		}
		frames = append(frames, frame{name: name, open: zf.Open})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].name < frames[j].name })

	seq, err := newImageSequence(bundle, frames, fps, zr)
	if err != nil {
		zr.Close()
		return nil, err
	}
	return seq, nil
}
