package display

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"

	xdraw "golang.org/x/image/draw"
)

// FFmpegOptions describes the output video stream.
type FFmpegOptions struct {
	Width, Height int
	FPS           int
	Encoder       string // libx264, h264_nvenc, h264_videotoolbox
	Quality       int    // 0 picks the encoder default
}

// FFmpegSink streams frames to an ffmpeg process as raw RGBA on stdin.
//
// Upload replaces the current picture. Emit writes it to the stream once,
// so the caller decides the output frame cadence.
type FFmpegSink struct {
	ctx  context.Context
	path string
	opts FFmpegOptions

	frame *image.RGBA
	cmd   *exec.Cmd
	stdin io.WriteCloser

	emitted int
}

func NewFFmpegSink(ctx context.Context, path string, opts FFmpegOptions) *FFmpegSink {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Encoder == "" {
		opts.Encoder = "libx264"
	}
	if opts.Quality == 0 {
		opts.Quality = DefaultQuality(opts.Encoder)
	}
	return &FFmpegSink{
		ctx:   ctx,
		path:  path,
		opts:  opts,
		frame: image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
	}
}

// DefaultQuality returns the quality setting for encoder when none is given.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75 // bitrate = Q*100 kbit/s
	case "h264_nvenc":
		return 28
	default:
		return 23 // CRF
	}
}

// Upload letterboxes the frame into the stream size when they differ.
func (s *FFmpegSink) Upload(w, h int, rgba []byte) error {
	if len(rgba) < w*h*4 {
		return fmt.Errorf("short frame: %d bytes for %dx%d", len(rgba), w, h)
	}
	src := &image.RGBA{Pix: rgba, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}

	if w == s.opts.Width && h == s.opts.Height {
		copy(s.frame.Pix, rgba)
		return nil
	}
	draw.Draw(s.frame, s.frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(s.frame, fitRect(s.frame.Bounds(), src.Bounds()), src, src.Bounds(), draw.Over, nil)
	return nil
}

// Emit writes the current picture as the next video frame, starting ffmpeg
// on first use.
func (s *FFmpegSink) Emit() error {
	if s.cmd == nil {
		if err := s.start(); err != nil {
			return err
		}
	}
	if _, err := s.stdin.Write(s.frame.Pix); err != nil {
		return fmt.Errorf("write raw error: %w", err)
	}
	s.emitted++
	return nil
}

// Emitted returns how many frames were written to the stream.
func (s *FFmpegSink) Emitted() int { return s.emitted }

func (s *FFmpegSink) start() error {
	cmd := exec.CommandContext(s.ctx, "ffmpeg", s.buildArgs()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

// Close finishes the stream and waits for ffmpeg to exit.
func (s *FFmpegSink) Close() error {
	if s.cmd == nil {
		return nil
	}
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w", err)
	}
	return nil
}

func (s *FFmpegSink) buildArgs() []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", s.opts.Width, s.opts.Height),
		"-framerate", fmt.Sprintf("%d", s.opts.FPS),
		"-i", "-",
		"-pix_fmt", "yuv420p",
		"-c:v", s.opts.Encoder,
	}

	switch s.opts.Encoder {
	case "h264_videotoolbox":
		args = append(args, "-b:v", fmt.Sprintf("%dk", s.opts.Quality*100))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", s.opts.Quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", s.opts.Quality), "-preset", "medium")
	}

	return append(args, s.path)
}

// fitRect centers src inside dst preserving aspect ratio.
func fitRect(dst, src image.Rectangle) image.Rectangle {
	sx := float64(dst.Dx()) / float64(src.Dx())
	sy := float64(dst.Dy()) / float64(src.Dy())
	scale := min(sx, sy)

	w := max(1, int(float64(src.Dx())*scale+0.5))
	h := max(1, int(float64(src.Dy())*scale+0.5))
	x0 := dst.Min.X + (dst.Dx()-w)/2
	y0 := dst.Min.Y + (dst.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}
