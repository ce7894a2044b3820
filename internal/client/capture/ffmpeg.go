package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

const stopGrace = 5 * time.Second

// FFmpegDevice records a V4L2 camera and an ALSA microphone through ffmpeg,
// encoding VP8 and Opus into WebM on stdout.
type FFmpegDevice struct {
	Binary string
	Video  string
	Audio  string
	Width  int
	Height int
	FPS    int

	mu   sync.Mutex
	path string
	rec  *ffmpegRecorder
}

// NewFFmpegDevice returns a device for the default camera and microphone at
// 1280x720, 30 fps.
func NewFFmpegDevice() *FFmpegDevice {
	return &FFmpegDevice{
		Binary: "ffmpeg",
		Video:  "/dev/video0",
		Audio:  "default",
		Width:  1280,
		Height: 720,
		FPS:    30,
	}
}

func (d *FFmpegDevice) ContentType() string { return "video/webm" }

func (d *FFmpegDevice) Acquire(_ context.Context) error {
	path, err := exec.LookPath(d.Binary)
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", d.Binary, err)
	}
	if _, err := os.Stat(d.Video); err != nil {
		return fmt.Errorf("camera %s: %w", d.Video, err)
	}
	d.mu.Lock()
	d.path = path
	d.mu.Unlock()
	return nil
}

func (d *FFmpegDevice) args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(d.FPS),
		"-video_size", fmt.Sprintf("%dx%d", d.Width, d.Height),
		"-i", d.Video,
		"-f", "alsa", "-i", d.Audio,
		"-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1M",
		"-c:a", "libopus",
		"-f", "webm", "pipe:1",
	}
}

func (d *FFmpegDevice) Start(ctx context.Context, w io.Writer) (Recorder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path == "" {
		return nil, ErrNotReady
	}
	if d.rec != nil {
		select {
		case <-d.rec.exited:
		default:
			return nil, ErrBusy
		}
	}

	cmd := exec.CommandContext(ctx, d.path, d.args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	r := &ffmpegRecorder{cmd: cmd, stdin: stdin, lost: make(chan error, 1), exited: make(chan struct{})}
	cmd.Stdout = w
	cmd.Stderr = &r.stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go r.wait()
	d.rec = r
	return r, nil
}

func (d *FFmpegDevice) Release() error {
	d.mu.Lock()
	rec := d.rec
	d.rec = nil
	d.path = ""
	d.mu.Unlock()
	if rec != nil {
		return rec.Stop()
	}
	return nil
}

type ffmpegRecorder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	stopping bool
	mu       sync.Mutex
	waitErr  error
	lost     chan error
	exited   chan struct{}
	once     sync.Once
	stopErr  error
}

func (r *ffmpegRecorder) wait() {
	err := r.cmd.Wait()
	r.mu.Lock()
	r.waitErr = err
	stopping := r.stopping
	r.mu.Unlock()
	close(r.exited)
	if !stopping {
		if err == nil {
			err = errors.New("encoder exited")
		}
		r.lost <- fmt.Errorf("%w: %s", err, bytes.TrimSpace(r.stderr.Bytes()))
	}
}

func (r *ffmpegRecorder) Lost() <-chan error { return r.lost }

// Stop asks ffmpeg to quit by writing q, which flushes the WebM trailer, and
// kills it after a grace period.
func (r *ffmpegRecorder) Stop() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.stopping = true
		r.mu.Unlock()

		_, _ = io.WriteString(r.stdin, "q")
		_ = r.stdin.Close()

		select {
		case <-r.exited:
		case <-time.After(stopGrace):
			_ = r.cmd.Process.Kill()
			<-r.exited
			r.stopErr = errors.New("encoder did not exit after q")
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		var exitErr *exec.ExitError
		if r.waitErr != nil && !errors.As(r.waitErr, &exitErr) {
			r.stopErr = r.waitErr
		}
	})
	return r.stopErr
}
