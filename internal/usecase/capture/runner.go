package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// SegmentSpec describes one capture attempt handed to the runner
type SegmentSpec struct {
	StreamURL      string
	OutputPath     string
	DurationSec    int
	SampleRate     int
	Channels       int
	AudioFormat    string // wav | flac
	SilenceTimeout time.Duration
}

// Process is a handle on a running capture process
type Process interface {
	// Exited reports whether the process has finished, without blocking
	Exited() bool
	// Wait blocks until the process finishes and returns its exit error, if any
	Wait() error
	// ExitCode returns the exit code after the process finished
	ExitCode() int
	// Terminate asks the process to stop, escalating to a kill after grace
	Terminate(grace time.Duration) error
}

// Runner launches capture processes. The production implementation shells out
// to ffmpeg; tests substitute a scripted fake.
type Runner interface {
	Start(ctx context.Context, spec SegmentSpec) (Process, error)
}

// FFmpegRunner drives ffmpeg against the stream URL
type FFmpegRunner struct {
	Bin string
}

// NewFFmpegRunner creates a runner using the given ffmpeg binary
func NewFFmpegRunner(bin string) *FFmpegRunner {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegRunner{Bin: bin}
}

// Start launches ffmpeg for one segment
func (r *FFmpegRunner) Start(ctx context.Context, spec SegmentSpec) (Process, error) {
	args := []string{
		"-y",
		"-i", spec.StreamURL,
		"-t", strconv.Itoa(spec.DurationSec),
		"-ar", strconv.Itoa(spec.SampleRate),
		"-ac", strconv.Itoa(spec.Channels),
		"-vn",
	}
	if spec.AudioFormat == "flac" {
		args = append(args, "-codec:a", "flac")
	} else {
		args = append(args, "-codec:a", "pcm_s16le")
	}
	args = append(args, spec.OutputPath)

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", r.Bin, err)
	}

	p := &ffmpegProcess{cmd: cmd, done: make(chan struct{})}
	go p.reap()
	return p, nil
}

type ffmpegProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

func (p *ffmpegProcess) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()
	close(p.done)
}

func (p *ffmpegProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *ffmpegProcess) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

func (p *ffmpegProcess) ExitCode() int {
	<-p.done
	return p.cmd.ProcessState.ExitCode()
}

func (p *ffmpegProcess) Terminate(grace time.Duration) error {
	if p.Exited() {
		return nil
	}
	if err := p.cmd.Process.Signal(terminateSignal); err != nil {
		return err
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
		return p.cmd.Process.Kill()
	}
}
