package orchestrate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Child is a handle on a supervised pipeline process
type Child interface {
	Exited() bool
	Wait() error
	// Terminate asks the child to stop, escalating to a kill after grace
	Terminate(grace time.Duration) error
	Kill() error
}

// Launcher starts the two pipeline children. The production implementation
// execs the capturer and worker binaries installed beside the orchestrator;
// tests substitute scripted fakes.
type Launcher interface {
	StartCapturer(ctx context.Context, sessionID uuid.UUID) (Child, error)
	StartWorker(ctx context.Context, sessionID uuid.UUID) (Child, error)
}

// ExecLauncher launches sibling binaries resolved next to the running executable
type ExecLauncher struct {
	CapturerBin string
	WorkerBin   string
}

// NewExecLauncher resolves the child binaries beside the orchestrator binary
func NewExecLauncher() (*ExecLauncher, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	dir := filepath.Dir(self)
	return &ExecLauncher{
		CapturerBin: filepath.Join(dir, "capturer"),
		WorkerBin:   filepath.Join(dir, "worker"),
	}, nil
}

// StartCapturer implements Launcher
func (l *ExecLauncher) StartCapturer(ctx context.Context, sessionID uuid.UUID) (Child, error) {
	return l.start(ctx, l.CapturerBin, sessionID)
}

// StartWorker implements Launcher
func (l *ExecLauncher) StartWorker(ctx context.Context, sessionID uuid.UUID) (Child, error) {
	return l.start(ctx, l.WorkerBin, sessionID)
}

func (l *ExecLauncher) start(ctx context.Context, bin string, sessionID uuid.UUID) (Child, error) {
	cmd := exec.CommandContext(ctx, bin, "--session", sessionID.String())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", filepath.Base(bin), err)
	}
	c := &execChild{cmd: cmd, done: make(chan struct{})}
	go c.reap()
	return c, nil
}

type execChild struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

func (c *execChild) reap() {
	err := c.cmd.Wait()
	c.mu.Lock()
	c.waitErr = err
	c.mu.Unlock()
	close(c.done)
}

func (c *execChild) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *execChild) Wait() error {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitErr
}

func (c *execChild) Terminate(grace time.Duration) error {
	if c.Exited() {
		return nil
	}
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	select {
	case <-c.done:
		return nil
	case <-time.After(grace):
		return c.cmd.Process.Kill()
	}
}

func (c *execChild) Kill() error {
	if c.Exited() {
		return nil
	}
	return c.cmd.Process.Kill()
}
