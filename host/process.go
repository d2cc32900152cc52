package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pithecene-io/cellsolve/types"
)

// DefaultGrace is how long Close waits for the host to exit after its
// stdin is closed before killing it.
const DefaultGrace = 5 * time.Second

// ProcessConfig configures a spawned host process.
type ProcessConfig struct {
	// Command is the host executable.
	Command string
	// Args are passed to Command.
	Args []string
	// Env is appended to the inherited environment; later entries win.
	Env []string
	// Stderr receives the host's diagnostics. Defaults to os.Stderr.
	Stderr io.Writer
	// RunMeta is exported to the host as CELLSOLVE_RUN_ID.
	RunMeta *types.RunMeta
	// Grace bounds the shutdown wait in Close. Defaults to DefaultGrace.
	Grace time.Duration
}

// Process is a Host backed by a child process speaking the frame protocol
// on its stdin and stdout.
type Process struct {
	*Client

	config *ProcessConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	waitOnce sync.Once
	waitDone chan struct{}
	waitCode int
	waitErr  error
}

var _ Host = (*Process)(nil)

// StartProcess starts the host command and connects a Client to it.
func StartProcess(ctx context.Context, config *ProcessConfig) (*Process, error) {
	if config.Command == "" {
		return nil, errors.New("host command is required")
	}

	cmd := exec.CommandContext(ctx, config.Command, config.Args...)
	env := os.Environ()
	if config.RunMeta != nil {
		env = append(env, "CELLSOLVE_RUN_ID="+config.RunMeta.RunID)
	}
	cmd.Env = deduplicateEnv(append(env, config.Env...))
	cmd.Stderr = config.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start host: %w", err)
	}

	return &Process{
		Client:   NewClient(stdout, stdin),
		config:   config,
		cmd:      cmd,
		stdin:    stdin,
		waitDone: make(chan struct{}),
	}, nil
}

// Close closes the host's stdin and waits for it to exit. A host still
// running after the grace period is killed. A non-zero exit status is
// reported as an error.
func (p *Process) Close() error {
	closeErr := p.Client.Close()

	grace := p.config.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	go p.wait()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.waitDone:
	case <-timer.C:
		if err := p.Kill(); err != nil {
			return fmt.Errorf("failed to kill host after %s: %w", grace, err)
		}
		<-p.waitDone
		return fmt.Errorf("host did not exit within %s and was killed", grace)
	}

	if p.waitErr != nil {
		return p.waitErr
	}
	if p.waitCode != 0 {
		return fmt.Errorf("host exited with status %d", p.waitCode)
	}
	return closeErr
}

// Wait waits for the host to exit and returns its exit code. It is safe
// to call more than once.
func (p *Process) Wait() (int, error) {
	if p.cmd == nil {
		return 0, errors.New("host not started")
	}
	p.wait()
	return p.waitCode, p.waitErr
}

func (p *Process) wait() {
	p.waitOnce.Do(func() {
		defer close(p.waitDone)
		err := p.cmd.Wait()
		if err == nil {
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.waitCode = -1
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				p.waitCode = status.ExitStatus()
			}
			return
		}
		p.waitErr = fmt.Errorf("host wait failed: %w", err)
	})
	<-p.waitDone
}

// Kill terminates the host process.
func (p *Process) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
