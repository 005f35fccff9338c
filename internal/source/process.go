package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/log"
)

// DefaultStallTimeout is how long the estimator may stay silent before it
// is restarted.
const DefaultStallTimeout = 30 * time.Second

// ErrNoCommand is returned when no estimator command is configured.
var ErrNoCommand = errors.New("no estimator command configured")

// ProcessSource runs an estimator as a subprocess and decodes bundles from
// its stdout. The process is started lazily on the first Next and restarted
// when it produces nothing for the stall timeout.
type ProcessSource struct {
	name         string
	args         []string
	stallTimeout time.Duration

	mu       sync.Mutex
	cmd      *exec.Cmd
	reader   *ReaderSource
	started  bool
	restarts int
}

// NewProcessSource prepares a source for command. A zero stallTimeout uses
// DefaultStallTimeout.
func NewProcessSource(command []string, stallTimeout time.Duration) (*ProcessSource, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, ErrNoCommand
	}
	if stallTimeout <= 0 {
		stallTimeout = DefaultStallTimeout
	}
	return &ProcessSource{
		name:         command[0],
		args:         command[1:],
		stallTimeout: stallTimeout,
	}, nil
}

// Next returns the next bundle from the estimator. It returns io.EOF once
// the estimator exits on its own.
func (p *ProcessSource) Next(ctx context.Context) (landmark.Bundle, error) {
	for {
		p.mu.Lock()
		if err := p.ensureStarted(); err != nil {
			p.mu.Unlock()
			return landmark.Bundle{}, err
		}
		reader := p.reader
		p.mu.Unlock()

		readCtx, cancel := context.WithTimeout(ctx, p.stallTimeout)
		b, err := reader.Next(readCtx)
		cancel()

		switch {
		case err == nil:
			return b, nil
		case ctx.Err() != nil:
			return landmark.Bundle{}, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("estimator stalled, restarting", "command", p.name, "timeout", p.stallTimeout)
			p.mu.Lock()
			p.shutdown()
			p.restarts++
			p.mu.Unlock()
		case errors.Is(err, io.EOF):
			p.mu.Lock()
			p.shutdown()
			p.mu.Unlock()
			return landmark.Bundle{}, io.EOF
		default:
			return landmark.Bundle{}, err
		}
	}
}

// Running reports whether the estimator process is up.
func (p *ProcessSource) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Restarts returns how many times a stalled estimator was restarted.
func (p *ProcessSource) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

// Close stops the estimator.
func (p *ProcessSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown()
}

func (p *ProcessSource) ensureStarted() error {
	if p.started {
		return nil
	}

	cmd := exec.Command(p.name, p.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start estimator: %w", err)
	}

	p.cmd = cmd
	p.reader = NewReaderSource(stdout)
	p.started = true

	log.Info("estimator started", "command", p.name, "pid", cmd.Process.Pid)
	return nil
}

func (p *ProcessSource) shutdown() error {
	if !p.started {
		return nil
	}

	p.reader.Close()
	p.cmd.Process.Kill()
	err := p.cmd.Wait()

	p.started = false
	p.cmd = nil
	p.reader = nil

	log.Info("estimator stopped", "command", p.name)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
