// Package tuitest runs a terminal program inside a pseudo terminal, replays
// scripted keystrokes and records everything it draws.
package tuitest

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/errors"
)

const (
	defaultWidth   = 120
	defaultHeight  = 32
	defaultTimeout = 10 * time.Second
	pollInterval   = 20 * time.Millisecond
)

// Step is one scripted interaction. WaitFor blocks until the plain-text
// output contains the given text, then Delay elapses, then Input is written.
type Step struct {
	WaitFor string
	Delay   time.Duration
	Input   []byte
}

// Config configures how the harness spawns and drives the program.
type Config struct {
	Command        []string
	Dir            string
	Env            []string
	Width          int
	Height         int
	Steps          []Step
	Timeout        time.Duration
	AllowInterrupt bool
}

// Recording is the raw terminal stream plus its parsed frames.
type Recording struct {
	Raw      []byte
	Frames   []Frame
	Duration time.Duration
}

// transcript collects PTY output and answers terminal capability queries
// so programs that probe the terminal do not stall.
type transcript struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	tail   []byte
	writer func([]byte)
}

func (t *transcript) write(chunk []byte) {
	t.mu.Lock()
	t.buf.Write(chunk)
	t.tail = append(t.tail, chunk...)
	var replies [][]byte
	for {
		reply, rest, ok := answerQuery(t.tail)
		if !ok {
			break
		}
		replies = append(replies, reply)
		t.tail = rest
	}
	if len(t.tail) > 256 {
		t.tail = append([]byte(nil), t.tail[len(t.tail)-64:]...)
	}
	t.mu.Unlock()
	for _, reply := range replies {
		t.writer(reply)
	}
}

func (t *transcript) contains(text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Contains(stripANSI(t.buf.String()), text)
}

func (t *transcript) bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf.Bytes()...)
}

// Run executes cfg.Command inside a PTY and replays cfg.Steps against it.
func Run(ctx context.Context, cfg Config) (*Recording, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("tuitest: command is required")
	}
	width, height, timeout := cfg.Width, cfg.Height, cfg.Timeout
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnv(cfg.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(height), Cols: uint16(width)})
	if err != nil {
		return nil, errors.Wrap(err, "tuitest: start program")
	}
	defer func() { _ = ptmx.Close() }()

	out := &transcript{writer: func(b []byte) { _, _ = ptmx.Write(b) }}
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		buf := make([]byte, 4096)
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				out.write(buf[:n])
			}
			if readErr != nil {
				return
			}
		}
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	start := time.Now()
	for i, step := range cfg.Steps {
		if step.WaitFor != "" {
			if err := waitFor(ctx, out, step.WaitFor); err != nil {
				return nil, errors.Wrapf(err, "tuitest: step %d waiting for %q", i, step.WaitFor)
			}
		}
		if step.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Wrapf(ctx.Err(), "tuitest: step %d", i)
			case <-time.After(step.Delay):
			}
		}
		if len(step.Input) > 0 {
			if _, err := ptmx.Write(step.Input); err != nil {
				return nil, errors.Wrapf(err, "tuitest: step %d write input", i)
			}
		}
	}

	select {
	case err := <-waitErr:
		if err != nil && !(cfg.AllowInterrupt && strings.Contains(err.Error(), "signal: interrupt")) {
			return nil, errors.Wrap(err, "tuitest: program exited with error")
		}
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "tuitest: timeout waiting for program exit")
	}

	_ = ptmx.Close()
	<-copyDone

	raw := out.bytes()
	return &Recording{Raw: raw, Frames: parseFrames(raw), Duration: time.Since(start)}, nil
}

func waitFor(ctx context.Context, out *transcript, text string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for !out.contains(text) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func buildEnv(extra []string) []string {
	env := append(os.Environ(), extra...)
	for _, entry := range env {
		if strings.HasPrefix(entry, "TERM=") {
			return env
		}
	}
	return append(env, "TERM=xterm-256color")
}

var (
	// KeyEnter sends a carriage return.
	KeyEnter = []byte{'\r'}
	// KeyCtrlC interrupts the program.
	KeyCtrlC = []byte{3}
	// KeyEsc sends a lone escape.
	KeyEsc = []byte{27}
	// KeySpace sends a space.
	KeySpace = []byte{' '}
)
