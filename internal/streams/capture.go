// Package streams carries a running fragment's output: a pipe pair per run
// whose write ends are installed as the interpreter's output targets, drained
// as near-real-time chunks so clients see output while the code is still
// running without the program ever blocking on a slow consumer.
package streams

import (
	"fmt"
	"os"
)

// Capture is the pipe pair one run's output flows through. The write ends
// become the interpreter's output targets for the duration of the run; the
// read ends are drained by the publishers.
type Capture struct {
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
	closed           bool
}

// NewCapture opens the pipes. Close must be called once the run is over, or
// the publishers never see EOF.
func NewCapture() (*Capture, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	return &Capture{stdoutR: outR, stdoutW: outW, stderrR: errR, stderrW: errW}, nil
}

// Stdout returns the read end of the captured stdout stream.
func (c *Capture) Stdout() *os.File { return c.stdoutR }

// Stderr returns the read end of the captured stderr stream.
func (c *Capture) Stderr() *os.File { return c.stderrR }

// StdoutSink returns the write end of the captured stdout stream.
func (c *Capture) StdoutSink() *os.File { return c.stdoutW }

// StderrSink returns the write end of the captured stderr stream, which also
// carries the kernel's user-facing diagnostics.
func (c *Capture) StderrSink() *os.File { return c.stderrW }

// Close closes the write ends, which lets the publishers drain to EOF.
// Idempotent.
func (c *Capture) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.stdoutW.Close()
	c.stderrW.Close()
}
