package wire

import (
	"errors"
	"sync"
)

// pipeBufferFrames bounds each direction of a Pipe so a runaway sender
// blocks instead of growing without limit.
const pipeBufferFrames = 256

// Pipe returns two connected in-memory Channels. Frames sent on one end are
// received on the other in order. Closing either end unblocks receivers on
// both ends. Used by tests and by anything that wants to drive the kernel
// in-process.
func Pipe() (Channel, Channel) {
	ab := make(chan string, pipeBufferFrames)
	ba := make(chan string, pipeBufferFrames)
	done := make(chan struct{})
	closeOnce := &sync.Once{}
	a := &pipeChannel{out: ab, in: ba, done: done, closeOnce: closeOnce}
	b := &pipeChannel{out: ba, in: ab, done: done, closeOnce: closeOnce}
	return a, b
}

type pipeChannel struct {
	out       chan string
	in        chan string
	done      chan struct{}
	closeOnce *sync.Once
}

var errPipeClosed = errors.New("pipe closed")

func (p *pipeChannel) SendMore(frame string) error { return p.Send(frame) }

func (p *pipeChannel) Send(frame string) error {
	// Check for a close first: a buffered channel would otherwise accept the
	// frame even after Close.
	select {
	case <-p.done:
		return commErr("send", errPipeClosed)
	default:
	}
	select {
	case p.out <- frame:
		return nil
	case <-p.done:
		return commErr("send", errPipeClosed)
	}
}

func (p *pipeChannel) RecvStr() (string, error) {
	// Drain frames already in flight even after a close, so a shutdown
	// reply sent just before Close is still observable.
	select {
	case frame := <-p.in:
		return frame, nil
	default:
	}
	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.done:
		return "", commErr("recv", errPipeClosed)
	}
}

func (p *pipeChannel) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
