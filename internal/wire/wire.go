// Package wire provides the frame-level channel the kernel speaks over.
//
// A Channel carries ordered opaque frames. Multi-frame messages are built by
// calling SendMore for every frame but the last and Send for the final one;
// RecvStr returns the next frame of the inbound stream, blocking until one is
// available. Transport-level faults surface as *CommunicationError and are
// fatal to the channel.
package wire

import "fmt"

// Channel is a bidirectional, ordered, message-framed duplex transport.
type Channel interface {
	// Send transmits frame as the final frame of the current message.
	Send(frame string) error

	// SendMore buffers frame as a non-final frame of the current message.
	SendMore(frame string) error

	// RecvStr blocks until the next inbound frame is available.
	RecvStr() (string, error)

	// Close releases the underlying transport. Blocked receivers on either
	// end are unblocked with a *CommunicationError.
	Close() error
}

// CommunicationError reports a transport-level fault on a Channel. It is
// fatal to the current request and is not retried by the kernel core.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("wire: %s failed", e.Op)
	}
	return fmt.Sprintf("wire: %s failed: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func commErr(op string, err error) error {
	return &CommunicationError{Op: op, Err: err}
}
