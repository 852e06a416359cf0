package wire

import (
	"context"

	"github.com/go-zeromq/zmq4"
)

// SocketChannel adapts a ZeroMQ socket to the Channel interface. Outbound
// frames buffered by SendMore are flushed as one multipart message on Send;
// inbound multipart messages are handed out frame by frame from RecvStr.
//
// A SocketChannel is not safe for concurrent use; the kernel's dispatch loop
// is the sole reader and handlers send replies from the same goroutine.
type SocketChannel struct {
	sock    zmq4.Socket
	pending [][]byte
	inbox   [][]byte
}

// NewSocketChannel wraps an already-bound ZeroMQ socket.
func NewSocketChannel(sock zmq4.Socket) *SocketChannel {
	return &SocketChannel{sock: sock}
}

// Listen creates a socket of the given constructor bound to endpoint and
// wraps it in a SocketChannel.
func Listen(ctx context.Context, newSocket func(context.Context, ...zmq4.Option) zmq4.Socket, endpoint string) (*SocketChannel, error) {
	sock := newSocket(ctx)
	if err := sock.Listen(endpoint); err != nil {
		return nil, commErr("listen "+endpoint, err)
	}
	return NewSocketChannel(sock), nil
}

func (c *SocketChannel) SendMore(frame string) error {
	c.pending = append(c.pending, []byte(frame))
	return nil
}

func (c *SocketChannel) Send(frame string) error {
	frames := append(c.pending, []byte(frame))
	c.pending = nil
	if err := c.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return commErr("send", err)
	}
	return nil
}

func (c *SocketChannel) RecvStr() (string, error) {
	for len(c.inbox) == 0 {
		msg, err := c.sock.Recv()
		if err != nil {
			return "", commErr("recv", err)
		}
		c.inbox = msg.Frames
	}
	frame := c.inbox[0]
	c.inbox = c.inbox[1:]
	return string(frame), nil
}

func (c *SocketChannel) Close() error {
	if err := c.sock.Close(); err != nil {
		return commErr("close", err)
	}
	return nil
}

// EchoHeartbeat runs the heartbeat loop on a REP socket: every inbound
// message is echoed back unchanged until the socket fails or ctx ends.
// Clients treat a silent heartbeat as a dead kernel, so this runs for the
// whole process lifetime.
func EchoHeartbeat(ctx context.Context, sock zmq4.Socket) error {
	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return commErr("heartbeat recv", err)
		}
		if err := sock.Send(msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return commErr("heartbeat send", err)
		}
	}
}
