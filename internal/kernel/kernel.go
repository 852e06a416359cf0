// Package kernel owns the top-level communication loop: receive an envelope
// from the shell channel, resolve it to a handler, dispatch, repeat. One
// request is processed to completion before the next receive, which is what
// serializes executions and makes the execution-state mutation safe without
// locks.
package kernel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/googledatalab/igo/internal/handlers"
	"github.com/googledatalab/igo/internal/protocol"
	"github.com/googledatalab/igo/internal/wire"
)

// Kernel is the dispatch loop over a shell channel.
type Kernel struct {
	shell    wire.Channel
	signer   *protocol.Signer
	registry map[string]handlers.Handler
	log      *zap.Logger
}

// New builds a kernel reading from shell.
func New(shell wire.Channel, signer *protocol.Signer, log *zap.Logger) *Kernel {
	return &Kernel{
		shell:    shell,
		signer:   signer,
		registry: map[string]handlers.Handler{},
		log:      log,
	}
}

// Register installs h for its message type, replacing any previous handler.
func (k *Kernel) Register(h handlers.Handler) {
	k.registry[h.MsgType()] = h
}

// Run services the channel until a transport fault or until ctx is done.
// Decode faults are logged and dropped; the loop keeps serving. Only
// transport faults propagate to the caller.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		msg, err := protocol.Read(k.shell, k.signer)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				k.log.Warn("dropping undecodable message", zap.String("reason", decodeErr.Reason))
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		handler, ok := k.registry[msg.Header.MsgType]
		if !ok {
			// The registry and the content registry agree, so this only
			// happens for a supported type with no handler installed.
			k.log.Warn("no handler for message", zap.String("msg_type", msg.Header.MsgType))
			continue
		}

		k.log.Debug("dispatching",
			zap.String("msg_type", msg.Header.MsgType),
			zap.String("msg_id", msg.Header.MsgID))
		if err := handler.Handle(ctx, msg); err != nil {
			var commErr *wire.CommunicationError
			if errors.As(err, &commErr) {
				return err
			}
			k.log.Error("handler failed",
				zap.String("msg_type", msg.Header.MsgType),
				zap.Error(err))
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
