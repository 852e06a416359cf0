// Package handlers implements the per-message-type handlers that sit between
// the dispatch loop and the execution pipeline.
package handlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/googledatalab/igo/internal/config"
	"github.com/googledatalab/igo/internal/protocol"
	"github.com/googledatalab/igo/internal/wire"
)

// ImplementationVersion is reported in kernel_info_reply.
const ImplementationVersion = "1.0.0"

// Handler processes every message of one msg_type.
type Handler interface {
	MsgType() string
	Handle(ctx context.Context, msg *protocol.Message) error
}

// Responder owns the outbound side: replies go to the shell channel, status
// and stream events to the iopub channel. Publishing is mutex-guarded
// because the two stream publishers emit concurrently during a run.
type Responder struct {
	Shell  wire.Channel
	IOPub  wire.Channel
	Signer *protocol.Signer
	Log    *zap.Logger

	shellMu sync.Mutex
	iopubMu sync.Mutex
}

// Reply sends a response to msg on the shell channel.
func (r *Responder) Reply(msg *protocol.Message, msgType string, content any) error {
	r.shellMu.Lock()
	defer r.shellMu.Unlock()
	return protocol.Write(r.Shell, msg.Reply(msgType, content, nil), r.Signer)
}

// PublishStatus announces a busy/idle transition caused by msg.
func (r *Responder) PublishStatus(msg *protocol.Message, state string) error {
	return r.publish(msg, protocol.StatusType, &protocol.Status{ExecutionState: state})
}

// PublishStream forwards one chunk of captured output caused by msg.
func (r *Responder) PublishStream(msg *protocol.Message, name, text string) error {
	return r.publish(msg, protocol.StreamType, &protocol.Stream{Name: name, Text: text})
}

func (r *Responder) publish(msg *protocol.Message, msgType string, content any) error {
	r.iopubMu.Lock()
	defer r.iopubMu.Unlock()
	return protocol.Write(r.IOPub, msg.Publish(msgType, content, nil), r.Signer)
}

// KernelInfoHandler answers kernel_info_request with the kernel's static
// identity. Read-only, no side effects.
type KernelInfoHandler struct {
	Resp *Responder
}

func (h *KernelInfoHandler) MsgType() string { return protocol.KernelInfoRequestType }

func (h *KernelInfoHandler) Handle(ctx context.Context, msg *protocol.Message) error {
	return h.Resp.Reply(msg, protocol.KernelInfoReplyType, &protocol.KernelInfoReply{
		ProtocolVersion:       protocol.Version,
		Implementation:        "igo",
		ImplementationVersion: ImplementationVersion,
		LanguageInfo: protocol.LanguageInfo{
			Name:          "go",
			Version:       runtime.Version(),
			FileExtension: ".go",
		},
		Banner: "igo: Go kernel for DataLab notebooks",
	})
}

// ConnectHandler answers connect_request with the channel port assignments.
type ConnectHandler struct {
	Resp *Responder
	Conn *config.ConnectionInfo
}

func (h *ConnectHandler) MsgType() string { return protocol.ConnectRequestType }

func (h *ConnectHandler) Handle(ctx context.Context, msg *protocol.Message) error {
	return h.Resp.Reply(msg, protocol.ConnectReplyType, &protocol.ConnectReply{
		ShellPort: h.Conn.ShellPort,
		IOPubPort: h.Conn.IOPubPort,
		StdinPort: h.Conn.StdinPort,
		HBPort:    h.Conn.HBPort,
	})
}

// ShutdownHandler acknowledges shutdown_request and then terminates the
// kernel through the injected Terminate hook. Tests inject a no-op.
type ShutdownHandler struct {
	Resp      *Responder
	Terminate func(restart bool)
}

func (h *ShutdownHandler) MsgType() string { return protocol.ShutdownRequestType }

func (h *ShutdownHandler) Handle(ctx context.Context, msg *protocol.Message) error {
	req, ok := msg.Content.(*protocol.ShutdownRequest)
	if !ok {
		return fmt.Errorf("shutdown handler: unexpected content %T", msg.Content)
	}
	if err := h.Resp.Reply(msg, protocol.ShutdownReplyType, &protocol.ShutdownReply{Restart: req.Restart}); err != nil {
		return err
	}
	h.Resp.Log.Info("shutdown requested", zap.Bool("restart", req.Restart))
	if h.Terminate != nil {
		h.Terminate(req.Restart)
	}
	return nil
}
