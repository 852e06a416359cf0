package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/googledatalab/igo/internal/config"
	"github.com/googledatalab/igo/internal/fragment"
	"github.com/googledatalab/igo/internal/protocol"
	"github.com/googledatalab/igo/internal/streams"
)

// ExecuteHandler drives the busy/idle state machine for execute_request:
// route interpreter output into capture pipes, run the fragment on its worker
// while two publishers forward output chunks, drain within a bounded grace
// period, reply ok or error, and bump the execution counter exactly once per
// non-empty cell regardless of outcome.
type ExecuteHandler struct {
	Resp   *Responder
	Frag   *fragment.Runner
	Tuning config.Tuning

	count int
}

func (h *ExecuteHandler) MsgType() string { return protocol.ExecuteRequestType }

// ExecutionCount returns the number of non-empty cells executed so far.
func (h *ExecuteHandler) ExecutionCount() int { return h.count }

func (h *ExecuteHandler) Handle(ctx context.Context, msg *protocol.Message) error {
	req, ok := msg.Content.(*protocol.ExecuteRequest)
	if !ok {
		return fmt.Errorf("execute handler: unexpected content %T", msg.Content)
	}
	if err := h.Resp.PublishStatus(msg, protocol.StateBusy); err != nil {
		return err
	}

	// Empty submissions do not pollute cell numbering: reply immediately,
	// no counter increment, no stream traffic.
	if strings.TrimSpace(req.Code) == "" {
		if err := h.Resp.Reply(msg, protocol.ExecuteReplyType, &protocol.ExecuteReply{
			Status:         protocol.StatusOK,
			ExecutionCount: h.count,
		}); err != nil {
			return err
		}
		return h.Resp.PublishStatus(msg, protocol.StateIdle)
	}

	runOK, err := h.runCell(ctx, msg, req.Code)
	if err != nil {
		// Capture setup failed; the cell never ran.
		h.Resp.Log.Error("execute pipeline failed", zap.Error(err))
		runOK = false
	} else {
		h.count++
	}

	reply := &protocol.ExecuteReply{Status: protocol.StatusOK, ExecutionCount: h.count}
	if !runOK {
		reply.Status = protocol.StatusError
		reply.EName = "ExecutionError"
		reply.EValue = "cell execution failed; see stderr output"
	}
	if err := h.Resp.Reply(msg, protocol.ExecuteReplyType, reply); err != nil {
		return err
	}
	return h.Resp.PublishStatus(msg, protocol.StateIdle)
}

// runCell executes one non-empty cell with live output forwarding. The
// returned bool is the fragment's success; the returned error reports
// pipeline faults only (pipe setup), never user-code failures.
func (h *ExecuteHandler) runCell(ctx context.Context, msg *protocol.Message, code string) (bool, error) {
	capture, err := streams.NewCapture()
	if err != nil {
		return false, err
	}
	defer capture.Close()

	// One bounded group carries the whole cell: the fragment run and the
	// two stream drains.
	g := &errgroup.Group{}
	g.SetLimit(h.Tuning.WorkerPoolSize)

	runDone := make(chan bool, 1)
	runCtx, cancel := context.WithTimeout(ctx, h.Tuning.RunDeadline)
	defer cancel()
	g.Go(func() error {
		runDone <- h.Frag.Run(runCtx, code, capture.StdoutSink(), capture.StderrSink())
		return nil
	})
	g.Go(func() error {
		return streams.Publish(capture.Stdout(), h.Tuning.StreamChunkInterval, func(text string) {
			if perr := h.Resp.PublishStream(msg, protocol.StreamStdout, text); perr != nil {
				h.Resp.Log.Warn("stdout publish failed", zap.Error(perr))
			}
		})
	})
	g.Go(func() error {
		return streams.Publish(capture.Stderr(), h.Tuning.StreamChunkInterval, func(text string) {
			if perr := h.Resp.PublishStream(msg, protocol.StreamStderr, text); perr != nil {
				h.Resp.Log.Warn("stderr publish failed", zap.Error(perr))
			}
		})
	})

	runOK := <-runDone

	// Closing the pipe write ends lets the publishers read to EOF. The reply
	// must not be sent before the drain grace period so clients see all
	// output first.
	capture.Close()

	drained := make(chan error, 1)
	go func() { drained <- g.Wait() }()
	select {
	case derr := <-drained:
		if derr != nil {
			h.Resp.Log.Warn("stream drain failed", zap.Error(derr))
		}
	case <-time.After(h.Tuning.StreamDrainTimeout):
		h.Resp.Log.Warn("stream drain timed out",
			zap.Duration("timeout", h.Tuning.StreamDrainTimeout))
	}
	return runOK, nil
}
