package kernel

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/googledatalab/igo/internal/compile"
	"github.com/googledatalab/igo/internal/config"
	"github.com/googledatalab/igo/internal/fragment"
	"github.com/googledatalab/igo/internal/handlers"
	"github.com/googledatalab/igo/internal/protocol"
	"github.com/googledatalab/igo/internal/wire"
)

// Serve binds the kernel's sockets from the connection file, assembles the
// execution pipeline, and runs the dispatch loop until a shutdown request or
// a transport fault. It returns nil on an orderly shutdown.
func Serve(ctx context.Context, conn *config.ConnectionInfo, tuning config.Tuning, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shell, err := wire.Listen(ctx, zmq4.NewRouter, conn.Endpoint(conn.ShellPort))
	if err != nil {
		return err
	}
	defer shell.Close()

	iopub, err := wire.Listen(ctx, zmq4.NewPub, conn.Endpoint(conn.IOPubPort))
	if err != nil {
		return err
	}
	defer iopub.Close()

	hb := zmq4.NewRep(ctx)
	if err := hb.Listen(conn.Endpoint(conn.HBPort)); err != nil {
		return &wire.CommunicationError{Op: "listen heartbeat", Err: err}
	}
	defer hb.Close()
	go func() {
		if hbErr := wire.EchoHeartbeat(ctx, hb); hbErr != nil {
			log.Warn("heartbeat loop ended", zap.Error(hbErr))
		}
	}()

	comp, err := compile.New(compile.Options{})
	if err != nil {
		return err
	}
	frag := fragment.NewRunner(comp, fragment.NewExecutionState())

	signer := protocol.NewSigner(conn.Key)
	resp := &handlers.Responder{Shell: shell, IOPub: iopub, Signer: signer, Log: log}

	k := New(shell, signer, log)
	k.Register(&handlers.KernelInfoHandler{Resp: resp})
	k.Register(&handlers.ConnectHandler{Resp: resp, Conn: conn})
	k.Register(&handlers.ExecuteHandler{Resp: resp, Frag: frag, Tuning: tuning})
	k.Register(&handlers.ShutdownHandler{Resp: resp, Terminate: func(restart bool) {
		// Cancelling the context tears down the sockets, which unblocks the
		// receive loop; Run then returns nil because ctx is done.
		cancel()
		shell.Close()
	}})

	log.Info("kernel serving",
		zap.String("shell", conn.Endpoint(conn.ShellPort)),
		zap.String("iopub", conn.Endpoint(conn.IOPubPort)),
		zap.String("hb", conn.Endpoint(conn.HBPort)))
	return k.Run(ctx)
}
