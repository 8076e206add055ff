package cmd

import (
	"errors"
	"net"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"cursorbridge/cli/internal/backend"
	"cursorbridge/cli/internal/backend/remote"
	errs "cursorbridge/cli/internal/errors"
	"cursorbridge/cli/internal/logging"
	"cursorbridge/cli/internal/neterrors"
)

var (
	serveAddr   string
	serveTarget string
)

// serveCmd exposes a backend to grpc:// clients.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a backend over gRPC",
	Long: `The serve command exposes the selected backend as a bridge server. Clients
connect with --target grpc://host:port and see the same responses, in the same
order, as a local connection would produce. Every call runs on its own
connection handle; pools and stores are shared between calls.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, source, err := resolveTarget(serveTarget)
		if err != nil {
			return err
		}
		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		factory, release, err := backend.Shared(ctx, t, backendOptions())
		if err != nil {
			return neterrors.FormatNetworkError(err, "opening the "+string(t.Kind)+" backend", targetHost(t))
		}
		defer func() { _ = release() }()

		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return errs.Wrap(errs.Transport, "failed to listen on "+addr, err)
		}

		srv := grpc.NewServer()
		remote.NewServer(factory, logger, handleOptions()...).Register(srv)

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Bridge Server")).
			WithPadding(1).
			Printfln("Listening on %s\nBackend: %s (from %s)", lis.Addr(), logging.Mask(t.String()), source)
		logger.Info("serving", "addr", lis.Addr().String(), "backend", string(t.Kind))

		served := make(chan error, 1)
		go func() { served <- srv.Serve(lis) }()

		select {
		case err := <-served:
			if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return errs.Wrap(errs.Transport, "server stopped", err)
			}
		case <-ctx.Done():
			pterm.Info.Println("Shutting down")
			srv.GracefulStop()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7070", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVarP(&serveTarget, "target", "t", "", "Backend target to expose")
}
