package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fainderql/queryengine/internal/fulltext"
	"github.com/fainderql/queryengine/internal/fulltext/bleveindex"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the full-text reference backend as a JSON-RPC server",
		Long: `serve starts the in-process bleve-backed full-text backend (C4)
and exposes it over the JSON-RPC protocol the RPCConnector speaks, so
'query'/'update-indices' (run as separate, short-lived processes) can
reach it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := bleveindex.New()
	if err != nil {
		return fmt.Errorf("create fulltext backend: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.FullText.Host, cfg.FullText.Port)
	server, err := fulltext.NewServer(addr, backend)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer server.Close()

	slog.Info("fulltext server listening", slog.String("addr", server.Addr().String()))
	go server.Serve()

	fmt.Fprintf(cmd.OutOrStdout(), "fulltext server listening on %s\n", server.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("fulltext server shutting down")
	return nil
}
