package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quillpad/quill/internal/document"
	"github.com/quillpad/quill/internal/server"
)

var (
	portFlag   int
	bridgeFlag string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Quill sidecar server",
	Long: `Start the HTTP server the Word sidebar connects to.

REST endpoints are under /api; the chat turn loop runs over the
per-session WebSocket at /api/sessions/{id}/ws.
With --bridge, document operations go to the given bridge binary over
stdio; without it an empty in-memory document is used, which is only
useful for development.

Examples:
  quill serve
  quill serve --port 9090
  quill serve --bridge ./word-bridge`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&bridgeFlag, "bridge", "", "Document bridge binary (stdio)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var doc document.Adapter
	if bridgeFlag != "" {
		bridge, err := document.NewBridgeAdapter(bridgeFlag, os.Environ())
		if err != nil {
			return fmt.Errorf("starting document bridge: %w", err)
		}
		defer bridge.Close()
		doc = bridge
	} else {
		doc = document.NewMemoryAdapter("")
	}

	orch, store, cleanup, err := buildOrchestrator(cmd.Context(), cfg, doc)
	if err != nil {
		return err
	}
	defer cleanup()

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(store, orch)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	return srv.Start(port)
}
