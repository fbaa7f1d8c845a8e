package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillpad/quill/internal/config"
	"github.com/quillpad/quill/internal/document"
	"github.com/quillpad/quill/internal/llm"
	"github.com/quillpad/quill/internal/orchestrator"
	"github.com/quillpad/quill/internal/session"
	"github.com/quillpad/quill/internal/storage/sqlite"
)

var (
	modelFlag string
	rulesFlag string
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Quill - AI writing assistant sidecar for word processors",
	Long: `Quill is the local sidecar behind a word-processor AI sidebar.

It manages chat sessions, talks to an OpenAI-compatible endpoint and
applies the model's edits to the document through a small tool set.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&rulesFlag, "rules", "", "Path to a writing rules profile (YAML)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the shared flag overrides on top of the file config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if modelFlag != "" {
		cfg.Model.Model = modelFlag
	}
	if rulesFlag != "" {
		rules, err := config.LoadRulesProfile(rulesFlag)
		if err != nil {
			return nil, fmt.Errorf("loading rules profile: %w", err)
		}
		cfg.Rules = rules
	}
	return cfg, nil
}

// buildOrchestrator wires the full stack: sqlite-backed sessions, the chat
// client and the turn loop over the given document adapter.
func buildOrchestrator(ctx context.Context, cfg *config.Config, doc document.Adapter) (*orchestrator.Orchestrator, *session.Store, func(), error) {
	kv, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	store := session.NewStore(ctx, kv,
		session.WithMaxSessions(cfg.Limits.MaxSessions),
		session.WithMaxMessages(cfg.Limits.MaxMessages))

	client := llm.NewClient(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Model,
		llm.WithTimeout(time.Duration(cfg.Model.TimeoutSeconds)*time.Second))

	orch := orchestrator.New(store, client, doc, orchestrator.Options{
		RulesText:    cfg.Rules.Text,
		ExcerptChars: cfg.Limits.DocumentExcerptChars,
		Temperature:  cfg.Model.Temperature,
		MaxTokens:    cfg.Model.MaxTokens,
	})

	cleanup := func() { kv.Close() }
	return orch, store, cleanup, nil
}
