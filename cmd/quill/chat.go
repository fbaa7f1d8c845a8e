package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/quillpad/quill/internal/document"
	"github.com/quillpad/quill/internal/session"
)

var fileFlag string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant against a local text file",
	Long: `Start an interactive conversation against an in-memory document.

This is the development REPL: the document is a plain text file and the
assistant's edits apply to the in-memory copy. Use /save to write it back.

Examples:
  quill chat
  quill chat --file draft.txt
  quill chat --rules profiles/academic.yaml`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&fileFlag, "file", "", "Text file to load as the document")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var text string
	if fileFlag != "" {
		data, err := os.ReadFile(fileFlag)
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}
		text = string(data)
	}
	doc := document.NewMemoryAdapter(text)

	orch, store, cleanup, err := buildOrchestrator(cmd.Context(), cfg, doc)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Quill - Writing Assistant\n")
	fmt.Printf("Model: %s\n", cfg.Model.Model)
	if active := store.Active(); active != nil {
		fmt.Printf("Session: %s\n", active.Name)
	}
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36myou>\033[0m ",
		HistoryFile:     "/tmp/quill_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Per-request cancellation: Ctrl+C cancels the active request, not the
	// whole app.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			orch.Cancel()
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleCommand(input, doc, store) {
				continue
			}
		}

		entries := orch.HandleTurn(context.Background(), input)
		printEntries(entries)
	}
}

// printEntries renders a turn's display entries, skipping the user echo.
func printEntries(entries []session.DisplayMessage) {
	for _, e := range entries {
		switch {
		case e.Role == session.DisplayUser:
			continue
		case e.IsError:
			fmt.Printf("\033[31merror: %s\033[0m\n\n", e.Content)
		case e.Role == session.DisplayToolResult:
			for _, line := range strings.Split(strings.TrimSpace(e.Content), "\n") {
				fmt.Printf("  \033[90m│ %s\033[0m\n", line)
			}
			fmt.Println()
		default:
			fmt.Printf("\033[32mquill>\033[0m %s\n\n", e.Content)
		}
	}
}

func handleCommand(input string, doc *document.MemoryAdapter, store *session.Store) bool {
	fields := strings.Fields(input)
	rest := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		os.Exit(0)
	case "/select":
		if rest == "" {
			fmt.Println("Usage: /select <text to select>")
		} else if doc.SelectString(rest) {
			fmt.Println("Selected.")
		} else {
			fmt.Println("Text not found in document.")
		}
		fmt.Println()
	case "/doc":
		fmt.Println(doc.Text())
		fmt.Println()
	case "/save":
		if fileFlag == "" {
			fmt.Println("No --file to save to.")
		} else if err := os.WriteFile(fileFlag, []byte(doc.Text()), 0o644); err != nil {
			fmt.Printf("Saving: %v\n", err)
		} else {
			fmt.Printf("Saved %s\n", fileFlag)
		}
		fmt.Println()
	case "/new":
		sess := store.Create(context.Background(), rest)
		fmt.Printf("New session: %s\n\n", sess.Name)
	case "/sessions":
		for _, s := range store.List() {
			marker := " "
			if active := store.Active(); active != nil && active.ID == s.ID {
				marker = "*"
			}
			fmt.Printf("%s %s  %s  (%d messages)\n", marker, s.ID[:8], s.Name, len(s.Display))
		}
		fmt.Println()
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help            - Show this help")
		fmt.Println("  /select <text>   - Select text in the document")
		fmt.Println("  /doc             - Print the document")
		fmt.Println("  /save            - Write the document back to --file")
		fmt.Println("  /new [name]      - Start a new session")
		fmt.Println("  /sessions        - List sessions")
		fmt.Println("  /quit            - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return true
}
