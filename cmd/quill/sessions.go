package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillpad/quill/internal/config"
	"github.com/quillpad/quill/internal/session"
	"github.com/quillpad/quill/internal/storage/sqlite"
)

var forceFlag bool

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session", "s"},
	Short:   "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	RunE:  runSessionsList,
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <name>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionsRename,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsRenameCmd, sessionsDeleteCmd)

	sessionsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func openStore(ctx context.Context) (*session.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	kv, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	store := session.NewStore(ctx, kv,
		session.WithMaxSessions(cfg.Limits.MaxSessions),
		session.WithMaxMessages(cfg.Limits.MaxMessages))
	return store, func() { kv.Close() }, nil
}

// resolve matches a full or prefix session id.
func resolve(store *session.Store, id string) (*session.Session, error) {
	if sess, ok := store.Get(id); ok {
		return sess, nil
	}
	for _, s := range store.List() {
		if strings.HasPrefix(s.ID, id) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session %q not found", id)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	sessions := store.List()
	active := store.Active()

	fmt.Printf("  %-10s %-30s %-10s %s\n", "ID", "NAME", "MESSAGES", "UPDATED")
	fmt.Println(strings.Repeat("─", 68))

	for _, s := range sessions {
		marker := " "
		if active != nil && active.ID == s.ID {
			marker = "*"
		}
		name := s.Name
		if len([]rune(name)) > 28 {
			name = string([]rune(name)[:28]) + ".."
		}
		fmt.Printf("%s %-10s %-30s %-10d %s\n",
			marker, s.ID[:8], name, len(s.Display), timeAgo(s.UpdatedAt))
	}
	return nil
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := resolve(store, args[0])
	if err != nil {
		return err
	}
	if err := store.Rename(cmd.Context(), sess.ID, args[1]); err != nil {
		return err
	}
	fmt.Printf("Renamed session %s to %q\n", sess.ID[:8], args[1])
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := resolve(store, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		fmt.Printf("Delete session %s - %q? [y/N] ", sess.ID[:8], sess.Name)
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	deleted, err := store.Delete(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}
	if deleted {
		fmt.Printf("Deleted session %s\n", sess.ID[:8])
	} else {
		fmt.Printf("Cleared session %s (last remaining session)\n", sess.ID[:8])
	}
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
