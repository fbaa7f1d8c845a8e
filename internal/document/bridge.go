package document

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// BridgeAdapter implements Adapter over an MCP connection to a host-side
// document bridge process. The bridge exposes the document primitives as
// MCP tools; this adapter is the only place that knows their names.
type BridgeAdapter struct {
	client *client.Client
	warnf  func(format string, args ...any)
}

// NewBridgeAdapter launches the bridge binary and initializes the MCP
// connection.
func NewBridgeAdapter(binary string, env []string) (*BridgeAdapter, error) {
	c, err := client.NewStdioMCPClient(binary, env)
	if err != nil {
		return nil, fmt.Errorf("starting document bridge (%s): %w", binary, err)
	}

	ctx := context.Background()
	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ClientInfo: mcp.Implementation{
				Name:    "quill",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing document bridge: %w", err)
	}

	return &BridgeAdapter{client: c, warnf: log.Printf}, nil
}

// call invokes one bridge tool and returns its text result.
func (b *BridgeAdapter) call(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("document bridge %s: %w", name, err)
	}

	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", fmt.Errorf("document bridge %s: %s", name, text)
	}
	return text, nil
}

func (b *BridgeAdapter) SelectionText(ctx context.Context) (string, error) {
	return b.call(ctx, "get_selection", nil)
}

func (b *BridgeAdapter) DocumentText(ctx context.Context, maxLen int) (string, error) {
	text, err := b.call(ctx, "get_document", map[string]any{"max_length": maxLen})
	if err != nil {
		return "", err
	}
	// The bridge may not enforce the bound itself.
	runes := []rune(text)
	if maxLen > 0 && len(runes) > maxLen {
		text = string(runes[:maxLen]) + TruncationMarker
	}
	return text, nil
}

func (b *BridgeAdapter) HasSelection(ctx context.Context) (bool, error) {
	text, err := b.call(ctx, "has_selection", nil)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(text))
}

func (b *BridgeAdapter) ReplaceSelection(ctx context.Context, content string, trackChanges bool) error {
	if !trackChanges {
		_, err := b.call(ctx, "replace_selection", map[string]any{"content": content})
		return err
	}

	prev, err := b.call(ctx, "get_revision_mode", nil)
	if err != nil {
		return err
	}
	if _, err := b.call(ctx, "set_revision_mode", map[string]any{"mode": string(TrackAll)}); err != nil {
		return err
	}
	// Restore on every exit path; a failed restore is a warning, not an
	// error, so the edit outcome is what the caller sees.
	defer func() {
		if _, rerr := b.call(ctx, "set_revision_mode", map[string]any{"mode": prev}); rerr != nil {
			b.warnf("restoring revision mode %q: %v", prev, rerr)
		}
	}()

	_, err = b.call(ctx, "replace_selection", map[string]any{"content": content})
	return err
}

func (b *BridgeAdapter) InsertText(ctx context.Context, pos InsertPosition, content string) error {
	if !ValidPosition(pos) {
		return fmt.Errorf("invalid insert position %q", pos)
	}
	_, err := b.call(ctx, "insert_text", map[string]any{
		"position": string(pos),
		"content":  content,
	})
	return err
}

func (b *BridgeAdapter) DeleteSelection(ctx context.Context) error {
	_, err := b.call(ctx, "delete_selection", nil)
	return err
}

func (b *BridgeAdapter) AddCommentToSelection(ctx context.Context, text string) error {
	_, err := b.call(ctx, "add_comment", map[string]any{"text": text})
	return err
}

// Close shuts down the bridge subprocess.
func (b *BridgeAdapter) Close() {
	b.client.Close()
}
