package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/quillpad/quill/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // sidebar and sidecar share localhost
	},
}

// wsIncoming is a message from the sidebar.
type wsIncoming struct {
	Type    string `json:"type"` // "message" or "cancel"
	Content string `json:"content,omitempty"`
}

// wsOutgoing is a message to the sidebar.
type wsOutgoing struct {
	Type    string                  `json:"type"` // "display", "done" or "error"
	Entry   *session.DisplayMessage `json:"entry,omitempty"`
	Content string                  `json:"content,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Select(r.Context(), id); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Writes come from turn goroutines as well as the read loop.
	var wsMu sync.Mutex
	send := func(v wsOutgoing) {
		wsMu.Lock()
		defer wsMu.Unlock()
		wsWriteJSON(conn, v)
	}

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Printf("websocket read error: %v", err)
			return
		}

		switch msg.Type {
		case "cancel":
			s.orch.Cancel()

		case "message":
			if msg.Content == "" {
				send(wsOutgoing{Type: "error", Content: "empty message"})
				continue
			}
			// Run off the read loop so a cancel can still come through.
			// Turns are serialized; a second message waits its turn.
			go s.runTurn(send, msg.Content)

		default:
			send(wsOutgoing{Type: "error", Content: "invalid message type"})
		}
	}
}

func (s *Server) runTurn(send func(wsOutgoing), content string) {
	s.turnMu.Lock()
	entries := s.orch.HandleTurn(context.Background(), content)
	s.turnMu.Unlock()

	for i := range entries {
		send(wsOutgoing{Type: "display", Entry: &entries[i]})
	}
	send(wsOutgoing{Type: "done"})
}

func wsWriteJSON(conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}
