package handlers

import (
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/contractor-booking/internal/session"
	"github.com/wolfman30/contractor-booking/internal/steps"
	"github.com/wolfman30/contractor-booking/internal/wizard"
)

// StreamMessage is pushed to the widget over the session stream.
type StreamMessage struct {
	Type  string      `json:"type"` // "view", "pong", "error"
	View  *steps.View `json:"view,omitempty"`
	Error string      `json:"error,omitempty"`
}

type streamInbound struct {
	Type string `json:"type"` // "ping"
}

// Stream handles GET .../stream. The current view is sent on connect and
// again after every state change until the client disconnects.
func (h *WizardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session) {
		websocket.Handler(func(conn *websocket.Conn) {
			h.serveStream(conn, s)
		}).ServeHTTP(w, r)
	})
}

func (h *WizardHandler) serveStream(conn *websocket.Conn, s *session.Session) {
	defer conn.Close()
	// The server's read/write timeouts carry over to the hijacked connection.
	_ = conn.SetDeadline(time.Time{})

	// Snapshots are complete, so only the latest pending one matters.
	pending := make(chan wizard.State, 1)
	unsubscribe := s.Controller().Subscribe(func(state wizard.State) {
		for {
			select {
			case pending <- state:
				return
			default:
			}
			select {
			case <-pending:
			default:
			}
		}
	})
	defer unsubscribe()

	inbound := make(chan streamInbound)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(done)
		for {
			var msg streamInbound
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			select {
			case inbound <- msg:
			case <-quit:
				return
			}
		}
	}()

	view := s.View()
	if err := websocket.JSON.Send(conn, StreamMessage{Type: "view", View: &view}); err != nil {
		return
	}
	h.logger.Debug("wizard stream opened", "session_id", s.ID)

	for {
		select {
		case <-done:
			h.logger.Debug("wizard stream closed", "session_id", s.ID)
			return
		case msg := <-inbound:
			out := StreamMessage{Type: "pong"}
			if msg.Type != "ping" {
				out = StreamMessage{Type: "error", Error: "unknown message type"}
			}
			if err := websocket.JSON.Send(conn, out); err != nil {
				return
			}
		case state := <-pending:
			view := s.RenderState(state)
			if err := websocket.JSON.Send(conn, StreamMessage{Type: "view", View: &view}); err != nil {
				return
			}
		}
	}
}
