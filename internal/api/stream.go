package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/challenge-designer/internal/models"
	"github.com/terra-clan/challenge-designer/internal/pipeline"
)

const (
	streamWriteWait    = 10 * time.Second
	streamRequestWait  = 30 * time.Second
	streamMaxFrameSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Stream message types
const (
	StreamConnected = "connected"
	StreamStage     = "stage"
	StreamDesign    = "design"
	StreamError     = "error"
)

// StreamMessage is one frame sent on the design stream
type StreamMessage struct {
	Type    string                  `json:"type"`
	Session string                  `json:"session,omitempty"`
	Event   *models.StageEvent      `json:"event,omitempty"`
	Design  *models.ChallengeDesign `json:"design,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// handleDesignStream runs the design pipeline over a websocket. The first
// client frame is the design request; the server answers with one stage
// frame per transition and a final design frame, then closes.
func (s *Server) handleDesignStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	conn.SetReadLimit(streamMaxFrameSize)
	slog.Info("design stream connected", "session", session)

	if err := s.sendStreamMessage(conn, StreamMessage{Type: StreamConnected, Session: session}); err != nil {
		return
	}

	req, err := readDesignRequest(conn)
	if err != nil {
		slog.Debug("invalid design stream request", "session", session, "error", err)
		s.closeStream(conn, StreamMessage{Type: StreamError, Session: session, Message: "invalid design request"})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Any further client frame, or the client going away, cancels the run
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "session", session, "error", err)
				}
				return
			}
		}
	}()

	design, err := s.pipeline.Design(ctx, req.Declaration(), func(e models.StageEvent) {
		event := e
		if err := s.sendStreamMessage(conn, StreamMessage{Type: StreamStage, Session: session, Event: &event}); err != nil {
			cancel()
		}
	})

	switch {
	case errors.Is(err, pipeline.ErrMissingInput):
		s.closeStream(conn, StreamMessage{Type: StreamError, Session: session, Message: "challengeText is required"})
	case err != nil:
		slog.Error("design stream failed", "session", session, "error", err)
		s.closeStream(conn, StreamMessage{Type: StreamError, Session: session, Message: "design failed"})
	default:
		s.closeStream(conn, StreamMessage{Type: StreamDesign, Session: session, Design: &design})
	}

	// Unblock the reader if the client has not closed yet
	conn.SetReadDeadline(time.Now())
	<-readerDone

	slog.Info("design stream disconnected", "session", session)
}

func readDesignRequest(conn *websocket.Conn) (models.DesignRequest, error) {
	var req models.DesignRequest
	conn.SetReadDeadline(time.Now().Add(streamRequestWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return req, err
	}
	conn.SetReadDeadline(time.Time{})
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) sendStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal stream message", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send stream message", "error", err)
		return err
	}
	return nil
}

// closeStream sends a last message followed by a normal close frame
func (s *Server) closeStream(conn *websocket.Conn, msg StreamMessage) {
	if err := s.sendStreamMessage(conn, msg); err != nil {
		return
	}
	deadline := time.Now().Add(streamWriteWait)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil {
		slog.Debug("failed to send close frame", "error", err)
	}
}
