package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/souschef-ai/souschef/pkg/events"
)

// startHandshakeTimeout bounds the wait for the client's start message.
const startHandshakeTimeout = 30 * time.Second

// inboundMessage is one frame from the UI on the session channel.
type inboundMessage struct {
	Event            string       `json:"event"`
	SessionID        string       `json:"sessionId"`
	SampleRate       int          `json:"sampleRate"`
	Data             string       `json:"data"` // base64 PCM on audio frames
	CustomParameters *startParams `json:"customParameters"`
}

// startParams carries the session setup from the first frame.
type startParams struct {
	Mode            string          `json:"mode"` // cooking | discovery
	RecipeID        string          `json:"recipeId"`
	RecipePayload   json.RawMessage `json:"recipePayload"`
	ResumeStepIndex *int            `json:"resumeStepIndex"`
}

// sessionChannelHandler handles GET /ws: the bidirectional session
// channel. The first inbound frame must be a start event; the first
// outbound frame is always session_info. The connection then stays open
// for audio/stop/interrupt frames while engine events flow outward.
func (s *Server) sessionChannelHandler(c *echo.Context) error {
	opts := &websocket.AcceptOptions{OriginPatterns: s.originPatterns}
	if len(s.originPatterns) == 0 {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), opts)
	if err != nil {
		slog.Warn("WebSocket accept failed", "error", err)
		return nil // Accept already wrote the HTTP error
	}

	s.handleSessionChannel(c.Request().Context(), conn)
	return nil
}

func (s *Server) handleSessionChannel(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusInternalError, "session channel closed")

	start, err := readStartMessage(ctx, conn)
	if err != nil {
		slog.Warn("Session channel rejected", "error", err)
		conn.Close(websocket.StatusPolicyViolation, "expected start event")
		return
	}

	mode := "cooking"
	recipeID := ""
	params := start.CustomParameters
	if params != nil {
		if params.Mode != "" {
			mode = params.Mode
		}
		recipeID = params.RecipeID
	}

	sess := s.sessions.Create(start.SessionID)
	// Transport gone means session gone: the engine and its timers must
	// not outlive the connection.
	defer s.sessions.Cleanup(sess.ID)

	sess.AttachOutput(events.NewSessionConn(conn, events.DefaultWriteTimeout))
	if params != nil {
		if recipeID != "" {
			sess.SetRecipeID(recipeID)
		}
		if len(params.RecipePayload) > 0 {
			sess.SetRecipePayload(params.RecipePayload)
		}
		if params.ResumeStepIndex != nil {
			// Resume positioning is driven by the UI after it receives
			// the first recipe_state; the backend only acknowledges it.
			slog.Info("Session requested resume", "session_id", sess.ID,
				"resume_step_index", *params.ResumeStepIndex)
		}
	}

	if err := sess.SendUI(ctx, events.SessionInfo(sess.ID, mode, recipeID)); err != nil {
		slog.Warn("Failed to send session_info", "session_id", sess.ID, "error", err)
		return
	}
	slog.Info("Session channel open", "session_id", sess.ID, "mode", mode,
		"recipe_id", recipeID, "sample_rate", start.SampleRate)

	s.readLoop(ctx, conn, sess.ID)
}

// readStartMessage reads and validates the handshake frame.
func readStartMessage(ctx context.Context, conn *websocket.Conn) (*inboundMessage, error) {
	readCtx, cancel := context.WithTimeout(ctx, startHandshakeTimeout)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return nil, err
	}
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event != "start" {
		return nil, errUnexpectedFirstFrame(msg.Event)
	}
	return &msg, nil
}

type errUnexpectedFirstFrame string

func (e errUnexpectedFirstFrame) Error() string {
	return "first frame must be a start event, got " + string(e)
}

// readLoop consumes inbound frames until the client stops or disconnects.
// Audio frames belong to the external speech collaborator; the core only
// keeps the channel alive and reacts to control frames.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			slog.Info("Session channel closed", "session_id", sessionID,
				"close_status", websocket.CloseStatus(err))
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Malformed session frame", "session_id", sessionID, "error", err)
			continue
		}

		switch msg.Event {
		case "audio":
			// Consumed by the speech pipeline outside this process.
		case "interrupt":
			slog.Debug("Client interrupted assistant speech", "session_id", sessionID)
		case "stop":
			slog.Info("Client requested stop", "session_id", sessionID)
			conn.Close(websocket.StatusNormalClosure, "")
			return
		default:
			slog.Warn("Unknown session frame event", "session_id", sessionID,
				"event", msg.Event)
		}
	}
}
