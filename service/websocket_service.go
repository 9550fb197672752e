package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tieubaoca/invoice-qa/types"
)

// WebSocketService answers invoice questions over a persistent connection.
// One connection handles questions sequentially.
type WebSocketService struct {
	answers  *AnswerService
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWebSocketService(answers *AnswerService, log *slog.Logger) *WebSocketService {
	return &WebSocketService{
		answers: answers,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (adjust for production)
			},
		},
		log: log,
	}
}

func (s *WebSocketService) HandleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024) // 512KB max message size
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var req types.WebsocketRequest
		if err := json.Unmarshal(p, &req); err != nil {
			s.log.Warn("unreadable websocket message", "error", err)
			s.writeError(conn, "Error processing message")
			continue
		}

		switch req.Type {
		case types.TypeWebsocketAsk:
			payloadBytes, err := json.Marshal(req.Payload)
			if err != nil {
				s.writeError(conn, "Error processing message")
				continue
			}
			var payload types.WebSocketAskPayload
			if err := json.Unmarshal(payloadBytes, &payload); err != nil {
				s.writeError(conn, "Error processing message")
				continue
			}
			if payload.Question == "" {
				s.writeError(conn, "question is required")
				continue
			}

			answer, err := s.answers.Ask(ctx, payload.Question, payload.TopK)
			if err != nil {
				s.log.Error("websocket ask failed", "error", err)
				s.writeError(conn, askErrorMessage(err))
				continue
			}
			resp := types.WebSocketResponse{
				Type:    types.TypeWebsocketAnswer,
				Payload: answer,
			}
			if err := conn.WriteJSON(resp); err != nil {
				s.log.Warn("websocket write failed", "error", err)
				return
			}

		case types.TypeWebsocketPing:
			pong := types.WebSocketResponse{Type: types.TypeWebsocketPong}
			if err := conn.WriteJSON(pong); err != nil {
				s.log.Warn("websocket write failed", "error", err)
				return
			}

		default:
			s.writeError(conn, "unknown message type")
		}
	}
}

func (s *WebSocketService) writeError(conn *websocket.Conn, message string) {
	resp := types.WebSocketResponse{
		Type:    types.TypeWebsocketError,
		Payload: types.WebSocketErrorResponse{Message: message},
	}
	if err := conn.WriteJSON(resp); err != nil {
		s.log.Warn("websocket write failed", "error", err)
	}
}

func askErrorMessage(err error) string {
	switch {
	case types.IsGroundingViolation(err):
		return "The answer could not be grounded in the indexed invoices. Please rephrase the question."
	case types.IsGenerationUnavailable(err):
		return "The answer service is temporarily unavailable. Please try again."
	default:
		return "Error processing message"
	}
}
