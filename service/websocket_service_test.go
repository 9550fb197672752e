package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tieubaoca/invoice-qa/logger"
	"github.com/tieubaoca/invoice-qa/types"
)

func dialWebSocket(t *testing.T, answers *AnswerService) *websocket.Conn {
	t.Helper()
	ws := NewWebSocketService(answers, logger.Discard())
	server := httptest.NewServer(http.HandlerFunc(ws.HandleChat))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketPingPong(t *testing.T) {
	ai := &scriptedAI{}
	conn := dialWebSocket(t, newAnswerService(t, ai))

	require.NoError(t, conn.WriteJSON(types.WebsocketRequest{Type: types.TypeWebsocketPing}))

	var resp types.WebSocketResponse
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, types.TypeWebsocketPong, resp.Type)
}

func TestWebSocketAskRoundTrip(t *testing.T) {
	ai := &scriptedAI{replies: []string{"Invoice INV-2025-0001 totals USD 12027.40."}}
	answers := newAnswerService(t, ai, storedInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 12027.4))
	conn := dialWebSocket(t, answers)

	require.NoError(t, conn.WriteJSON(types.WebsocketRequest{
		Type:    types.TypeWebsocketAsk,
		Payload: types.WebSocketAskPayload{Question: "contoso retail total?", TopK: 3},
	}))

	var resp struct {
		Type    string            `json:"type"`
		Payload types.CitedAnswer `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, types.TypeWebsocketAnswer, resp.Type)
	require.Contains(t, resp.Payload.Text, "INV-2025-0001")
	require.Len(t, resp.Payload.Citations, 1)
	require.Equal(t, "INV-2025-0001", resp.Payload.Citations[0].InvoiceID)
}

func TestWebSocketRejectsEmptyQuestion(t *testing.T) {
	ai := &scriptedAI{}
	conn := dialWebSocket(t, newAnswerService(t, ai))

	require.NoError(t, conn.WriteJSON(types.WebsocketRequest{
		Type:    types.TypeWebsocketAsk,
		Payload: types.WebSocketAskPayload{},
	}))

	var resp struct {
		Type    string                       `json:"type"`
		Payload types.WebSocketErrorResponse `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, types.TypeWebsocketError, resp.Type)
	require.Equal(t, "question is required", resp.Payload.Message)
	require.Zero(t, ai.calls)
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	ai := &scriptedAI{}
	conn := dialWebSocket(t, newAnswerService(t, ai))

	require.NoError(t, conn.WriteJSON(types.WebsocketRequest{Type: "upload"}))

	var resp struct {
		Type    string                       `json:"type"`
		Payload types.WebSocketErrorResponse `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, types.TypeWebsocketError, resp.Type)
	require.Equal(t, "unknown message type", resp.Payload.Message)
}
