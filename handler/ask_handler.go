package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tieubaoca/invoice-qa/service"
	"github.com/tieubaoca/invoice-qa/types"
)

type AskHandler struct {
	answers *service.AnswerService
	log     *slog.Logger
}

func NewAskHandler(answers *service.AnswerService, log *slog.Logger) *AskHandler {
	return &AskHandler{
		answers: answers,
		log:     log,
	}
}

func (h *AskHandler) HandleAsk() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Question == "" {
			sendError(w, "question is required", http.StatusBadRequest)
			return
		}

		answer, err := h.answers.Ask(r.Context(), req.Question, req.TopK)
		if err != nil {
			h.log.Error("ask failed", "question", req.Question, "error", err)
			sendError(w, err.Error(), askErrorStatus(err))
			return
		}

		sendSuccess(w, answer)
	})
}

// askErrorStatus maps answer-path failures onto HTTP statuses: upstream
// model trouble reads as a gateway problem, everything else as internal.
func askErrorStatus(err error) int {
	switch {
	case types.IsGroundingViolation(err):
		return http.StatusBadGateway
	case types.IsGenerationUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
