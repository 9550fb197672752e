package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tieubaoca/invoice-qa/service"
	"github.com/tieubaoca/invoice-qa/types"
)

type SearchHandler struct {
	retriever *service.Retriever
	log       *slog.Logger
}

func NewSearchHandler(retriever *service.Retriever, log *slog.Logger) *SearchHandler {
	return &SearchHandler{
		retriever: retriever,
		log:       log,
	}
}

func (h *SearchHandler) HandleSearch() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			sendError(w, "query is required", http.StatusBadRequest)
			return
		}

		candidates, err := h.retriever.Search(r.Context(), req.Query, req.TopK, req.Filters)
		if err != nil {
			h.log.Error("search failed", "query", req.Query, "error", err)
			sendError(w, "Search failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		sendSuccess(w, types.SearchResponse{Candidates: candidates})
	})
}
