package handler

import (
	"log/slog"
	"net/http"

	"github.com/tieubaoca/invoice-qa/database"
	"github.com/tieubaoca/invoice-qa/types"
)

type StatusHandler struct {
	store     database.InvoiceStore
	indexName string
	log       *slog.Logger
}

func NewStatusHandler(store database.InvoiceStore, indexName string, log *slog.Logger) *StatusHandler {
	return &StatusHandler{
		store:     store,
		indexName: indexName,
		log:       log,
	}
}

func (h *StatusHandler) HandleStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := h.store.Count(r.Context())
		if err != nil {
			h.log.Error("status check failed", "error", err)
			sendError(w, "Index unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}

		sendSuccess(w, types.StatusResponse{
			Backend:   h.store.Name(),
			IndexName: h.indexName,
			Documents: count,
		})
	})
}

func (h *StatusHandler) HandleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
