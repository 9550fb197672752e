package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tieubaoca/invoice-qa/database"
	"github.com/tieubaoca/invoice-qa/service"
)

// NewRouter wires the HTTP surface: search and ask under /api, websocket
// chat, status, and a health probe.
func NewRouter(
	retriever *service.Retriever,
	answers *service.AnswerService,
	ws *service.WebSocketService,
	store database.InvoiceStore,
	indexName string,
	log *slog.Logger,
) http.Handler {
	searchHandler := NewSearchHandler(retriever, log)
	askHandler := NewAskHandler(answers, log)
	statusHandler := NewStatusHandler(store, indexName, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)
	r.Use(requestLogger(log))

	r.Method(http.MethodGet, "/health", statusHandler.HandleHealth())

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/search", searchHandler.HandleSearch())
		r.Method(http.MethodPost, "/ask", askHandler.HandleAsk())
		r.Method(http.MethodGet, "/status", statusHandler.HandleStatus())
	})

	r.Get("/ws/chat", ws.HandleChat)

	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
