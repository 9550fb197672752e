/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tieubaoca/invoice-qa/handler"
	"github.com/tieubaoca/invoice-qa/service"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the invoice Q&A HTTP server",
	Long: `Start the HTTP server exposing search, ask, and status endpoints
plus a websocket chat at /ws/chat. Ingest documents first so the index
has something to answer from.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		slogger := newLogger(cfg)
		store := mustOpenStore(cfg, slogger)
		retriever, answers := mustBuildAnswerService(cfg, store, slogger)
		ws := service.NewWebSocketService(answers, slogger)

		router := handler.NewRouter(retriever, answers, ws, store, cfg.Store.IndexName, slogger)

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      15 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		go func() {
			log.Printf("Starting server on port %s...\n", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Failed to shut down server: %v", err)
		}
		log.Println("Server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
