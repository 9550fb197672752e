/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/database"
	"github.com/tieubaoca/invoice-qa/logger"
	"github.com/tieubaoca/invoice-qa/service"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "invoice-qa",
	Short: "Question answering over extracted invoice documents",
	Long: `invoice-qa turns a folder of invoice documents into an index you can
question in plain language.

Documents are run through field extraction, normalized into canonical
invoice records, written to a JSONL artifact, and upserted into the
configured index. Questions are answered from retrieved invoices only,
with citations naming every invoice the answer relies on.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config/config.yaml)")
}

func mustLoadConfig() *config.Config {
	path := cfgFile
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.LogLevel)
}

func mustOpenStore(cfg *config.Config, slogger *slog.Logger) database.InvoiceStore {
	store, err := database.NewInvoiceStore(cfg.Store, slogger)
	if err != nil {
		log.Fatalf("Failed to open invoice store: %v", err)
	}
	return store
}

func mustBuildAnswerService(cfg *config.Config, store database.InvoiceStore, slogger *slog.Logger) (*service.Retriever, *service.AnswerService) {
	ai, err := service.NewAIService(cfg.Generation, slogger)
	if err != nil {
		log.Fatalf("Failed to init generation provider: %v", err)
	}
	retriever := service.NewRetriever(store, slogger)
	assembler := service.NewContextAssembler(cfg.Pipeline.TopK, cfg.Pipeline.ContextCharBudget)
	return retriever, service.NewAnswerService(retriever, assembler, ai, slogger)
}

func mustBuildIngestService(cfg *config.Config, store database.InvoiceStore, slogger *slog.Logger) *service.IngestService {
	extractor, err := service.NewDocumentExtractor(cfg.Extraction, slogger)
	if err != nil {
		log.Fatalf("Failed to init extraction backend: %v", err)
	}
	normalizer := service.NewNormalizer(cfg.Pipeline.ConfidenceThreshold, slogger)
	return service.NewIngestService(extractor, normalizer, store, cfg.Pipeline, slogger)
}
