/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tieubaoca/invoice-qa/tui"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the invoice index in the terminal",
	Long: `Open an interactive terminal chat over the indexed invoices. Each
question goes through the same retrieval and grounding pipeline as the
ask command. Type quit, exit, or bye to leave.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		slogger := newLogger(cfg)
		store := mustOpenStore(cfg, slogger)
		_, answers := mustBuildAnswerService(cfg, store, slogger)

		summary := fmt.Sprintf("%s backend", store.Name())
		if count, err := store.Count(cmd.Context()); err == nil {
			summary = fmt.Sprintf("%s backend, %d invoices indexed", store.Name(), count)
		}

		m := tui.New(answers, summary)
		if _, err := tea.NewProgram(m).Run(); err != nil {
			log.Fatalf("Chat failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
