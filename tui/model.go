package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tieubaoca/invoice-qa/types"
)

// AskPort is the TUI-facing subset of the answer pipeline.
type AskPort interface {
	Ask(ctx context.Context, question string, topK int) (*types.CitedAnswer, error)
}

type chatEntry struct {
	question  string
	answer    string
	citations []types.Citation
	err       string
}

type answerMsg struct {
	question string
	answer   *types.CitedAnswer
	err      error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	service  AskPort
	input    textinput.Model
	viewport viewport.Model
	history  []chatEntry
	summary  string
	status   string
	ready    bool
	waiting  bool
}

// New creates a new chat model instance.
func New(service AskPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your invoices and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: service, input: ti, viewport: vp, summary: summary, status: "Ready. Type a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window, and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and query boxes
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-th)
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case answerMsg:
		m.waiting = false
		entry := chatEntry{question: msg.question}
		if msg.err != nil {
			entry.err = msg.err.Error()
			m.status = "Error: " + msg.err.Error()
		} else {
			entry.answer = msg.answer.Text
			entry.citations = msg.answer.Citations
			m.status = fmt.Sprintf("Answered %q", msg.question)
		}
		m.history = append(m.history, entry)
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				break
			}
			if isQuitWord(q) {
				return m, tea.Quit
			}
			if m.waiting {
				m.status = "Still thinking, hold on..."
				return m, nil
			}
			m.input.SetValue("")
			m.waiting = true
			m.status = fmt.Sprintf("Thinking about %q...", q)
			return m, askCmd(m.service, q)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Invoice Q&A")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func askCmd(service AskPort, question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := service.Ask(context.Background(), question, 0)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	blocks := make([]string, 0, len(m.history))
	for _, entry := range m.history {
		blocks = append(blocks, renderEntry(entry))
	}
	return strings.Join(blocks, "\n\n")
}

func renderEntry(entry chatEntry) string {
	var b strings.Builder
	b.WriteString(questionStyle.Render("You: " + entry.question))
	b.WriteString("\n")
	if entry.err != "" {
		b.WriteString(errorStyle.Render("Error: " + entry.err))
		return b.String()
	}
	b.WriteString(entry.answer)
	if len(entry.citations) > 0 {
		b.WriteString("\n")
		b.WriteString(citationStyle.Render("Sources: " + formatCitations(entry.citations)))
	}
	return b.String()
}

func formatCitations(citations []types.Citation) string {
	parts := make([]string, 0, len(citations))
	for _, c := range citations {
		details := make([]string, 0, 3)
		if c.Vendor != "" {
			details = append(details, c.Vendor)
		}
		if c.Date != "" {
			details = append(details, c.Date)
		}
		if c.Currency != "" {
			details = append(details, fmt.Sprintf("%s %.2f", c.Currency, c.Amount))
		} else {
			details = append(details, fmt.Sprintf("%.2f", c.Amount))
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", c.InvoiceID, strings.Join(details, ", ")))
	}
	return strings.Join(parts, "; ")
}

func isQuitWord(s string) bool {
	switch strings.ToLower(s) {
	case "quit", "exit", "bye":
		return true
	}
	return false
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	citationStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
