package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/tieubaoca/invoice-qa/types"
)

type stubAsk struct {
	answer *types.CitedAnswer
	err    error
	asked  string
}

func (s *stubAsk) Ask(ctx context.Context, question string, topK int) (*types.CitedAnswer, error) {
	s.asked = question
	return s.answer, s.err
}

func TestAskCmdDeliversAnswer(t *testing.T) {
	stub := &stubAsk{answer: &types.CitedAnswer{Text: "Invoice INV-2025-0001 totals EUR 12027.40."}}

	msg := askCmd(stub, "total?")()
	am, ok := msg.(answerMsg)
	require.True(t, ok)
	require.Equal(t, "total?", am.question)
	require.Equal(t, "total?", stub.asked)
	require.NoError(t, am.err)
	require.Equal(t, stub.answer, am.answer)
}

func TestEnterStartsAsk(t *testing.T) {
	m := New(&stubAsk{}, "memory index")
	m.input.SetValue("what is the contoso total?")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model := updated.(Model)
	require.True(t, model.waiting)
	require.NotNil(t, cmd)
	require.Empty(t, model.input.Value())
}

func TestQuitWordsExit(t *testing.T) {
	for _, word := range []string{"quit", "exit", "bye", "QUIT"} {
		m := New(&stubAsk{}, "")
		m.input.SetValue(word)

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		require.NotNil(t, cmd, word)
		require.IsType(t, tea.QuitMsg{}, cmd(), word)
	}
}

func TestAnswerMsgAppendsHistory(t *testing.T) {
	m := New(&stubAsk{}, "")
	m.waiting = true

	answer := &types.CitedAnswer{
		Text: "Invoice INV-2025-0001 totals EUR 12027.40.",
		Citations: []types.Citation{{
			InvoiceID: "INV-2025-0001",
			Vendor:    "Contoso Retail",
			Date:      "2025-09-21",
			Amount:    12027.4,
			Currency:  "EUR",
		}},
	}
	updated, _ := m.Update(answerMsg{question: "total?", answer: answer})
	model := updated.(Model)

	require.False(t, model.waiting)
	require.Len(t, model.history, 1)
	require.Contains(t, model.renderHistory(), "Invoice INV-2025-0001 totals EUR 12027.40.")
	require.Contains(t, model.renderHistory(), "Sources: INV-2025-0001")
}

func TestAnswerMsgRecordsError(t *testing.T) {
	m := New(&stubAsk{}, "")

	updated, _ := m.Update(answerMsg{question: "total?", err: errors.New("index offline")})
	model := updated.(Model)

	require.Len(t, model.history, 1)
	require.Contains(t, model.renderHistory(), "index offline")
	require.Contains(t, model.status, "index offline")
}

func TestFormatCitations(t *testing.T) {
	got := formatCitations([]types.Citation{
		{InvoiceID: "INV-2025-0001", Vendor: "Contoso Retail", Date: "2025-09-21", Amount: 12027.4, Currency: "EUR"},
		{InvoiceID: "INV-2025-0002", Amount: 300},
	})
	require.Equal(t, "INV-2025-0001 (Contoso Retail, 2025-09-21, EUR 12027.40); INV-2025-0002 (300.00)", got)
}
