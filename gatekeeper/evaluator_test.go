package gatekeeper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper-api/facts"
	"gatekeeper-api/models"
)

var claimer = models.UserContext{Address: "0x1111111111111111111111111111111111111111"}

func okRegistry(calls *int) *ToolRegistry {
	return NewToolRegistryOf(stubTool{name: ToolWalletStats, result: facts.Result{"tx_count": 3}, calls: calls})
}

func TestEvaluate_DirectAnswer(t *testing.T) {
	m := &fakeModel{open: func(string, string) (*fakeSession, error) {
		return &fakeSession{turns: []*Turn{text(`{"approved": true, "explanation": "Correct."}`)}}, nil
	}}
	ev := NewRuleEvaluator(m, okRegistry(nil), EvaluatorConfig{Keys: []string{"k1"}, Models: []string{"m1"}})

	out, err := ev.Evaluate(context.Background(), "What is 2+2?", claimer)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Turns)
	assert.Empty(t, out.Calls)
	assert.Equal(t, "m1", out.Model)
	assert.Contains(t, m.sessions[0].texts[0], "What is 2+2?")
	assert.Len(t, m.lastCfg.Tools, 1)
}

func TestEvaluate_ToolRoundTrip(t *testing.T) {
	var n int
	m := &fakeModel{open: func(string, string) (*fakeSession, error) {
		return &fakeSession{turns: []*Turn{
			calls(ToolWalletStats),
			text(`{"approved": true, "explanation": "Active wallet."}`),
		}}, nil
	}}
	ev := NewRuleEvaluator(m, okRegistry(&n), EvaluatorConfig{Keys: []string{"k"}, Models: []string{"m"}})

	out, err := ev.Evaluate(context.Background(), "Wallet must have transactions", claimer)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, out.Turns)
	require.Len(t, out.Calls, 1)
	assert.Equal(t, claimer.Address, out.Calls[0].Args["address"], "claimer address is injected")

	sent := m.sessions[0].results
	require.Len(t, sent, 1)
	assert.Equal(t, ToolWalletStats, sent[0][0].Name)
	assert.Equal(t, 3, sent[0][0].Response["tx_count"])
}

func TestEvaluate_AllCallsOfATurnAnsweredTogether(t *testing.T) {
	m := &fakeModel{open: func(string, string) (*fakeSession, error) {
		return &fakeSession{turns: []*Turn{
			calls(ToolWalletStats, ToolWalletStats),
			text(`{"approved": false, "explanation": "no"}`),
		}}, nil
	}}
	ev := NewRuleEvaluator(m, okRegistry(nil), EvaluatorConfig{Keys: []string{"k"}, Models: []string{"m"}})

	out, err := ev.Evaluate(context.Background(), "rule", claimer)
	require.NoError(t, err)
	assert.Len(t, out.Calls, 2)
	require.Len(t, m.sessions[0].results, 1)
	assert.Len(t, m.sessions[0].results[0], 2)
}

func TestEvaluate_TurnBudget(t *testing.T) {
	var n int
	m := &fakeModel{open: func(string, string) (*fakeSession, error) {
		s := &fakeSession{}
		for i := 0; i < 50; i++ {
			s.turns = append(s.turns, calls(ToolWalletStats))
		}
		return s, nil
	}}
	ev := NewRuleEvaluator(m, okRegistry(&n), EvaluatorConfig{Keys: []string{"k"}, Models: []string{"m"}})

	out, err := ev.Evaluate(context.Background(), "rule", claimer)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTurns, out.Turns, "sends never exceed the budget")
	assert.Equal(t, DefaultMaxTurns-1, n)
	assert.Empty(t, out.Text)
}

func TestEvaluate_NudgesAtMostTwice(t *testing.T) {
	m := &fakeModel{open: func(string, string) (*fakeSession, error) {
		return &fakeSession{}, nil
	}}
	ev := NewRuleEvaluator(m, okRegistry(nil), EvaluatorConfig{Keys: []string{"k"}, Models: []string{"m"}})

	out, err := ev.Evaluate(context.Background(), "rule", claimer)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Nudges)
	assert.Equal(t, 3, out.Turns)
	assert.Len(t, m.sessions[0].texts, 3)
	assert.Empty(t, out.Text)
}

func TestEvaluate_NudgeRecovers(t *testing.T) {
	m := &fakeModel{open: func(string, string) (*fakeSession, error) {
		return &fakeSession{turns: []*Turn{text(""), text(`{"approved":true,"explanation":"ok"}`)}}, nil
	}}
	ev := NewRuleEvaluator(m, okRegistry(nil), EvaluatorConfig{Keys: []string{"k"}, Models: []string{"m"}})

	out, err := ev.Evaluate(context.Background(), "rule", claimer)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Nudges)
	assert.NotEmpty(t, out.Text)
}

func TestEvaluate_UnknownToolIsReportedBack(t *testing.T) {
	m := &fakeModel{open: func(string, string) (*fakeSession, error) {
		return &fakeSession{turns: []*Turn{calls("check_weather"), text("")}}, nil
	}}
	ev := NewRuleEvaluator(m, okRegistry(nil), EvaluatorConfig{Keys: []string{"k"}, Models: []string{"m"}, MaxNudges: -1})

	out, err := ev.Evaluate(context.Background(), "rule", claimer)
	require.NoError(t, err)
	require.Len(t, out.Calls, 1)
	assert.Equal(t, "unknown tool", out.Calls[0].Result["error"])
	assert.Equal(t, "unknown tool", m.sessions[0].results[0][0].Response["error"])

	d := Parse(out.Text, out.Calls, "rule")
	assert.False(t, d.Approved)
}

func TestEvaluate_FailoverIsKeyMajor(t *testing.T) {
	m := &fakeModel{open: func(key, model string) (*fakeSession, error) {
		if key == "k2" && model == "m2" {
			return &fakeSession{turns: []*Turn{text(`{"approved":true,"explanation":"ok"}`)}}, nil
		}
		return nil, errors.New("429 quota exceeded")
	}}
	ev := NewRuleEvaluator(m, okRegistry(nil), EvaluatorConfig{
		Keys:   []string{"k1", "k2"},
		Models: []string{"m1", "m2", "m3"},
	})

	out, err := ev.Evaluate(context.Background(), "rule", claimer)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1/m1", "k1/m2", "k1/m3", "k2/m1", "k2/m2"}, m.opened)
	assert.Equal(t, 1, out.KeyIndex)
	assert.Equal(t, "m2", out.Model)
}

func TestEvaluate_MidSessionFailureStartsFresh(t *testing.T) {
	var n int
	m := &fakeModel{open: func(key, model string) (*fakeSession, error) {
		if model == "m1" {
			return &fakeSession{
				turns:      []*Turn{calls(ToolWalletStats)},
				resultsErr: errors.New("connection reset"),
			}, nil
		}
		return &fakeSession{turns: []*Turn{text(`{"approved":false,"explanation":"no"}`)}}, nil
	}}
	ev := NewRuleEvaluator(m, okRegistry(&n), EvaluatorConfig{Keys: []string{"k"}, Models: []string{"m1", "m2"}})

	out, err := ev.Evaluate(context.Background(), "rule", claimer)
	require.NoError(t, err)
	assert.Equal(t, "m2", out.Model)
	assert.Empty(t, out.Calls, "the failed attempt's call log is discarded")
	assert.Equal(t, 1, n)
}

func TestEvaluate_Exhausted(t *testing.T) {
	m := &fakeModel{open: func(key, model string) (*fakeSession, error) {
		return nil, errors.New("503 overloaded")
	}}
	ev := NewRuleEvaluator(m, okRegistry(nil), EvaluatorConfig{Keys: []string{"a", "b"}, Models: []string{"x", "y"}})

	_, err := ev.Evaluate(context.Background(), "rule", claimer)
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	require.Len(t, ex.Attempts, 4)
	assert.Equal(t, 0, ex.Attempts[0].KeyIndex)
	assert.Equal(t, "y", ex.Attempts[1].Model)
	assert.Equal(t, 1, ex.Attempts[3].KeyIndex)
	assert.Contains(t, err.Error(), "all models exhausted")
}

func TestEvaluate_NoCredentials(t *testing.T) {
	ev := NewRuleEvaluator(&fakeModel{}, okRegistry(nil), EvaluatorConfig{})
	_, err := ev.Evaluate(context.Background(), "rule", claimer)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestEvaluate_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeModel{open: func(key, model string) (*fakeSession, error) {
		cancel()
		return nil, context.Canceled
	}}
	ev := NewRuleEvaluator(m, okRegistry(nil), EvaluatorConfig{Keys: []string{"a"}, Models: []string{"x", "y", "z"}})

	_, err := ev.Evaluate(ctx, "rule", claimer)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, m.opened, 1)
}
