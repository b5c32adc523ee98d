package gatekeeper

import (
	"context"
	"sync"

	"gatekeeper-api/facts"
	"gatekeeper-api/models"
)

// fakeSession replays scripted turns. Once the script runs out it answers with an
// empty turn.
type fakeSession struct {
	turns   []*Turn
	next    int
	texts   []string
	results [][]ToolResult
	err     error

	// resultsErr fails every SendToolResults.
	resultsErr error
}

func (s *fakeSession) reply() (*Turn, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.next >= len(s.turns) {
		return &Turn{}, nil
	}
	t := s.turns[s.next]
	s.next++
	return t, nil
}

func (s *fakeSession) SendText(_ context.Context, text string) (*Turn, error) {
	s.texts = append(s.texts, text)
	return s.reply()
}

func (s *fakeSession) SendToolResults(_ context.Context, results []ToolResult) (*Turn, error) {
	s.results = append(s.results, results)
	if s.resultsErr != nil {
		return nil, s.resultsErr
	}
	return s.reply()
}

// fakeModel builds a session per (key, model) through open and records the order.
type fakeModel struct {
	mu       sync.Mutex
	open     func(key, model string) (*fakeSession, error)
	opened   []string
	sessions []*fakeSession
	lastCfg  ChatConfig
}

func (m *fakeModel) StartChat(_ context.Context, key, model string, cfg ChatConfig) (ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, key+"/"+model)
	m.lastCfg = cfg
	s, err := m.open(key, model)
	if err != nil {
		return nil, err
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

// stubTool answers every call with a fixed result and counts invocations.
type stubTool struct {
	name   string
	result facts.Result
	calls  *int
}

func (t stubTool) Schema() ToolSchema { return ToolSchema{Name: t.name} }

func (t stubTool) Normalize(args map[string]any, uc models.UserContext, _ string) map[string]any {
	injectAddress(args, uc)
	return args
}

func (t stubTool) Run(context.Context, map[string]any) facts.Result {
	if t.calls != nil {
		*t.calls++
	}
	return t.result
}

func text(s string) *Turn { return &Turn{Text: s} }

func calls(names ...string) *Turn {
	t := &Turn{}
	for _, n := range names {
		t.Calls = append(t.Calls, ToolCall{Name: n, Args: map[string]any{}})
	}
	return t
}
