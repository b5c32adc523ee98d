package gatekeeper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GenAIModel is the Gemini adapter. It keeps one SDK client per API key.
type GenAIModel struct {
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func NewGenAIModel(httpClient *http.Client) *GenAIModel {
	return &GenAIModel{httpClient: httpClient, clients: map[string]*genai.Client{}}
}

func (g *GenAIModel) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

func (g *GenAIModel) StartChat(ctx context.Context, apiKey, model string, cfg ChatConfig) (ChatSession, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		decls = append(decls, toDeclaration(t))
	}

	chat, err := client.Chats.Create(ctx, model, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: decls}},
		Temperature:       genai.Ptr[float32](0),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start chat on %s: %w", model, err)
	}
	return &genaiSession{chat: chat}, nil
}

func toDeclaration(t ToolSchema) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(t.Params))
	for _, p := range t.Params {
		typ := genai.TypeString
		if p.Type == "number" {
			typ = genai.TypeNumber
		}
		props[p.Name] = &genai.Schema{Type: typ, Description: p.Description}
	}
	return &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   t.Required,
		},
	}
}

type genaiSession struct {
	chat *genai.Chat
}

func (s *genaiSession) SendText(ctx context.Context, text string) (*Turn, error) {
	return s.send(ctx, *genai.NewPartFromText(text))
}

func (s *genaiSession) SendToolResults(ctx context.Context, results []ToolResult) (*Turn, error) {
	parts := make([]genai.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, *genai.NewPartFromFunctionResponse(r.Name, r.Response))
	}
	return s.send(ctx, parts...)
}

func (s *genaiSession) send(ctx context.Context, parts ...genai.Part) (*Turn, error) {
	resp, err := s.chat.SendMessage(ctx, parts...)
	if err != nil {
		return nil, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrInvalidResponse, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}

	turn := &Turn{Text: strings.TrimSpace(resp.Text())}
	for _, fc := range resp.FunctionCalls() {
		if fc == nil || fc.Name == "" {
			continue
		}
		turn.Calls = append(turn.Calls, ToolCall{Name: fc.Name, Args: fc.Args})
	}
	return turn, nil
}
