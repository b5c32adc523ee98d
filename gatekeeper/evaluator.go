package gatekeeper

import (
	"context"
	"strings"
	"time"

	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

const (
	DefaultMaxTurns  = 12
	DefaultMaxNudges = 2
)

// EvaluatorConfig controls failover and session bounds.
type EvaluatorConfig struct {
	Keys      []string
	Models    []string
	MaxTurns  int // model sends per session
	MaxNudges int // negative disables nudging
}

// Evaluation is the raw outcome of one successful session.
type Evaluation struct {
	Text     string
	Calls    []models.ToolCallRecord
	Model    string
	KeyIndex int
	Turns    int
	Nudges   int
}

// attempt is one (key, model) pair.
type attempt struct {
	keyIndex int
	key      string
	model    string
}

// attempts lists pairs key-major: every model for key 1, then every model for key 2.
func attempts(keys, models []string) []attempt {
	out := make([]attempt, 0, len(keys)*len(models))
	for ki, k := range keys {
		for _, m := range models {
			out = append(out, attempt{keyIndex: ki, key: k, model: m})
		}
	}
	return out
}

// RuleEvaluator runs bounded tool-calling sessions with failover.
type RuleEvaluator struct {
	model ChatModel
	tools *ToolRegistry
	cfg   EvaluatorConfig
	now   func() time.Time
}

func NewRuleEvaluator(model ChatModel, tools *ToolRegistry, cfg EvaluatorConfig) *RuleEvaluator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxNudges < 0 {
		cfg.MaxNudges = 0
	} else if cfg.MaxNudges == 0 {
		cfg.MaxNudges = DefaultMaxNudges
	}
	return &RuleEvaluator{model: model, tools: tools, cfg: cfg, now: time.Now}
}

// Evaluate tries each (key, model) pair in order until one completes a session.
// The only error it returns is *ExhaustedError.
func (e *RuleEvaluator) Evaluate(ctx context.Context, rule string, uc models.UserContext) (*Evaluation, error) {
	pairs := attempts(e.cfg.Keys, e.cfg.Models)
	if len(pairs) == 0 {
		return nil, &ExhaustedError{Cause: ErrNoCredentials}
	}

	var failed []AttemptError
	for _, a := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, &ExhaustedError{Attempts: failed, Cause: err}
		}

		ev, err := e.session(ctx, a, rule, uc)
		if err == nil {
			if len(failed) > 0 {
				utils.Log.Infof("🔁 [GATEKEEPER] %s (key #%d) answered after %d failed attempt(s)", a.model, a.keyIndex+1, len(failed))
			}
			return ev, nil
		}

		utils.Log.Warnf("⚠️ [GATEKEEPER] %s (key #%d) failed: %v", a.model, a.keyIndex+1, err)
		failed = append(failed, AttemptError{KeyIndex: a.keyIndex, Model: a.model, Err: err})
		if ctx.Err() != nil {
			return nil, &ExhaustedError{Attempts: failed, Cause: ctx.Err()}
		}
	}
	return nil, &ExhaustedError{Attempts: failed}
}

// session runs one conversation. Its call log is private to the attempt, so a
// failed attempt leaves nothing behind.
func (e *RuleEvaluator) session(ctx context.Context, a attempt, rule string, uc models.UserContext) (*Evaluation, error) {
	chat, err := e.model.StartChat(ctx, a.key, a.model, ChatConfig{
		SystemPrompt: SystemPrompt(),
		Tools:        e.tools.Schemas(),
	})
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{Model: a.model, KeyIndex: a.keyIndex}

	turn, err := chat.SendText(ctx, UserPrompt(rule, uc, e.now()))
	if err != nil {
		return nil, err
	}
	ev.Turns = 1

	for {
		if len(turn.Calls) > 0 {
			if ev.Turns >= e.cfg.MaxTurns {
				utils.Log.Warnf("⚠️ [GATEKEEPER] turn budget (%d) spent with tool calls pending", e.cfg.MaxTurns)
				break
			}
			results := make([]ToolResult, 0, len(turn.Calls))
			for _, call := range turn.Calls {
				rec := e.tools.Execute(ctx, call, uc, rule)
				ev.Calls = append(ev.Calls, rec)
				results = append(results, ToolResult{Name: call.Name, Response: rec.Result})
			}
			if turn, err = chat.SendToolResults(ctx, results); err != nil {
				return nil, err
			}
			ev.Turns++
			continue
		}

		if strings.TrimSpace(turn.Text) != "" {
			break
		}
		if ev.Nudges >= e.cfg.MaxNudges || ev.Turns >= e.cfg.MaxTurns {
			break
		}
		ev.Nudges++
		if turn, err = chat.SendText(ctx, nudgePrompt); err != nil {
			return nil, err
		}
		ev.Turns++
	}

	ev.Text = strings.TrimSpace(turn.Text)
	utils.Log.Infof("🧠 [GATEKEEPER] %s finished in %d turn(s), %d tool call(s), %d nudge(s)",
		a.model, ev.Turns, len(ev.Calls), ev.Nudges)
	return ev, nil
}
