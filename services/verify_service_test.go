package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper-api/gatekeeper"
	"gatekeeper-api/models"
)

type fakeEvaluator struct {
	ev   *gatekeeper.Evaluation
	err  error
	rule string
	uc   models.UserContext
}

func (f *fakeEvaluator) Evaluate(_ context.Context, rule string, uc models.UserContext) (*gatekeeper.Evaluation, error) {
	f.rule, f.uc = rule, uc
	return f.ev, f.err
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []models.VerificationAudit
}

func (r *recordingAuditor) Record(_ context.Context, e models.VerificationAudit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out, string(raw)
}

func newVerifyApp(ev *fakeEvaluator) (*fiber.App, *ProofIssuer, *recordingAuditor) {
	issuer, _ := newTestIssuer()
	audit := &recordingAuditor{}
	app := fiber.New()
	app.Post("/api/verify", NewVerifyService(ev, issuer, audit, 0).Verify)
	return app, issuer, audit
}

func TestVerify_ApprovedIssuesProof(t *testing.T) {
	ev := &fakeEvaluator{ev: &gatekeeper.Evaluation{
		Text:  `{"approved": true, "explanation": "The wallet has 3 transactions."}`,
		Calls: []models.ToolCallRecord{{ToolName: gatekeeper.ToolWalletStats}},
		Model: "gemini-2.5-flash",
		Turns: 2,
	}}
	app, issuer, audit := newVerifyApp(ev)

	status, out, _ := doJSON(t, app, "POST", "/api/verify",
		`{"rule":"Has at least 1 transaction","dropId":7,"user_data":{"address":"0xabc","answer":"x"}}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["approved"])
	assert.Equal(t, "The wallet has 3 transactions.", out["explanation"])
	token, _ := out["proofToken"].(string)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, token)
	assert.NoError(t, issuer.Validate(context.Background(), token, "7", "0xABC"))
	assert.ErrorIs(t, issuer.Validate(context.Background(), token, "7", "0xdef"), ErrProofInvalid, "bound to the verified wallet")

	assert.Equal(t, "Has at least 1 transaction", ev.rule)
	assert.Equal(t, "0xabc", ev.uc.Address)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.True(t, entry.Approved)
	assert.Equal(t, "7", entry.DropID)
	assert.Equal(t, gatekeeper.ToolWalletStats, entry.ToolNames)
	assert.Equal(t, "gemini-2.5-flash", entry.Model)
	assert.Len(t, entry.RuleHash, 64)
	assert.False(t, entry.Exhausted)
}

func TestVerify_RejectedHasNoProof(t *testing.T) {
	ev := &fakeEvaluator{ev: &gatekeeper.Evaluation{Text: `{"approved": false, "explanation": "Balance too low."}`}}
	app, _, _ := newVerifyApp(ev)

	status, out, raw := doJSON(t, app, "POST", "/api/verify", `{"rule":"Holds 100 USDC","user_data":{"address":"0xabc"}}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, out["approved"])
	assert.NotContains(t, raw, "proofToken")
}

func TestVerify_ExhaustionIsAGenericRejection(t *testing.T) {
	ev := &fakeEvaluator{err: &gatekeeper.ExhaustedError{Attempts: []gatekeeper.AttemptError{{Model: "m1", Err: assert.AnError}}}}
	app, _, audit := newVerifyApp(ev)

	status, out, raw := doJSON(t, app, "POST", "/api/verify", `{"rule":"anything","user_data":{}}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, out["approved"])
	assert.Equal(t, UnavailableExplanation, out["explanation"])
	assert.NotContains(t, raw, "m1")
	assert.NotContains(t, raw, "proofToken")

	require.Len(t, audit.entries, 1)
	assert.True(t, audit.entries[0].Exhausted)
}

func TestVerify_SecretNotEchoed(t *testing.T) {
	rule := `Answer the password "STYLUS2026" to claim`
	ev := &fakeEvaluator{ev: &gatekeeper.Evaluation{Text: `{"approved": false, "explanation": "Wrong, the password was STYLUS2026."}`}}
	app, _, _ := newVerifyApp(ev)

	body, err := json.Marshal(map[string]any{"rule": rule, "user_data": map[string]any{"answer": "guess"}})
	require.NoError(t, err)
	status, out, _ := doJSON(t, app, "POST", "/api/verify", string(body))
	require.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, out["explanation"], "STYLUS2026")
}

func TestVerify_BadRequests(t *testing.T) {
	app, _, audit := newVerifyApp(&fakeEvaluator{})

	for _, body := range []string{`{`, `{"rule":"   ","user_data":{}}`, `{"user_data":{}}`} {
		status, out, _ := doJSON(t, app, "POST", "/api/verify", body)
		assert.Equal(t, fiber.StatusBadRequest, status, body)
		assert.NotEmpty(t, out["error"])
	}

	long := `{"rule":"` + strings.Repeat("a", maxRuleLength+1) + `"}`
	status, _, _ := doJSON(t, app, "POST", "/api/verify", long)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Empty(t, audit.entries)
}
