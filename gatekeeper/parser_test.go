package gatekeeper

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"gatekeeper-api/facts"
	"gatekeeper-api/models"
)

func TestParse_TextCascade(t *testing.T) {
	cases := []struct {
		name        string
		text        string
		approved    bool
		explanation string
	}{
		{"whole json", `{"approved": true, "explanation": "Wallet is active."}`, true, "Wallet is active."},
		{"fenced json", "```json\n{\"approved\": false, \"explanation\": \"Too new.\"}\n```", false, "Too new."},
		{"json inside prose", `Here is my verdict: {"approved": true, "explanation": "ok"} hope that helps`, true, "ok"},
		{"fragment among objects", `{"balance": 1} then {"approved": false, "explanation": "low"}`, false, "low"},
		{"loose literals", `approved: true, explanation: "Holds the NFT"`, true, "Holds the NFT"},
		{"escaped literal", `approved = false explanation = "said \"hi\""`, false, `said "hi"`},
		{"keywords approve", "Verification passed.", true, "Verification passed."},
		{"keywords with negation", "The wallet was not verified.", false, "The wallet was not verified."},
		{"no signal", "I looked at the data.", false, "I looked at the data."},
		{"missing explanation", `{"approved": true}`, true, "All requirements were met."},
		{"explanation kept verbatim", `{"approved": true, "explanation": "  Balance is 150 USDC.  "}`, true, "  Balance is 150 USDC.  "},
		{"empty explanation kept", `{"approved": false, "explanation": ""}`, false, ""},
		{"literal without explanation", `approved: false`, false, GenericRejection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Parse(tc.text, nil, "rule")
			assert.Equal(t, tc.approved, d.Approved)
			assert.Equal(t, tc.explanation, d.Explanation)
			assert.Empty(t, d.ProofToken)
		})
	}
}

func TestParse_KeywordExplanationIsTruncated(t *testing.T) {
	long := "passed " + strings.Repeat("é", 1000)
	d := Parse(long, nil, "rule")
	assert.True(t, d.Approved)
	assert.Len(t, []rune(d.Explanation), maxFreeTextExplanation+3)
	assert.True(t, strings.HasSuffix(d.Explanation, "..."))
}

func TestParse_EmptyTextUsesToolLog(t *testing.T) {
	log := []models.ToolCallRecord{{ToolName: ToolWalletStats, Result: facts.Result{"tx_count": uint64(4)}}}
	assert.True(t, Parse("  ", log, "Wallet must have transactions").Approved)
	assert.False(t, Parse("", nil, "rule").Approved)
}

func TestParse_NeverPanicsAndDefaultsToReject(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("approval needs an explicit signal", prop.ForAll(
		func(text string) bool {
			d := Parse(text, nil, "rule")
			if d.ProofToken != "" {
				return false
			}
			if !d.Approved {
				return true
			}
			return approveWordRe.MatchString(text) || strings.Contains(strings.ToLower(text), "true")
		},
		gen.AnyString(),
	))

	properties.Property("empty reply with empty log rejects", prop.ForAll(
		func(n int) bool {
			return !Parse(strings.Repeat(" ", n), nil, "rule").Approved
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func TestParse_EchoesJSONExplanation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	wrappers := []func(string) string{
		func(body string) string { return body },
		func(body string) string { return "```json\n" + body + "\n```" },
		func(body string) string { return "Verdict: " + body + " (end)" },
	}

	properties.Property("approved and explanation come back unchanged", prop.ForAll(
		func(approved bool, explanation string, wrap int) bool {
			body, err := json.Marshal(map[string]any{"approved": approved, "explanation": explanation})
			if err != nil {
				return false
			}
			var want struct{ Explanation string }
			if err := json.Unmarshal(body, &want); err != nil {
				return false
			}
			d := Parse(wrappers[wrap](string(body)), nil, "rule")
			return d.Approved == approved && d.Explanation == want.Explanation
		},
		gen.Bool(),
		gen.AnyString(),
		gen.IntRange(0, len(wrappers)-1),
	))

	properties.TestingRun(t)
}

func tokenRecord(symbol, balance string) models.ToolCallRecord {
	return models.ToolCallRecord{
		ToolName: ToolTokenBalance,
		Args:     map[string]any{"symbol": symbol},
		Result:   facts.Result{"symbol": symbol, "balance": balance, "has_token": balance != "0"},
	}
}

func TestSynthesize_TokenThreshold(t *testing.T) {
	rule := "Hold more than 100 USDC on Arbitrum"
	assert.True(t, Synthesize([]models.ToolCallRecord{tokenRecord("USDC", "150.5")}, rule).Approved)
	assert.False(t, Synthesize([]models.ToolCallRecord{tokenRecord("USDC", "100")}, rule).Approved, "strict comparison")
	assert.False(t, Synthesize([]models.ToolCallRecord{tokenRecord("USDC", "50")}, rule).Approved)

	assert.True(t, Synthesize([]models.ToolCallRecord{tokenRecord("ARB", "1,000")}, "at least 1000 ARB").Approved)
	assert.True(t, Synthesize([]models.ToolCallRecord{tokenRecord("OP", "25")}, "25+ OP tokens").Approved)
	assert.True(t, Synthesize([]models.ToolCallRecord{tokenRecord("DAI", "0.01")}, "Must hold some DAI").Approved)
	assert.False(t, Synthesize([]models.ToolCallRecord{tokenRecord("DAI", "0")}, "Must hold some DAI").Approved)
}

func TestTokenThreshold_PerSymbol(t *testing.T) {
	rule := "Hold over 2 WETH and at least 500 USDC"
	th, ok := tokenThreshold(rule, "USDC")
	assert.True(t, ok)
	assert.Equal(t, threshold{value: 500}, th)

	th, ok = tokenThreshold(rule, "weth")
	assert.True(t, ok)
	assert.Equal(t, threshold{value: 2, strict: true}, th)
}

func TestSynthesize_NFTNegation(t *testing.T) {
	rule := "You must NOT own a Bored Ape"
	rec := func(res facts.Result) []models.ToolCallRecord {
		return []models.ToolCallRecord{{ToolName: ToolNFTOwnership, Result: res}}
	}
	assert.True(t, Synthesize(rec(facts.Result{"owns_nft": false}), rule).Approved)
	assert.False(t, Synthesize(rec(facts.Result{"owns_nft": true}), rule).Approved)
	assert.False(t, Synthesize(rec(facts.Result{"owns_nft": false, "check_failed": true}), rule).Approved,
		"an unreadable contract never satisfies a negated rule")
	assert.True(t, Synthesize(rec(facts.Result{"owns_nft": true}), "Own a Bored Ape").Approved)
}

func TestSynthesize_Discord(t *testing.T) {
	member := models.ToolCallRecord{ToolName: ToolDiscordMembership, Args: map[string]any{}, Result: facts.Result{"is_member": true}}
	assert.True(t, Synthesize([]models.ToolCallRecord{member}, "rule").Approved)

	withRole := models.ToolCallRecord{
		ToolName: ToolDiscordMembership,
		Args:     map[string]any{"roleId": roleB},
		Result:   facts.Result{"is_member": true, "has_role": false},
	}
	assert.False(t, Synthesize([]models.ToolCallRecord{withRole}, "rule").Approved)
}

func TestSynthesize_Wallet(t *testing.T) {
	rec := func(res facts.Result) []models.ToolCallRecord {
		return []models.ToolCallRecord{{ToolName: ToolWalletStats, Result: res}}
	}
	assert.False(t, Synthesize(rec(facts.Result{"tx_count": uint64(3)}), "at least 5 transactions").Approved)
	assert.True(t, Synthesize(rec(facts.Result{"tx_count": uint64(10)}), "at least 5 transactions").Approved)
	assert.True(t, Synthesize(rec(facts.Result{"balance_eth": 0.5}), "Hold at least 0.1 ETH").Approved)
	assert.True(t, Synthesize(rec(facts.Result{"wallet_age_days": 400}), "Wallet older than 1 year").Approved)
	assert.False(t, Synthesize(rec(facts.Result{"wallet_age_days": -1}), "Wallet older than 30 days").Approved)
	assert.False(t, Synthesize(rec(facts.Result{"tx_count": uint64(0)}), "active wallet").Approved)
}

func TestSynthesize_TimeWindow(t *testing.T) {
	rec := func(res facts.Result) []models.ToolCallRecord {
		return []models.ToolCallRecord{{ToolName: ToolTime, Result: res}}
	}
	assert.True(t, Synthesize(rec(facts.Result{"local_hour": 10}), "Claim between 9am and 5pm").Approved)
	assert.False(t, Synthesize(rec(facts.Result{"local_hour": 17}), "Claim between 9am and 5pm").Approved)
	assert.True(t, Synthesize(rec(facts.Result{"utc_hour": 23, "local_hour": 12}), "between 22 and 6 UTC").Approved)
	assert.True(t, Synthesize(rec(facts.Result{"utc_hour": 3}), "between 22 and 6 UTC").Approved)

	d := Synthesize(rec(facts.Result{"local_hour": 3}), "Be awake")
	assert.False(t, d.Approved, "a time check without a window decides nothing")
	assert.Contains(t, d.Explanation, "did not establish")
}

func TestSynthesize_Mixed(t *testing.T) {
	log := []models.ToolCallRecord{
		{ToolName: ToolTime, Result: facts.Result{"local_hour": 3}},
		{ToolName: ToolGeoSybil, Result: facts.Result{"country_code": "JP", "is_blocked": false}},
	}
	assert.True(t, Synthesize(log, "Not from a sanctioned country").Approved)

	log = append(log, models.ToolCallRecord{ToolName: "check_weather", Result: facts.Result{"error": "unknown tool"}})
	d := Synthesize(log, "Not from a sanctioned country")
	assert.False(t, d.Approved)
	assert.Contains(t, d.Explanation, "check_weather")
}

func TestScrub(t *testing.T) {
	rule := "Type the secret code STYLUS2026 to claim"

	d := Scrub(models.Reject("You typed STYLUS2025 but the code is stylus2026."), rule)
	assert.Equal(t, GenericRejection, d.Explanation)

	d = Scrub(models.Reject("Your answer did not match."), rule)
	assert.Equal(t, "Your answer did not match.", d.Explanation)

	ok := models.VerificationDecision{Approved: true, Explanation: "STYLUS2026 accepted"}
	assert.Equal(t, ok, Scrub(ok, rule))

	d = Scrub(models.Reject("The expected phrase was Blue Whale."), `Answer must be "blue whale"`)
	assert.Equal(t, GenericRejection, d.Explanation)

	d = Parse(`{"approved": false, "explanation": "The password is opensesame, you wrote open"}`, nil, "The password is opensesame")
	assert.Equal(t, GenericRejection, d.Explanation)
}

func TestRuleSecrets(t *testing.T) {
	assert.ElementsMatch(t, []string{"STYLUS2026"}, ruleSecrets("Enter STYLUS2026"))
	assert.ElementsMatch(t, []string{"banana"}, ruleSecrets("The secret word is banana"))
	assert.Empty(t, ruleSecrets("Hold 10 ETH in 0xAbC0000000000000000000000000000000000001"))
}
