package gatekeeper

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"gatekeeper-api/models"
)

// Strategy turns a model reply into a decision. ok is false when the strategy
// does not apply and the next one should run.
type Strategy func(text string, log []models.ToolCallRecord, rule string) (models.VerificationDecision, bool)

// FirstMatch runs strategies in order and returns the first that applies.
func FirstMatch(strategies ...Strategy) Strategy {
	return func(text string, log []models.ToolCallRecord, rule string) (models.VerificationDecision, bool) {
		for _, s := range strategies {
			if d, ok := s(text, log, rule); ok {
				return d, true
			}
		}
		return models.VerificationDecision{}, false
	}
}

var textCascade = FirstMatch(
	parseWholeJSON,
	parseBraceSpan,
	parseJSONFragment,
	parseLiterals,
	parseKeywords,
)

const unreadableExplanation = "Verification could not be completed."

// Parse reduces model output to a decision. It never fails and defaults to reject.
// Empty text is decided from the tool log alone.
func Parse(text string, log []models.ToolCallRecord, rule string) models.VerificationDecision {
	var d models.VerificationDecision
	if strings.TrimSpace(text) == "" {
		d = Synthesize(log, rule)
	} else if got, ok := textCascade(text, log, rule); ok {
		d = got
	} else {
		d = models.Reject(unreadableExplanation)
	}
	d.ProofToken = ""
	return Scrub(d, rule)
}

// defaultExplanation stands in only when the reply has no explanation field at all.
func defaultExplanation(approved bool) string {
	if approved {
		return "All requirements were met."
	}
	return GenericRejection
}

type rawDecision struct {
	Approved    *bool   `json:"approved"`
	Explanation *string `json:"explanation"`
}

// decodeDecision keeps a present explanation byte for byte, empty or not.
func decodeDecision(s string) (models.VerificationDecision, bool) {
	var raw rawDecision
	if err := json.Unmarshal([]byte(s), &raw); err != nil || raw.Approved == nil {
		return models.VerificationDecision{}, false
	}
	d := models.VerificationDecision{Approved: *raw.Approved, Explanation: defaultExplanation(*raw.Approved)}
	if raw.Explanation != nil {
		d.Explanation = *raw.Explanation
	}
	return d, true
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(t); m != nil {
		return strings.TrimSpace(m[1])
	}
	return t
}

func parseWholeJSON(text string, _ []models.ToolCallRecord, _ string) (models.VerificationDecision, bool) {
	return decodeDecision(stripFences(text))
}

func parseBraceSpan(text string, _ []models.ToolCallRecord, _ string) (models.VerificationDecision, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.VerificationDecision{}, false
	}
	return decodeDecision(text[start : end+1])
}

var fragmentRe = regexp.MustCompile(`(?s)\{[^{}]*"approved"\s*:\s*(?:true|false)[^{}]*\}`)

func parseJSONFragment(text string, _ []models.ToolCallRecord, _ string) (models.VerificationDecision, bool) {
	for _, frag := range fragmentRe.FindAllString(text, -1) {
		if d, ok := decodeDecision(frag); ok {
			return d, true
		}
	}
	return models.VerificationDecision{}, false
}

var (
	approvedLiteralRe    = regexp.MustCompile(`(?i)"?approved"?\s*[:=]\s*"?(true|false)\b`)
	explanationLiteralRe = regexp.MustCompile(`(?is)"?explanation"?\s*[:=]\s*"((?:[^"\\]|\\.)*)"`)
)

func parseLiterals(text string, _ []models.ToolCallRecord, _ string) (models.VerificationDecision, bool) {
	m := approvedLiteralRe.FindStringSubmatch(text)
	if m == nil {
		return models.VerificationDecision{}, false
	}
	d := models.VerificationDecision{Approved: strings.EqualFold(m[1], "true")}
	d.Explanation = defaultExplanation(d.Approved)
	if e := explanationLiteralRe.FindStringSubmatch(text); e != nil {
		if unq, err := strconv.Unquote(`"` + e[1] + `"`); err == nil {
			d.Explanation = unq
		} else {
			d.Explanation = e[1]
		}
	}
	return d, true
}

var (
	approveWordRe = regexp.MustCompile(`(?i)\b(granted|approved|verified|passed|success(?:ful(?:ly)?)?|yes)\b`)
	rejectWordRe  = regexp.MustCompile(`(?i)\b(denied|rejected|failed|incorrect|wrong|no|not)\b`)
)

const maxFreeTextExplanation = 500

// parseKeywords always applies: approval words without any rejection word
// approve, anything else rejects.
func parseKeywords(text string, _ []models.ToolCallRecord, _ string) (models.VerificationDecision, bool) {
	explanation := strings.TrimSpace(text)
	if r := []rune(explanation); len(r) > maxFreeTextExplanation {
		explanation = string(r[:maxFreeTextExplanation]) + "..."
	}
	approved := approveWordRe.MatchString(text) && !rejectWordRe.MatchString(text)
	return models.VerificationDecision{Approved: approved, Explanation: explanation}, true
}
