package gatekeeper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gatekeeper-api/models"
)

type outcome int

const (
	neutral outcome = iota
	passed
	failed
)

// Synthesize decides from the tool log when the model produced no text. It
// approves only with at least one passing check and no failing one.
func Synthesize(log []models.ToolCallRecord, rule string) models.VerificationDecision {
	if len(log) == 0 {
		return models.Reject("No verification data was available.")
	}

	var pass, fail int
	var failedTools []string
	for _, rec := range log {
		switch classify(rec, rule) {
		case passed:
			pass++
		case failed:
			fail++
			failedTools = append(failedTools, rec.ToolName)
		}
	}

	if pass >= 1 && fail == 0 {
		return models.VerificationDecision{
			Approved:    true,
			Explanation: fmt.Sprintf("All %d verification check(s) passed.", pass),
		}
	}
	if fail > 0 {
		return models.Reject(fmt.Sprintf("Requirement not met: %s did not pass.", strings.Join(dedupe(failedTools), ", ")))
	}
	return models.Reject("The collected data did not establish that the requirement was met.")
}

func classify(rec models.ToolCallRecord, rule string) outcome {
	res := rec.Result
	if res == nil {
		return failed
	}
	if _, ok := res["error"]; ok {
		return failed
	}
	checkFailed := boolField(res, "check_failed")

	switch rec.ToolName {
	case ToolNFTOwnership:
		if checkFailed {
			return failed
		}
		owns := boolField(res, "owns_nft")
		if ruleNegatesOwnership(rule) {
			owns = !owns
		}
		return verdict(owns)

	case ToolDiscordMembership:
		ok := boolField(res, "is_member")
		if role, _ := rec.Args["roleId"].(string); role != "" {
			ok = ok && boolField(res, "has_role")
		}
		return verdict(ok)

	case ToolGeoSybil:
		if checkFailed {
			return failed
		}
		if _, isSybilCheck := res["is_sybil"]; isSybilCheck {
			return verdict(!boolField(res, "is_sybil"))
		}
		if _, isGeoCheck := res["is_blocked"]; isGeoCheck {
			return verdict(!boolField(res, "is_blocked"))
		}
		return failed

	case ToolTokenBalance:
		bal, ok := numField(res, "balance")
		if !ok {
			return failed
		}
		symbol, _ := res["symbol"].(string)
		if th, found := tokenThreshold(rule, symbol); found {
			return verdict(th.met(bal))
		}
		return verdict(bal > 0)

	case ToolWalletStats:
		return verdict(walletMeets(res, rule))

	case ToolTime:
		w, found := hourWindow(rule)
		if !found {
			return neutral
		}
		key := "local_hour"
		if w.utc {
			key = "utc_hour"
		}
		h, ok := numField(res, key)
		if !ok {
			return failed
		}
		return verdict(w.contains(int(h)))
	}

	// Unknown tools carry an error and never reach here; anything else is unexpected.
	return failed
}

func verdict(ok bool) outcome {
	if ok {
		return passed
	}
	return failed
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func numField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		return f, err == nil
	}
	return 0, false
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

var negatedOwnershipRe = regexp.MustCompile(`(?i)\b(?:must\s+not|mustn't|must\s+never|should\s+not|shouldn't|does\s+not|doesn't|do\s+not|don't|cannot|can't|never|not)\s+(?:\w+\s+){0,2}(?:own|hold|have|possess)|\bnon[- ]?holders?\b|\bwithout\s+(?:owning|holding|any)\b`)

// ruleNegatesOwnership reports rules like "must NOT own a Bored Ape".
func ruleNegatesOwnership(rule string) bool {
	return negatedOwnershipRe.MatchString(rule)
}

type threshold struct {
	value  float64
	strict bool
}

func (t threshold) met(v float64) bool {
	if t.strict {
		return v > t.value
	}
	return v >= t.value
}

const comparator = `(>=|≥|>|at\s+least|more\s+than|greater\s+than|over|above|minimum(?:\s+of)?|min\.?)`

var (
	amountRe     = regexp.MustCompile(`(?i)` + comparator + `\s*\$?\s*([\d,]*\.?\d+)(?:\s*\$?([A-Za-z]{2,10})\b)?`)
	bareAmountRe = regexp.MustCompile(`(?i)([\d,]*\.?\d+)\s*\+?\s*\$?([A-Za-z]{2,10})\b`)
)

func parseThreshold(m []string) (threshold, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return threshold{}, false
	}
	op := strings.ToLower(strings.Join(strings.Fields(m[1]), " "))
	strict := op == ">" || op == "more than" || op == "greater than" || op == "over" || op == "above"
	return threshold{value: v, strict: strict}, true
}

// tokenThreshold extracts "> 100 USDC", "at least 50 ARB" or "100+ USDC" for the
// given symbol. A comparator without a symbol applies when no amount names one.
func tokenThreshold(rule, symbol string) (threshold, bool) {
	symbol = strings.TrimPrefix(strings.ToUpper(symbol), "$")
	var unnamed []string
	for _, m := range amountRe.FindAllStringSubmatch(rule, -1) {
		if m[3] == "" {
			if unnamed == nil {
				unnamed = m
			}
			continue
		}
		if strings.EqualFold(m[3], symbol) {
			return parseThreshold(m)
		}
	}
	for _, m := range bareAmountRe.FindAllStringSubmatch(rule, -1) {
		if symbol != "" && strings.EqualFold(m[2], symbol) {
			return parseThreshold([]string{m[0], "", m[1]})
		}
	}
	if unnamed != nil {
		return parseThreshold(unnamed)
	}
	return threshold{}, false
}

var (
	txThresholdRe  = regexp.MustCompile(`(?i)` + comparator + `?\s*([\d,]+)\s*\+?\s*(?:transactions|txs|txns|tx)\b`)
	ethThresholdRe = regexp.MustCompile(`(?i)` + comparator + `?\s*([\d,]*\.?\d+)\s*(?:native\s+)?eth\b`)
	ageThresholdRe = regexp.MustCompile(`(?i)(?:older\s+than|age\s*(?:of\s*)?(?:>=|>|at\s+least|over|more\s+than)?)\s*(\d+)\s*(days?|weeks?|months?|years?)|(\d+)\s*(days?|weeks?|months?|years?)\s+old\b`)
)

func walletMeets(res map[string]any, rule string) bool {
	checked := false

	if m := txThresholdRe.FindStringSubmatch(rule); m != nil {
		checked = true
		th, ok := parseThreshold(m)
		tx, have := numField(res, "tx_count")
		if !ok || !have || !th.met(tx) {
			return false
		}
	}

	if m := ethThresholdRe.FindStringSubmatch(rule); m != nil {
		checked = true
		th, ok := parseThreshold(m)
		bal, have := numField(res, "balance_eth")
		if !ok || !have || !th.met(bal) {
			return false
		}
	}

	if m := ageThresholdRe.FindStringSubmatch(rule); m != nil {
		checked = true
		num, unit := m[1], m[2]
		if num == "" {
			num, unit = m[3], m[4]
		}
		n, _ := strconv.Atoi(num)
		age, have := numField(res, "wallet_age_days")
		if !have || age < 0 || age < float64(n)*unitDays(unit) {
			return false
		}
	}

	if !checked {
		tx, _ := numField(res, "tx_count")
		return tx > 0
	}
	return true
}

func unitDays(unit string) float64 {
	switch strings.TrimSuffix(strings.ToLower(unit), "s") {
	case "week":
		return 7
	case "month":
		return 30
	case "year":
		return 365
	default:
		return 1
	}
}

type window struct {
	start, end int
	utc        bool
}

// contains treats the window as [start, end) and wraps midnight.
func (w window) contains(h int) bool {
	if w.start <= w.end {
		return h >= w.start && h < w.end
	}
	return h >= w.start || h < w.end
}

var windowRe = regexp.MustCompile(`(?i)between\s+(\d{1,2})(?::\d{2})?\s*(am|pm)?\s*(?:and|to|-)\s*(\d{1,2})(?::\d{2})?\s*(am|pm)?\s*(utc|gmt)?`)

func hourWindow(rule string) (window, bool) {
	m := windowRe.FindStringSubmatch(rule)
	if m == nil {
		return window{}, false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[3])
	start = to24(start, m[2])
	end = to24(end, m[4])
	if start > 23 || end > 24 {
		return window{}, false
	}
	return window{start: start, end: end, utc: m[5] != ""}, true
}

func to24(h int, meridiem string) int {
	switch strings.ToLower(meridiem) {
	case "am":
		if h == 12 {
			return 0
		}
	case "pm":
		if h < 12 {
			return h + 12
		}
	}
	return h
}
