package gatekeeper

import (
	"regexp"
	"strings"
	"unicode"

	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

// GenericRejection replaces any rejection explanation that would leak a secret.
const GenericRejection = "Verification failed. The requirement was not met."

var (
	quotedRe = regexp.MustCompile(`"([^"]{2,})"|'([^']{2,})'|“([^”]{2,})”|‘([^’]{2,})’|` + "`([^`]{2,})`")
	wordRe   = regexp.MustCompile(`[\p{L}\p{N}_-]+`)
)

var secretKeywords = map[string]bool{
	"password": true, "passphrase": true, "passcode": true, "answer": true,
	"code": true, "secret": true, "keyword": true, "phrase": true, "word": true,
}

// fillers are skipped between a secret keyword and its value ("the code is X").
var fillers = map[string]bool{
	"is": true, "are": true, "be": true, "must": true, "should": true, "equals": true,
	"equal": true, "to": true, "the": true, "exactly": true, "of": true, "will": true,
	"a": true, "an": true, "correct": true, "right": true, "word": true, "as": true,
}

// ruleSecrets lists tokens of rule that a rejection must never repeat: quoted
// strings, the value named after a secret keyword, and mixed letter-digit codes.
func ruleSecrets(rule string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if len([]rune(s)) >= 3 && !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}

	for _, m := range quotedRe.FindAllStringSubmatch(rule, -1) {
		for _, g := range m[1:] {
			if g != "" {
				add(g)
			}
		}
	}

	words := wordRe.FindAllString(rule, -1)
	for i, w := range words {
		if secretKeywords[strings.ToLower(w)] {
			for j := i + 1; j < len(words) && j <= i+5; j++ {
				if lw := strings.ToLower(words[j]); fillers[lw] || secretKeywords[lw] {
					continue
				}
				add(words[j])
				break
			}
		}
		if isMixedCode(w) {
			add(w)
		}
	}
	return out
}

// isMixedCode matches tokens like STYLUS2026 but not hex addresses or numbers.
func isMixedCode(w string) bool {
	if len(w) < 4 || strings.HasPrefix(strings.ToLower(w), "0x") {
		return false
	}
	var letter, digit bool
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

// Scrub replaces a rejection's explanation when it repeats a secret from rule.
func Scrub(d models.VerificationDecision, rule string) models.VerificationDecision {
	if d.Approved {
		return d
	}
	lower := strings.ToLower(d.Explanation)
	for _, s := range ruleSecrets(rule) {
		if strings.Contains(lower, strings.ToLower(s)) {
			utils.Log.Infof("🛡️ [GATEKEEPER] rejection explanation scrubbed")
			d.Explanation = GenericRejection
			return d
		}
	}
	return d
}
