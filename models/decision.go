package models

// ToolCallRecord is one entry of an evaluation session's append-only call log.
type ToolCallRecord struct {
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args"`
	Result   map[string]any `json:"result"`
}

// VerificationDecision is the outward answer of /verify.
// ProofToken is set iff Approved.
type VerificationDecision struct {
	Approved    bool   `json:"approved"`
	Explanation string `json:"explanation"`
	ProofToken  string `json:"proofToken,omitempty"`
}

// Reject builds a rejection with the given explanation.
func Reject(explanation string) VerificationDecision {
	return VerificationDecision{Approved: false, Explanation: explanation}
}
