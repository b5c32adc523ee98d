package models

import "time"

// VerificationAudit is the archived trace of one /verify call. It stores a hash of
// the rule and the names of the tools used, never the user's answer.
type VerificationAudit struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	RuleHash    string    `gorm:"type:char(64);index" json:"rule_hash"`
	DropID      string    `gorm:"type:varchar(80);index" json:"drop_id,omitempty"`
	Approved    bool      `gorm:"not null;index" json:"approved"`
	Explanation string    `gorm:"type:text" json:"explanation"`
	Model       string    `gorm:"type:varchar(64)" json:"model"`
	Turns       int       `json:"turns"`
	ToolNames   string    `gorm:"type:text" json:"tool_names"` // comma-separated, in call order
	Exhausted   bool      `json:"exhausted"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
