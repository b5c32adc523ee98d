package models

import "time"

// ProofSession records a successful verification. It is created on approval and
// invalidated exactly once, when a claim redeems it. Address is the wallet whose
// facts won the approval; an empty Address binds no receiver.
type ProofSession struct {
	Token     string    `gorm:"primaryKey;type:varchar(80)" json:"token"`
	DropID    string    `gorm:"type:varchar(80);index" json:"drop_id,omitempty"`
	Address   string    `gorm:"type:varchar(64)" json:"address,omitempty"`
	Valid     bool      `gorm:"not null;index" json:"valid"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Usable reports whether the session can still authorize a claim at now.
func (p ProofSession) Usable(now time.Time) bool {
	return p.Valid && now.Before(p.ExpiresAt)
}
