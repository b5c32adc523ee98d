package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexID accepts a drop ID sent either as a JSON number or a JSON string.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("drop id must be a number or string: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// DropRecord is the decoded return value of the vault's drops(uint256) accessor.
// It is owned by the chain and only ever read here.
type DropRecord struct {
	Sender            string `json:"sender"`
	Amount            string `json:"amount"`
	Active            bool   `json:"active"`
	ExpiresAt         uint64 `json:"expiresAt"`
	GatekeeperAddress string `json:"gatekeeper"`
	SignerPubKeyX     []byte `json:"-"`
	SignerPubKeyY     []byte `json:"-"`
}

// DropDetails is the subset of a DropRecord exposed by /check-claim.
type DropDetails struct {
	Sender     string `json:"sender"`
	Amount     string `json:"amount"`
	ExpiresAt  string `json:"expiresAt"`
	Gatekeeper string `json:"gatekeeper"`
}

// DropStatus is the lifecycle view of a drop returned by /check-claim.
type DropStatus struct {
	Exists    bool        `json:"exists"`
	Active    bool        `json:"active"`
	Claimed   bool        `json:"claimed"`
	Reclaimed bool        `json:"reclaimed"`
	ClaimedBy string      `json:"claimedBy"`
	Details   DropDetails `json:"details"`
}
