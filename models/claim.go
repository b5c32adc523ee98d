package models

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// ByteList decodes binary fields sent by the browser. Accepted shapes are a JSON
// array of numbers, as produced by Array.from(Uint8Array), a "0x" hex string, or a
// base64url string, as produced by most WebAuthn helpers.
type ByteList []byte

func (b *ByteList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}

	if data[0] == '[' {
		var nums []int
		if err := json.Unmarshal(data, &nums); err != nil {
			return fmt.Errorf("byte array: %w", err)
		}
		out := make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return fmt.Errorf("byte array: element %d out of range: %d", i, n)
			}
			out[i] = byte(n)
		}
		*b = out
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("byte field must be an array or string: %w", err)
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		out, err := hex.DecodeString(s[2:])
		if err != nil {
			return fmt.Errorf("hex bytes: %w", err)
		}
		*b = out
		return nil
	}

	trimmed := strings.TrimRight(s, "=")
	out, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		out, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			return fmt.Errorf("byte field is neither hex nor base64: %w", err)
		}
	}
	*b = out
	return nil
}

func (b ByteList) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(b))
}

// BiometricData is the WebAuthn assertion relayed by the browser.
type BiometricData struct {
	ID                string   `json:"id,omitempty"`
	Signature         ByteList `json:"signature,omitempty"`
	AuthenticatorData ByteList `json:"authenticatorData,omitempty"`
	ClientDataJSON    ByteList `json:"clientDataJSON,omitempty"`
	Challenge         string   `json:"challenge,omitempty"`
	// Mock marks demo flows that rely on the relayer signature alone.
	Mock bool `json:"mock,omitempty"`
}

// Present reports whether a real biometric assertion was supplied.
func (b *BiometricData) Present() bool {
	return b != nil && !b.Mock && len(b.Signature) > 0
}

// ClaimRequest is the body of POST /claim.
type ClaimRequest struct {
	DropID        FlexID         `json:"dropId"`
	Receiver      string         `json:"receiver"`
	ProofToken    string         `json:"proofToken,omitempty"`
	BiometricData *BiometricData `json:"biometricData,omitempty"`
}
