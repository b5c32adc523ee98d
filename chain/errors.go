// Package chain talks to the claim vault: it converts WebAuthn signatures into the
// vault's compact form, relays claims, and decodes drop state from raw return data.
package chain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrBadClaim marks a claim request that cannot be encoded (bad drop ID or receiver).
var ErrBadClaim = errors.New("bad claim request")

// SignatureError is a malformed biometric assertion. Nothing is submitted.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "invalid biometric signature: " + e.Reason
}

func sigErr(format string, args ...any) error {
	return &SignatureError{Reason: fmt.Sprintf(format, args...)}
}

// ChainError is an RPC failure or a contract revert. Reason holds the decoded
// revert string (E2, E7: Unauthorized, ...) when the node returned one.
type ChainError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ChainError) Error() string {
	msg := "chain " + e.Op + " failed"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil && (e.Reason == "" || !strings.Contains(e.Err.Error(), e.Reason)) {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *ChainError) Unwrap() error { return e.Err }

func chainErr(op string, err error) *ChainError {
	return &ChainError{Op: op, Reason: revertReason(err), Err: err}
}

var reasonInMessageRe = regexp.MustCompile(`\bE\d{1,2}\b(?::\s*[A-Za-z][A-Za-z ]*)?`)

// revertReason extracts the revert string from a node error. The vault reverts with
// raw ASCII bytes rather than Error(string), so both encodings are tried.
func revertReason(err error) string {
	if err == nil {
		return ""
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil && len(data) > 0 {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
				if printable(data) {
					return string(data)
				}
			}
		}
	}
	return reasonInMessageRe.FindString(err.Error())
}

func printable(b []byte) bool {
	for _, c := range b {
		if c > unicode.MaxASCII || !unicode.IsPrint(rune(c)) {
			return false
		}
	}
	return true
}
