package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// vaultABI covers the vault methods the relayer uses. drops() is decoded by hand in
// status.go and is listed only for completeness of the bound contract.
const vaultABI = `[
  {"type":"function","name":"claimDrop","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"dropId","type":"uint256"},
    {"name":"receiver","type":"address"},
    {"name":"agentSignature","type":"uint8[]"},
    {"name":"biometricSignature","type":"uint8[]"},
    {"name":"messageHash","type":"uint8[]"}]},
  {"type":"function","name":"drops","stateMutability":"view","inputs":[{"name":"dropId","type":"uint256"}],"outputs":[
    {"name":"sender","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"active","type":"bool"},
    {"name":"expiresAt","type":"uint64"},
    {"name":"gatekeeper","type":"address"},
    {"name":"signerPubKeyX","type":"uint8[]"},
    {"name":"signerPubKeyY","type":"uint8[]"}]},
  {"type":"event","name":"DropClaimed","anonymous":false,"inputs":[
    {"name":"dropId","type":"uint256","indexed":true},
    {"name":"receiver","type":"address","indexed":true}]}
]`

var parsedVaultABI = mustParseABI(vaultABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: vault ABI: " + err.Error())
	}
	return parsed
}

var (
	dropsSelector    = crypto.Keccak256([]byte("drops(uint256)"))[:4]
	dropClaimedTopic = crypto.Keccak256Hash([]byte("DropClaimed(uint256,address)"))
)

// ParseDropID accepts a decimal or 0x-hex drop ID.
func ParseDropID(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	digits, base := raw, 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		digits, base = raw[2:], 16
	}
	id, ok := new(big.Int).SetString(digits, base)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, fmt.Errorf("%w: drop id %q", ErrBadClaim, raw)
	}
	return id, nil
}

// ParseReceiver validates a receiver address.
func ParseReceiver(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: receiver %q is not an address", ErrBadClaim, raw)
	}
	return common.HexToAddress(raw), nil
}
