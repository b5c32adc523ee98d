package facts

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"gatekeeper-api/utils"
)

// decimals() selector.
var decimalsSelector = []byte{0x31, 0x3c, 0xe5, 0x67}

// TokenBalance reads an ERC-20 balance. symbol is a registry symbol ("USDC", "$ARB")
// or a raw contract address, in which case decimals() is read from the contract.
func (p *Providers) TokenBalance(ctx context.Context, address, symbol, chain string) Result {
	if !common.IsHexAddress(address) {
		return errResult("invalid address: " + address)
	}
	key, r, fail := p.reader(chain)
	if fail != nil {
		return fail
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var info TokenInfo
	if common.IsHexAddress(symbol) {
		info = TokenInfo{Symbol: symbol, Address: common.HexToAddress(symbol), Decimals: 18}
		if d, err := readDecimals(ctx, r, info.Address); err == nil {
			info.Decimals = d
		} else if errors.Is(err, errBadDecimals) {
			return errResult("contract " + info.Address.Hex() + " reports invalid decimals")
		}
	} else {
		var ok bool
		info, ok = LookupToken(key, symbol)
		if !ok {
			known := ChainsForToken(symbol)
			sort.Strings(known)
			msg := "token " + strings.ToUpper(symbol) + " is not known on " + key
			if len(known) > 0 {
				msg += " (known on: " + strings.Join(known, ", ") + ")"
			}
			return errResult(msg)
		}
	}

	bal, err := callBalanceOf(ctx, r, info.Address, common.HexToAddress(address))
	if err != nil {
		utils.Log.Warnf("⚠️ [FACTS] balanceOf failed for %s on %s: %v", info.Address.Hex(), key, err)
		return errResult("failed to read token balance on " + key + ": " + err.Error())
	}

	return Result{
		"symbol":      info.Symbol,
		"chain":       key,
		"contract":    info.Address.Hex(),
		"decimals":    info.Decimals,
		"balance":     FormatUnits(bal, info.Decimals),
		"balance_raw": bal.String(),
		"has_token":   bal.Sign() > 0,
	}
}

func readDecimals(ctx context.Context, r ChainReader, contract common.Address) (int, error) {
	out, err := r.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: decimalsSelector}, nil)
	if err != nil {
		return 0, err
	}
	if len(out) < 32 {
		return 0, errShortReturn
	}
	v := new(big.Int).SetBytes(out[:32])
	if !v.IsUint64() || v.Uint64() > MaxDecimals {
		return 0, errBadDecimals
	}
	return int(v.Uint64()), nil
}

// NFTOwnership checks ERC-721 balanceOf. A known collection name pins the chain;
// an unknown contract must come with an explicit chain.
func (p *Providers) NFTOwnership(ctx context.Context, address, collectionName, contractAddress, chain string) Result {
	if !common.IsHexAddress(address) {
		return errResult("invalid address: " + address)
	}

	var (
		contract common.Address
		name     string
	)
	if c, ok := LookupCollection(collectionName); ok && collectionName != "" {
		contract, name, chain = c.Address, c.Name, c.Chain
	} else if common.IsHexAddress(contractAddress) {
		if chain == "" {
			return errResult("chain is required for an unknown NFT contract")
		}
		contract, name = common.HexToAddress(contractAddress), contractAddress
	} else if collectionName != "" {
		return errResult("unknown NFT collection: " + collectionName + "; pass contractAddress and chain")
	} else {
		return errResult("collectionName or contractAddress is required")
	}

	key, r, fail := p.reader(chain)
	if fail != nil {
		return fail
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	bal, err := callBalanceOf(ctx, r, contract, common.HexToAddress(address))
	if err != nil {
		utils.Log.Warnf("⚠️ [FACTS] NFT balanceOf failed for %s on %s: %v", contract.Hex(), key, err)
		return Result{
			"collection":   name,
			"contract":     contract.Hex(),
			"chain":        key,
			"owns_nft":     false,
			"check_failed": true,
			"note":         "ownership could not be verified: " + err.Error(),
		}
	}

	return Result{
		"collection": name,
		"contract":   contract.Hex(),
		"chain":      key,
		"owns_nft":   bal.Sign() > 0,
		"balance":    bal.String(),
	}
}
