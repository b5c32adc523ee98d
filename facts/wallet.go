package facts

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"gatekeeper-api/utils"
)

// WalletStats reports native balance, nonce, contract status and, when an explorer
// is configured, transaction history for address on chain.
func (p *Providers) WalletStats(ctx context.Context, address, chain string) Result {
	if !common.IsHexAddress(address) {
		return errResult("invalid address: " + address)
	}
	key, r, fail := p.reader(chain)
	if fail != nil {
		return fail
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	owner := common.HexToAddress(address)
	var (
		balance *big.Int
		nonce   uint64
		code    []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		balance, err = r.BalanceAt(gctx, owner, nil)
		return err
	})
	g.Go(func() (err error) {
		nonce, err = r.NonceAt(gctx, owner, nil)
		return err
	})
	g.Go(func() (err error) {
		code, err = r.CodeAt(gctx, owner, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		utils.Log.Warnf("⚠️ [FACTS] wallet stats RPC failed on %s: %v", key, err)
		return errResult("RPC failed for " + key + ": " + err.Error())
	}

	out := Result{
		"address":              owner.Hex(),
		"chain":                key,
		"balance_eth":          weiToEther(balance),
		"balance_wei":          balance.String(),
		"tx_count":             nonce,
		"is_contract":          len(code) > 0,
		"is_active":            nonce > 0,
		"wallet_age_days":      -1,
		"days_since_active":    -1,
		"lifetime_gas_eth":     "0",
		"largest_outbound_eth": "0",
		"history_source":       "unavailable",
	}

	if p.Explorer == nil {
		return out
	}
	h, err := p.Explorer.History(ctx, ChainIDs[key], strings.ToLower(owner.Hex()))
	if err != nil {
		utils.Log.Warnf("⚠️ [FACTS] explorer history failed on %s: %v", key, err)
		out["history_error"] = err.Error()
		return out
	}
	out["wallet_age_days"] = h.WalletAgeDays
	out["days_since_active"] = h.DaysSinceActive
	out["lifetime_gas_eth"] = FormatUnits(h.LifetimeGasWei, 18)
	out["largest_outbound_eth"] = FormatUnits(h.LargestOutboundWei, 18)
	out["history_source"] = "explorer"
	return out
}
