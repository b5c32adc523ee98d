package facts

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"gatekeeper-api/utils"
)

// Canonical chain keys.
const (
	ChainEthereum        = "ethereum"
	ChainArbitrum        = "arbitrum"
	ChainBase            = "base"
	ChainOptimism        = "optimism"
	ChainPolygon         = "polygon"
	ChainArbitrumSepolia = "arbitrum_sepolia"
	ChainEthereumSepolia = "ethereum_sepolia"
)

// DefaultChain is used when the model names no chain for a native-balance query.
const DefaultChain = ChainArbitrum

// ChainIDs maps canonical keys to EVM chain IDs (used for the explorer API).
var ChainIDs = map[string]int64{
	ChainEthereum:        1,
	ChainArbitrum:        42161,
	ChainBase:            8453,
	ChainOptimism:        10,
	ChainPolygon:         137,
	ChainArbitrumSepolia: 421614,
	ChainEthereumSepolia: 11155111,
}

var chainAliases = map[string]string{
	"eth":                      ChainEthereum,
	"mainnet":                  ChainEthereum,
	"ethereum_mainnet":         ChainEthereum,
	"eth_mainnet":              ChainEthereum,
	"l1":                       ChainEthereum,
	"arb":                      ChainArbitrum,
	"arbitrum_one":             ChainArbitrum,
	"arb1":                     ChainArbitrum,
	"arbitrum_mainnet":         ChainArbitrum,
	"base_mainnet":             ChainBase,
	"op":                       ChainOptimism,
	"optimism_mainnet":         ChainOptimism,
	"op_mainnet":               ChainOptimism,
	"matic":                    ChainPolygon,
	"polygon_pos":              ChainPolygon,
	"polygon_mainnet":          ChainPolygon,
	"arb_sepolia":              ChainArbitrumSepolia,
	"arbitrum_sepolia_testnet": ChainArbitrumSepolia,
	"arbitrum_testnet":         ChainArbitrumSepolia,
	"sepolia_arbitrum":         ChainArbitrumSepolia,
	"sepolia":                  ChainEthereumSepolia,
	"eth_sepolia":              ChainEthereumSepolia,
	"sepolia_eth":              ChainEthereumSepolia,
	"ethereum_testnet":         ChainEthereumSepolia,
}

// ResolveChain maps free-form chain names to a canonical key. ok is false when the
// name is not a known chain.
func ResolveChain(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if _, ok := ChainIDs[key]; ok {
		return key, true
	}
	if canonical, ok := chainAliases[key]; ok {
		return canonical, true
	}
	return "", false
}

// ChainReader is the subset of an Ethereum JSON-RPC client the providers use.
// *ethclient.Client satisfies it.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Chains holds one RPC client per configured chain.
type Chains struct {
	readers map[string]ChainReader
}

// NewChains wraps an existing set of readers.
func NewChains(readers map[string]ChainReader) *Chains {
	if readers == nil {
		readers = map[string]ChainReader{}
	}
	return &Chains{readers: readers}
}

// DialChains connects to every configured RPC URL. Chains that fail to dial are
// logged and left out; providers report them as unavailable.
func DialChains(ctx context.Context, urls map[string]string) *Chains {
	readers := make(map[string]ChainReader, len(urls))
	for chain, url := range urls {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			utils.Log.Warnf("⚠️ [CHAINS] Failed to dial %s: %v", chain, err)
			continue
		}
		readers[chain] = client
		utils.Log.Infof("🔗 [CHAINS] %s RPC ready", chain)
	}
	return &Chains{readers: readers}
}

// Reader returns the client for a canonical chain key.
func (c *Chains) Reader(chain string) (ChainReader, bool) {
	r, ok := c.readers[chain]
	return r, ok
}

// Keys lists configured chains.
func (c *Chains) Keys() []string {
	keys := make([]string, 0, len(c.readers))
	for k := range c.readers {
		keys = append(keys, k)
	}
	return keys
}

// balanceOfCall builds raw calldata for balanceOf(address).
func balanceOfCall(owner common.Address) []byte {
	data := make([]byte, 0, 36)
	data = append(data, 0x70, 0xa0, 0x82, 0x31)
	return append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
}

// callBalanceOf runs balanceOf(owner) against contract and decodes the uint256.
func callBalanceOf(ctx context.Context, r ChainReader, contract, owner common.Address) (*big.Int, error) {
	out, err := r.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: balanceOfCall(owner)}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, errShortReturn
	}
	return new(big.Int).SetBytes(out[:32]), nil
}
