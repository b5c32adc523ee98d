package facts

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gosimple/slug"
)

// TokenInfo is a known ERC-20 deployment.
type TokenInfo struct {
	Symbol   string
	Address  common.Address
	Decimals int
}

// tokenRegistry is keyed by chain, then upper-case symbol. A symbol missing from a
// chain means the token is not deployed there; callers must not borrow another chain's entry.
var tokenRegistry = map[string]map[string]TokenInfo{
	ChainEthereum: {
		"USDC": {"USDC", common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), 6},
		"USDT": {"USDT", common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), 6},
		"DAI":  {"DAI", common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), 18},
		"WETH": {"WETH", common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), 18},
		"LINK": {"LINK", common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA"), 18},
		"UNI":  {"UNI", common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"), 18},
	},
	ChainArbitrum: {
		"USDC": {"USDC", common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), 6},
		"USDT": {"USDT", common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"), 6},
		"DAI":  {"DAI", common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"), 18},
		"WETH": {"WETH", common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), 18},
		"ARB":  {"ARB", common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548"), 18},
		"LINK": {"LINK", common.HexToAddress("0xf97f4df75117a78c1A5a0DBb814Af92458539FB4"), 18},
	},
	ChainBase: {
		"USDC": {"USDC", common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), 6},
		"WETH": {"WETH", common.HexToAddress("0x4200000000000000000000000000000000000006"), 18},
	},
	ChainOptimism: {
		"USDC": {"USDC", common.HexToAddress("0x0b2C639c533813f4Aa9D7837cAf62653d097Ff85"), 6},
		"WETH": {"WETH", common.HexToAddress("0x4200000000000000000000000000000000000006"), 18},
		"OP":   {"OP", common.HexToAddress("0x4200000000000000000000000000000000000042"), 18},
	},
	ChainPolygon: {
		"USDC": {"USDC", common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"), 6},
		"USDT": {"USDT", common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"), 6},
	},
	ChainArbitrumSepolia: {
		"USDC": {"USDC", common.HexToAddress("0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d"), 6},
		"LINK": {"LINK", common.HexToAddress("0xb1D4538B4571d411F07960EF2838Ce337FE1E80E"), 18},
	},
	ChainEthereumSepolia: {
		"USDC": {"USDC", common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"), 6},
		"LINK": {"LINK", common.HexToAddress("0x779877A7B0D9E8603169DdbD7836e478b4624789"), 18},
	},
}

// LookupToken resolves a symbol on a canonical chain.
func LookupToken(chain, symbol string) (TokenInfo, bool) {
	byChain, ok := tokenRegistry[chain]
	if !ok {
		return TokenInfo{}, false
	}
	info, ok := byChain[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(symbol, "$")))]
	return info, ok
}

// ChainsForToken lists chains where symbol is known, for error messages.
func ChainsForToken(symbol string) []string {
	var out []string
	for chain := range tokenRegistry {
		if _, ok := LookupToken(chain, symbol); ok {
			out = append(out, chain)
		}
	}
	return out
}

// Collection is a known ERC-721 collection pinned to its canonical chain.
type Collection struct {
	Name    string
	Address common.Address
	Chain   string
}

// collections is keyed by slug of the collection name.
var collections = map[string]Collection{
	"bored-ape-yacht-club":  {"Bored Ape Yacht Club", common.HexToAddress("0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"), ChainEthereum},
	"mutant-ape-yacht-club": {"Mutant Ape Yacht Club", common.HexToAddress("0x60E4d786628Fea6478F785A6d7e704777c86a7c6"), ChainEthereum},
	"azuki":                 {"Azuki", common.HexToAddress("0xED5AF388653567Af2F388E6224dC7C4b3241C544"), ChainEthereum},
	"pudgy-penguins":        {"Pudgy Penguins", common.HexToAddress("0xBd3531dA5CF5857e7CfAA92426877b022e612cf8"), ChainEthereum},
	"doodles":               {"Doodles", common.HexToAddress("0x8a90CAb2b38dba80c64b7734e58Ee1dB38B8992e"), ChainEthereum},
	"milady-maker":          {"Milady Maker", common.HexToAddress("0x5Af0D9827E0c53E4799BB226655A1de152A425a5"), ChainEthereum},
	"smol-brains":           {"Smol Brains", common.HexToAddress("0x6325439389E0797Ab35752B4F43a14C004f22A9c"), ChainArbitrum},
	"arbitrum-odyssey":      {"Arbitrum Odyssey", common.HexToAddress("0xfAe39eC09730CA0F14262A636D2d7C5539353752"), ChainArbitrum},
}

var collectionAliases = map[string]string{
	"bayc":       "bored-ape-yacht-club",
	"bored-ape":  "bored-ape-yacht-club",
	"bored-apes": "bored-ape-yacht-club",
	"mayc":       "mutant-ape-yacht-club",
	"pudgy":      "pudgy-penguins",
	"pudgies":    "pudgy-penguins",
	"milady":     "milady-maker",
	"miladys":    "milady-maker",
	"smols":      "smol-brains",
}

// LookupCollection resolves a human collection name ("Bored Ape Yacht Club", "BAYC").
func LookupCollection(name string) (Collection, bool) {
	key := slug.Make(name)
	if c, ok := collections[key]; ok {
		return c, true
	}
	if canonical, ok := collectionAliases[key]; ok {
		return collections[canonical], true
	}
	return Collection{}, false
}

// CollectionNames lists known collection display names.
func CollectionNames() []string {
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	return names
}
