package facts

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds every provider call, including all of its upstream requests.
const DefaultTimeout = 4 * time.Second

var (
	errShortReturn = errors.New("short contract return data")
	errBadDecimals = errors.New("decimals() does not fit in uint8")
)

// Providers bundles the fact sources a verification session may consult. Any
// field except Chains may be nil; the matching tool then reports itself unavailable.
type Providers struct {
	Chains   *Chains
	Explorer *EtherscanClient
	Discord  *DiscordClient
	Geo      *GeoClient
	Time     *TimeClient
	Timeout  time.Duration
}

func (p *Providers) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := p.Timeout
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

func (p *Providers) reader(chain string) (string, ChainReader, Result) {
	if chain == "" {
		chain = DefaultChain
	}
	key, ok := ResolveChain(chain)
	if !ok {
		return "", nil, errResult("unsupported chain: " + chain)
	}
	if p.Chains == nil {
		return key, nil, errResult("no RPC configured for chain " + key)
	}
	r, ok := p.Chains.Reader(key)
	if !ok {
		return key, nil, errResult("no RPC configured for chain " + key)
	}
	return key, r, nil
}
