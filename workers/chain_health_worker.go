package workers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"gatekeeper-api/utils"
)

// HeightReader is the one RPC call the monitor needs. *ethclient.Client satisfies it.
type HeightReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ChainHealth is the last observation for one chain.
type ChainHealth struct {
	Chain       string    `json:"chain"`
	OK          bool      `json:"ok"`
	BlockHeight uint64    `json:"blockHeight,omitempty"`
	Error       string    `json:"error,omitempty"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// ChainHealthMonitor polls every configured RPC for its head block and keeps the
// latest result for /api/health.
type ChainHealthMonitor struct {
	readers map[string]HeightReader
	clock   clockwork.Clock
	timeout time.Duration

	mu    sync.RWMutex
	state map[string]ChainHealth
}

func NewChainHealthMonitor(readers map[string]HeightReader, clock clockwork.Clock) *ChainHealthMonitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ChainHealthMonitor{
		readers: readers,
		clock:   clock,
		timeout: 5 * time.Second,
		state:   make(map[string]ChainHealth, len(readers)),
	}
}

// CheckOnce queries all chains in parallel. A failing chain never blocks the others.
func (m *ChainHealthMonitor) CheckOnce(ctx context.Context) {
	var g errgroup.Group
	for name, r := range m.readers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			h := ChainHealth{Chain: name, CheckedAt: m.clock.Now().UTC()}
			height, err := r.BlockNumber(cctx)
			if err != nil {
				h.Error = err.Error()
				utils.Log.Warnf("⚠️ [CHAIN_HEALTH] %s RPC unhealthy: %v", name, err)
			} else {
				h.OK = true
				h.BlockHeight = height
			}

			m.mu.Lock()
			m.state[name] = h
			m.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// PollChains checks immediately and then every interval until ctx is done.
func PollChains(ctx context.Context, m *ChainHealthMonitor, interval time.Duration) {
	utils.Log.Infof("🩺 [CHAIN_HEALTH] Monitoring %d chain(s) every %s", len(m.readers), interval)
	m.CheckOnce(ctx)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.Log.Info("🩺 [CHAIN_HEALTH] Monitoring stopped.")
			return
		case <-ticker.Chan():
			m.CheckOnce(ctx)
		}
	}
}

// Snapshot returns the latest observations sorted by chain name.
func (m *ChainHealthMonitor) Snapshot() []ChainHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChainHealth, 0, len(m.state))
	for _, h := range m.state {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out
}

// Healthy is true when every checked chain answered.
func (m *ChainHealthMonitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.state {
		if !h.OK {
			return false
		}
	}
	return true
}
