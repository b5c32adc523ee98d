package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper-api/models"
)

func newTestIssuer() (*ProofIssuer, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(epoch)
	return NewProofIssuer(NewMemoryProofStore(clock), 15*time.Minute, clock), clock
}

func TestProofIssuer_IssueAndConsume(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer()

	token, err := issuer.Issue(ctx, "42", "")
	require.NoError(t, err)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, token)

	other, err := issuer.Issue(ctx, "42", "")
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	require.NoError(t, issuer.Validate(ctx, token, "42", ""))
	assert.ErrorIs(t, issuer.Validate(ctx, token, "43", ""), ErrProofInvalid, "bound to its drop")

	require.NoError(t, issuer.Consume(ctx, token))
	assert.ErrorIs(t, issuer.Consume(ctx, token), ErrProofConsumed)
	assert.ErrorIs(t, issuer.Validate(ctx, token, "42", ""), ErrProofConsumed)
}

func TestProofIssuer_BoundToWallet(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer()

	token, err := issuer.Issue(ctx, "42", " 0xAbC0000000000000000000000000000000000001 ")
	require.NoError(t, err)
	assert.NoError(t, issuer.Validate(ctx, token, "42", "0xabc0000000000000000000000000000000000001"), "case-insensitive")
	assert.ErrorIs(t, issuer.Validate(ctx, token, "42", "0x9990000000000000000000000000000000000009"), ErrProofInvalid)
	assert.ErrorIs(t, issuer.Redeem(ctx, token, "42", "0x9990000000000000000000000000000000000009"), ErrProofInvalid)
	assert.NoError(t, issuer.Redeem(ctx, token, "42", "0xABC0000000000000000000000000000000000001"))
}

func TestProofIssuer_RedeemAndRelease(t *testing.T) {
	ctx := context.Background()
	issuer, clock := newTestIssuer()

	token, err := issuer.Issue(ctx, "", "")
	require.NoError(t, err)
	require.NoError(t, issuer.Redeem(ctx, token, "1", ""))
	assert.ErrorIs(t, issuer.Redeem(ctx, token, "2", ""), ErrProofConsumed, "unbound token still redeems once")

	require.NoError(t, issuer.Release(ctx, token))
	assert.ErrorIs(t, issuer.Release(ctx, token), ErrProofInvalid, "already usable")
	require.NoError(t, issuer.Redeem(ctx, token, "2", ""))

	clock.Advance(15 * time.Minute)
	assert.ErrorIs(t, issuer.Release(ctx, token), ErrProofInvalid, "expired sessions stay used")
}

func TestProofIssuer_ConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer()
	token, err := issuer.Issue(ctx, "", "")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(drop int) {
			defer wg.Done()
			if issuer.Redeem(ctx, token, strconv.Itoa(drop), "") == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestProofIssuer_UnboundTokenFitsAnyDrop(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer()

	token, err := issuer.Issue(ctx, "", "")
	require.NoError(t, err)
	assert.NoError(t, issuer.Validate(ctx, token, "1", ""))
	assert.NoError(t, issuer.Validate(ctx, token, "999", ""))
}

func TestProofIssuer_TTL(t *testing.T) {
	ctx := context.Background()
	issuer, clock := newTestIssuer()

	token, err := issuer.Issue(ctx, "42", "")
	require.NoError(t, err)

	clock.Advance(15*time.Minute - time.Second)
	require.NoError(t, issuer.Validate(ctx, token, "42", ""))

	clock.Advance(time.Second)
	assert.ErrorIs(t, issuer.Validate(ctx, token, "42", ""), ErrProofInvalid)
	assert.ErrorIs(t, issuer.Consume(ctx, token), ErrProofInvalid)
}

func TestProofIssuer_EmptyToken(t *testing.T) {
	issuer, _ := newTestIssuer()
	assert.ErrorIs(t, issuer.Validate(context.Background(), "", "1", ""), ErrProofInvalid)
	assert.ErrorIs(t, issuer.Consume(context.Background(), ""), ErrProofInvalid)
}

func TestStartSessionPurgeScheduler(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProofStore(clockwork.NewFakeClockAt(epoch))
	require.NoError(t, store.Save(ctx, models.ProofSession{Token: "stale", Valid: true, ExpiresAt: epoch.Add(-time.Minute)}))
	require.NoError(t, store.Save(ctx, models.ProofSession{Token: "live", Valid: true, ExpiresAt: epoch.Add(time.Minute)}))

	sched, err := StartSessionPurgeScheduler(NewProofIssuer(store, 0, nil), 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Shutdown() })

	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, "stale")
		return errors.Is(err, ErrProofInvalid)
	}, 2*time.Second, 10*time.Millisecond)

	_, err = store.Get(ctx, "live")
	assert.NoError(t, err)
}
