package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

const DefaultProofTTL = 15 * time.Minute

// ProofIssuer hands out single-use proof tokens after an approved verification and
// checks them again at claim time.
type ProofIssuer struct {
	store ProofStore
	ttl   time.Duration
	clock clockwork.Clock
}

func NewProofIssuer(store ProofStore, ttl time.Duration, clock clockwork.Clock) *ProofIssuer {
	if ttl <= 0 {
		ttl = DefaultProofTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ProofIssuer{store: store, ttl: ttl, clock: clock}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate proof token: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// Issue stores a fresh session for the wallet that passed verification. dropID may
// be empty, in which case the token is accepted for any drop; an empty address
// accepts any receiver.
func (p *ProofIssuer) Issue(ctx context.Context, dropID, address string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	session := models.ProofSession{
		Token:     token,
		DropID:    dropID,
		Address:   strings.TrimSpace(address),
		Valid:     true,
		ExpiresAt: p.clock.Now().Add(p.ttl),
	}
	if err := p.store.Save(ctx, session); err != nil {
		return "", err
	}
	utils.Log.Debugf("🎟️ [PROOF] Issued token for drop %q to %q, expires %s", dropID, session.Address, session.ExpiresAt.Format(time.RFC3339))
	return token, nil
}

// Validate checks a token against the drop and receiver without using it up.
func (p *ProofIssuer) Validate(ctx context.Context, token, dropID, receiver string) error {
	if token == "" {
		return ErrProofInvalid
	}
	s, err := p.store.Get(ctx, token)
	if err != nil {
		return err
	}
	now := p.clock.Now()
	if !now.Before(s.ExpiresAt) {
		return ErrProofInvalid
	}
	if !s.Valid {
		return ErrProofConsumed
	}
	if s.DropID != "" && s.DropID != dropID {
		return ErrProofInvalid
	}
	if s.Address != "" && !strings.EqualFold(s.Address, strings.TrimSpace(receiver)) {
		return ErrProofInvalid
	}
	return nil
}

// Redeem validates the token and consumes it in one step. Of several concurrent
// callers with the same token at most one gets nil.
func (p *ProofIssuer) Redeem(ctx context.Context, token, dropID, receiver string) error {
	if err := p.Validate(ctx, token, dropID, receiver); err != nil {
		return err
	}
	return p.Consume(ctx, token)
}

// Release makes a redeemed token usable again, for a claim that never landed.
func (p *ProofIssuer) Release(ctx context.Context, token string) error {
	return p.store.Release(ctx, token)
}

// Consume invalidates the token. It succeeds exactly once.
func (p *ProofIssuer) Consume(ctx context.Context, token string) error {
	if token == "" {
		return ErrProofInvalid
	}
	return p.store.Consume(ctx, token)
}

// Purge drops expired sessions from the store.
func (p *ProofIssuer) Purge(ctx context.Context) (int64, error) {
	return p.store.Purge(ctx)
}
