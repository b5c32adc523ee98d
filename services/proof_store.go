package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gatekeeper-api/models"
)

var (
	// ErrProofInvalid covers unknown, expired and mismatched tokens.
	ErrProofInvalid = errors.New("proof token is invalid or expired")
	// ErrProofConsumed means the token already authorized a claim.
	ErrProofConsumed = errors.New("proof token has already been used")
)

// ProofStore persists proof sessions. Consume must succeed at most once per token,
// even under concurrent callers. Release undoes a Consume for a session that has
// not expired; it returns ErrProofInvalid when there was nothing to restore.
type ProofStore interface {
	Save(ctx context.Context, s models.ProofSession) error
	Get(ctx context.Context, token string) (*models.ProofSession, error)
	Consume(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
	Purge(ctx context.Context) (int64, error)
}

// MemoryProofStore keeps sessions in process. Sessions are lost on restart.
type MemoryProofStore struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	sessions map[string]models.ProofSession
}

func NewMemoryProofStore(clock clockwork.Clock) *MemoryProofStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryProofStore{clock: clock, sessions: map[string]models.ProofSession{}}
}

func (m *MemoryProofStore) Save(_ context.Context, s models.ProofSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.sessions[s.Token] = s
	return nil
}

func (m *MemoryProofStore) Get(_ context.Context, token string) (*models.ProofSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrProofInvalid
	}
	return &s, nil
}

func (m *MemoryProofStore) Consume(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	now := m.clock.Now()
	switch {
	case !ok || !now.Before(s.ExpiresAt):
		return ErrProofInvalid
	case !s.Valid:
		return ErrProofConsumed
	}
	s.Valid = false
	s.UpdatedAt = now
	m.sessions[token] = s
	return nil
}

func (m *MemoryProofStore) Release(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	now := m.clock.Now()
	if !ok || s.Valid || !now.Before(s.ExpiresAt) {
		return ErrProofInvalid
	}
	s.Valid = true
	s.UpdatedAt = now
	m.sessions[token] = s
	return nil
}

func (m *MemoryProofStore) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	var n int64
	for token, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// GormProofStore keeps sessions in the proof_sessions table.
type GormProofStore struct {
	DB    *gorm.DB
	clock clockwork.Clock
}

func NewGormProofStore(db *gorm.DB, clock clockwork.Clock) *GormProofStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GormProofStore{DB: db, clock: clock}
}

func (g *GormProofStore) Save(ctx context.Context, s models.ProofSession) error {
	if err := g.DB.WithContext(ctx).Create(&s).Error; err != nil {
		return fmt.Errorf("failed to save proof session: %w", err)
	}
	return nil
}

func (g *GormProofStore) Get(ctx context.Context, token string) (*models.ProofSession, error) {
	var s models.ProofSession
	err := g.DB.WithContext(ctx).Where("token = ?", token).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProofInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proof session: %w", err)
	}
	return &s, nil
}

// Consume flips valid in a single conditional UPDATE, so two racing claims cannot
// both see RowsAffected == 1.
func (g *GormProofStore) Consume(ctx context.Context, token string) error {
	now := g.clock.Now()
	res := g.DB.WithContext(ctx).
		Model(&models.ProofSession{}).
		Where("token = ? AND valid = ? AND expires_at > ?", token, true, now).
		Update("valid", false)
	if res.Error != nil {
		return fmt.Errorf("failed to consume proof session: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	s, err := g.Get(ctx, token)
	if err != nil {
		return err
	}
	if !s.Valid && now.Before(s.ExpiresAt) {
		return ErrProofConsumed
	}
	return ErrProofInvalid
}

func (g *GormProofStore) Release(ctx context.Context, token string) error {
	res := g.DB.WithContext(ctx).
		Model(&models.ProofSession{}).
		Where("token = ? AND valid = ? AND expires_at > ?", token, false, g.clock.Now()).
		Update("valid", true)
	if res.Error != nil {
		return fmt.Errorf("failed to release proof session: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrProofInvalid
	}
	return nil
}

func (g *GormProofStore) Purge(ctx context.Context) (int64, error) {
	res := g.DB.WithContext(ctx).
		Where("expires_at <= ?", g.clock.Now()).
		Delete(&models.ProofSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge proof sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// consumeScript moves a live session to its "used" key with the remaining TTL.
// KEYS[1] = live key, KEYS[2] = used key.
// Returns 1 when consumed, 2 when already used, 0 when unknown or expired.
var consumeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
    if redis.call("EXISTS", KEYS[2]) == 1 then
        return 2
    end
    return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if redis.call("DEL", KEYS[1]) ~= 1 then
    return 0
end
if ttl > 0 then
    redis.call("SET", KEYS[2], v, "PX", ttl)
end
return 1
`)

// releaseScript is consumeScript in reverse. KEYS[1] = live key, KEYS[2] = used key.
// Returns 1 when restored, 0 when there was no used session.
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[2])
if not v then
    return 0
end
local ttl = redis.call("PTTL", KEYS[2])
redis.call("DEL", KEYS[2])
if ttl <= 0 then
    return 0
end
redis.call("SET", KEYS[1], v, "PX", ttl)
return 1
`)

// RedisProofStore keeps each session under a key that expires with it. Expiry is
// Redis' job, so Purge has nothing to do.
type RedisProofStore struct {
	client *redis.Client
	clock  clockwork.Clock
}

func NewRedisProofStore(client *redis.Client, clock clockwork.Clock) *RedisProofStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisProofStore{client: client, clock: clock}
}

func liveKey(token string) string { return "proof:" + token }
func usedKey(token string) string { return "proof:used:" + token }

func (r *RedisProofStore) Save(ctx context.Context, s models.ProofSession) error {
	ttl := ttlUntil(r.clock, s.ExpiresAt)
	if ttl == 0 {
		return fmt.Errorf("proof session %s already expired", s.Token)
	}
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode proof session: %w", err)
	}
	if err := r.client.Set(ctx, liveKey(s.Token), body, ttl).Err(); err != nil {
		return fmt.Errorf("redis proof save: %w", err)
	}
	return nil
}

func (r *RedisProofStore) Get(ctx context.Context, token string) (*models.ProofSession, error) {
	s, err := r.load(ctx, liveKey(token))
	if errors.Is(err, redis.Nil) {
		s, err = r.load(ctx, usedKey(token))
		if err == nil {
			s.Valid = false
		}
	}
	if errors.Is(err, redis.Nil) {
		return nil, ErrProofInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("redis proof get: %w", err)
	}
	return s, nil
}

func (r *RedisProofStore) load(ctx context.Context, key string) (*models.ProofSession, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var s models.ProofSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("corrupt proof session at %s: %w", key, err)
	}
	return &s, nil
}

func (r *RedisProofStore) Consume(ctx context.Context, token string) error {
	n, err := consumeScript.Run(ctx, r.client, []string{liveKey(token), usedKey(token)}).Int64()
	if err != nil {
		return fmt.Errorf("redis proof consume: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 2:
		return ErrProofConsumed
	default:
		return ErrProofInvalid
	}
}

func (r *RedisProofStore) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, r.client, []string{liveKey(token), usedKey(token)}).Int64()
	if err != nil {
		return fmt.Errorf("redis proof release: %w", err)
	}
	if n != 1 {
		return ErrProofInvalid
	}
	return nil
}

func (r *RedisProofStore) Purge(context.Context) (int64, error) { return 0, nil }

// ttlUntil is never negative.
func ttlUntil(clock clockwork.Clock, t time.Time) time.Duration {
	if d := t.Sub(clock.Now()); d > 0 {
		return d
	}
	return 0
}
