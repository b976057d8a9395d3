// Package drafts persists in-progress wizard state so a customer can resume
// a booking after a page reload.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/contractor-booking/internal/wizard"
)

var (
	ErrDraftNotFound    = errors.New("drafts: draft not found")
	ErrMissingSessionID = errors.New("drafts: session id required")
)

// DefaultTTL bounds how long an untouched draft is kept.
const DefaultTTL = 72 * time.Hour

// Draft is one saved wizard session.
type Draft struct {
	BusinessID string          `json:"businessId"`
	SessionID  string          `json:"sessionId"`
	Branding   wizard.Branding `json:"branding"`
	State      wizard.State    `json:"state"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Store provides persistence for wizard drafts.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a draft store. A non-positive ttl uses DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: redisClient, ttl: ttl, now: time.Now}
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("wizard:draft:%s", sessionID)
}

// Save writes the persistable part of the draft state, stamps UpdatedAt and
// refreshes the TTL.
func (s *Store) Save(ctx context.Context, d Draft) error {
	if d.SessionID == "" {
		return ErrMissingSessionID
	}
	d.State = d.State.Persistable()
	d.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("drafts: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(d.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("drafts: set: %w", err)
	}
	return nil
}

// Load returns the saved draft.
func (s *Store) Load(ctx context.Context, sessionID string) (*Draft, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("drafts: get: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("drafts: unmarshal: %w", err)
	}
	return &d, nil
}

// Delete removes a draft. Missing drafts are not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("drafts: delete: %w", err)
	}
	return nil
}
