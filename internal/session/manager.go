// Package session ties one wizard controller to its remote lookups, the
// submission pipeline, analytics and draft persistence. A Manager keeps the
// live sessions of the process.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/contractor-booking/internal/analytics"
	"github.com/wolfman30/contractor-booking/internal/bookingapi"
	"github.com/wolfman30/contractor-booking/internal/drafts"
	"github.com/wolfman30/contractor-booking/internal/observability/metrics"
	"github.com/wolfman30/contractor-booking/internal/submission"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

var (
	ErrSessionNotFound    = errors.New("session: not found")
	ErrMissingBusinessID  = errors.New("session: business id required")
	ErrInvalidPostalCode  = errors.New("session: postal code required")
	ErrServiceRequired    = errors.New("session: select a service first")
	ErrInvalidDateRange   = errors.New("session: invalid date range")
	ErrAvailabilityWindow = errors.New("session: availability window too large")
)

// Remote is the contractor platform as seen by a session.
type Remote interface {
	LookupZip(ctx context.Context, businessID, postalCode string) (*wizard.ZipInfo, error)
	Catalog(ctx context.Context, businessID string) (*bookingapi.Catalog, error)
	Availability(ctx context.Context, query bookingapi.AvailabilityQuery) (bookingapi.Availability, error)
	CreateBooking(ctx context.Context, req bookingapi.BookingRequest) (*bookingapi.BookingRecord, error)
}

// DraftStore persists wizard drafts.
type DraftStore interface {
	Save(ctx context.Context, d drafts.Draft) error
	Load(ctx context.Context, sessionID string) (*drafts.Draft, error)
	Delete(ctx context.Context, sessionID string) error
}

// Hooks is the embedding host's callback pair.
type Hooks struct {
	OnComplete func(submission.Completion)
	OnError    func(sessionID, msg string)
}

// Config wires a Manager.
type Config struct {
	Remote      Remote
	Drafts      DraftStore
	Analytics   *analytics.Emitter
	Metrics     *metrics.WizardMetrics
	Logger      *logging.Logger
	Hooks       Hooks
	NewKey      submission.KeyFunc
	NewID       func() string
	IdleTimeout time.Duration
	SaveTimeout time.Duration
	Now         func() time.Time
}

// Manager owns the live sessions.
type Manager struct {
	remote      Remote
	drafts      DraftStore
	analytics   *analytics.Emitter
	metrics     *metrics.WizardMetrics
	logger      *logging.Logger
	hooks       Hooks
	newKey      submission.KeyFunc
	newID       func() string
	idleTimeout time.Duration
	saveTimeout time.Duration
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Remote is required.
func NewManager(cfg Config) *Manager {
	if cfg.Remote == nil {
		panic("session: remote client required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Hour
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		remote:      cfg.Remote,
		drafts:      cfg.Drafts,
		analytics:   cfg.Analytics,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		hooks:       cfg.Hooks,
		newKey:      cfg.NewKey,
		newID:       cfg.NewID,
		idleTimeout: cfg.IdleTimeout,
		saveTimeout: cfg.SaveTimeout,
		now:         cfg.Now,
		sessions:    make(map[string]*Session),
	}
}

// Create starts a new wizard for businessID at the initial step.
func (m *Manager) Create(ctx context.Context, businessID string, branding wizard.Branding) (*Session, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, ErrMissingBusinessID
	}
	s := m.build(m.newID(), businessID, branding)
	m.add(s)
	s.ctrl.Start()
	m.logger.Info("wizard session created", "session_id", s.ID, "business_id", businessID)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Resume returns the live session for id or rebuilds it from its saved
// draft. Restoring a draft bypasses step gating.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	if s, err := m.Get(id); err == nil {
		return s, nil
	}
	if m.drafts == nil {
		return nil, ErrSessionNotFound
	}
	d, err := m.drafts.Load(ctx, id)
	if errors.Is(err, drafts.ErrDraftNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: resume: %w", err)
	}

	s := m.build(id, d.BusinessID, d.Branding)
	if err := s.ctrl.Restore(d.State); err != nil {
		s.close()
		return nil, fmt.Errorf("session: restore draft: %w", err)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.close()
		return existing, nil
	}
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(n)

	m.logger.Info("wizard session resumed", "session_id", id, "business_id", d.BusinessID, "step", d.State.Step.String())
	return s, nil
}

// Delete drops a live session and its draft.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if ok {
		s.close()
		m.metrics.SetActiveSessions(n)
	}
	if m.drafts != nil {
		if err := m.drafts.Delete(ctx, id); err != nil {
			return fmt.Errorf("session: delete draft: %w", err)
		}
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle longer than the idle timeout. Their drafts
// stay in the store so they can be resumed.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.idleTimeout)
	var evicted []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.lastSeen().Before(cutoff) {
			evicted = append(evicted, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range evicted {
		s.close()
	}
	if len(evicted) > 0 {
		m.metrics.SetActiveSessions(n)
		m.logger.Info("evicted idle wizard sessions", "count", len(evicted), "active", n)
	}
	return len(evicted)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(n)
}

func (m *Manager) build(id, businessID string, branding wizard.Branding) *Session {
	s := &Session{
		ID:         id,
		BusinessID: businessID,
		Branding:   branding,
		CreatedAt:  m.now(),
		remote:     m.remote,
		metrics:    m.metrics,
		logger:     m.logger.With("session_id", id, "business_id", businessID),
	}
	s.touch(s.CreatedAt)

	var track func(wizard.NavEvent)
	if m.analytics != nil {
		track = m.analytics.Hook(businessID, id)
	}
	s.ctrl = wizard.NewController(wizard.Options{
		OnError: func(msg string) {
			if m.hooks.OnError != nil {
				m.hooks.OnError(id, msg)
			}
		},
		OnNav: func(ev wizard.NavEvent) {
			m.metrics.ObserveNav(ev.Step.String(), string(ev.Action))
			if track != nil {
				track(ev)
			}
		},
	})

	s.pipeline = submission.New(submission.Config{
		BusinessID:    businessID,
		SessionID:     id,
		BusinessName:  branding.Name,
		BusinessPhone: branding.Phone,
		BusinessEmail: branding.Email,
		Client:        m.remote,
		NewKey:        m.newKey,
		OnComplete:    m.hooks.OnComplete,
		Logger:        s.logger,
		Metrics:       m.metrics,
	})

	if m.drafts != nil {
		s.persist = &persister{
			store:   m.drafts,
			session: s,
			timeout: m.saveTimeout,
			logger:  s.logger,
		}
		s.unsubscribe = s.ctrl.Subscribe(func(wizard.State) { s.persist.sync() })
	}
	return s
}
