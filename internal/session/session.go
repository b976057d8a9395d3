package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/contractor-booking/internal/bookingapi"
	"github.com/wolfman30/contractor-booking/internal/drafts"
	"github.com/wolfman30/contractor-booking/internal/observability/metrics"
	"github.com/wolfman30/contractor-booking/internal/steps"
	"github.com/wolfman30/contractor-booking/internal/submission"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

var tracer = otel.Tracer("contractor.internal.session")

// MaxAvailabilityDays bounds a single availability query.
const MaxAvailabilityDays = 62

const (
	msgZipLookupFailed    = "We couldn't check that ZIP code right now. Please try again."
	msgCatalogFailed      = "We couldn't load the list of services. Please try again."
	msgAvailabilityFailed = "We couldn't load available times. Please try again."
)

// Session is one customer's booking wizard.
type Session struct {
	ID         string
	BusinessID string
	Branding   wizard.Branding
	CreatedAt  time.Time

	ctrl        *wizard.Controller
	pipeline    *submission.Pipeline
	remote      Remote
	metrics     *metrics.WizardMetrics
	logger      *logging.Logger
	persist     *persister
	unsubscribe func()
	seen        atomic.Int64

	mu           sync.RWMutex
	catalog      *bookingapi.Catalog
	availability bookingapi.Availability
}

// Controller exposes the session's wizard for navigation and field updates.
func (s *Session) Controller() *wizard.Controller { return s.ctrl }

// State returns a snapshot of the wizard state.
func (s *Session) State() wizard.State { return s.ctrl.State() }

// View renders the current step.
func (s *Session) View() steps.View {
	return s.render(s.ctrl.State())
}

// RenderState renders a snapshot delivered to a subscriber.
func (s *Session) RenderState(state wizard.State) steps.View {
	return s.render(state)
}

func (s *Session) render(state wizard.State) steps.View {
	s.mu.RLock()
	ctx := steps.Context{
		Branding:     s.Branding,
		Catalog:      s.catalog,
		Availability: s.availability,
	}
	s.mu.RUnlock()
	return steps.Render(state, ctx)
}

// Catalog returns the loaded service catalog, if any.
func (s *Session) Catalog() *bookingapi.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Availability returns the last loaded availability.
func (s *Session) Availability() bookingapi.Availability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availability
}

// CheckZip looks up service-area support for postalCode. An unsupported
// area is recorded like any other result; only lookup failures set the
// wizard error. Changing the ZIP withdraws an earlier dispatch-fee
// acceptance since the fee may differ.
func (s *Session) CheckZip(ctx context.Context, postalCode string) error {
	postalCode = strings.TrimSpace(postalCode)
	if postalCode == "" {
		return ErrInvalidPostalCode
	}
	ctx, span := tracer.Start(ctx, "session.check_zip")
	defer span.End()
	span.SetAttributes(attribute.String("contractor.business_id", s.BusinessID))

	ticket := s.ctrl.BeginLoading(wizard.SliceZip)
	start := time.Now()
	info, err := s.remote.LookupZip(ctx, s.BusinessID, postalCode)
	s.metrics.ObserveRemoteCall("lookup_zip", err == nil, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("zip lookup failed", "postal_code", postalCode, "error", err)
		s.ctrl.Fail(ticket, msgZipLookupFailed)
		return err
	}
	if info.PostalCode == "" {
		info.PostalCode = postalCode
	}
	span.SetAttributes(attribute.Bool("contractor.zip_supported", info.Supported))

	s.ctrl.Commit(ticket, func(st *wizard.State) {
		if st.ZipInfo == nil || st.ZipInfo.PostalCode != info.PostalCode {
			st.DispatchFeeAccepted = false
		}
		st.ZipInfo = info
	})
	return nil
}

// LoadCatalog fetches the business's service catalog.
func (s *Session) LoadCatalog(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.load_catalog")
	defer span.End()

	ticket := s.ctrl.BeginLoading(wizard.SliceCatalog)
	start := time.Now()
	catalog, err := s.remote.Catalog(ctx, s.BusinessID)
	s.metrics.ObserveRemoteCall("catalog", err == nil, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("catalog load failed", "error", err)
		s.ctrl.Fail(ticket, msgCatalogFailed)
		return err
	}

	s.ctrl.Commit(ticket, func(*wizard.State) {
		s.mu.Lock()
		s.catalog = catalog
		s.mu.Unlock()
	})
	return nil
}

// LoadAvailability fetches open slots for the selected service between
// from and to (inclusive dates).
func (s *Session) LoadAvailability(ctx context.Context, from, to time.Time) error {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return ErrInvalidDateRange
	}
	if to.Sub(from) > MaxAvailabilityDays*24*time.Hour {
		return ErrAvailabilityWindow
	}
	snap := s.ctrl.State()
	if snap.Service == nil || strings.TrimSpace(snap.Service.ServiceID) == "" {
		return ErrServiceRequired
	}

	ctx, span := tracer.Start(ctx, "session.load_availability")
	defer span.End()
	span.SetAttributes(attribute.String("contractor.service_id", snap.Service.ServiceID))

	ticket := s.ctrl.BeginLoading(wizard.SliceAvailability)
	start := time.Now()
	avail, err := s.remote.Availability(ctx, bookingapi.AvailabilityQuery{
		BusinessID: s.BusinessID,
		ServiceID:  snap.Service.ServiceID,
		From:       from,
		To:         to,
	})
	s.metrics.ObserveRemoteCall("availability", err == nil, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("availability load failed", "service_id", snap.Service.ServiceID, "error", err)
		s.ctrl.Fail(ticket, msgAvailabilityFailed)
		return err
	}

	s.ctrl.Commit(ticket, func(*wizard.State) {
		s.mu.Lock()
		s.availability = avail
		s.mu.Unlock()
	})
	return nil
}

// Confirm submits the booking from the review step.
func (s *Session) Confirm(ctx context.Context) (*wizard.Booking, error) {
	return s.pipeline.Confirm(ctx, s.ctrl)
}

// Reset returns the wizard to its initial state and forgets loaded
// availability. The catalog is per business and is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	s.availability = nil
	s.mu.Unlock()
	s.ctrl.Reset()
}

func (s *Session) touch(t time.Time) { s.seen.Store(t.UnixNano()) }

func (s *Session) lastSeen() time.Time { return time.Unix(0, s.seen.Load()) }

func (s *Session) close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// persister writes the latest wizard state to the draft store. Saves are
// serialized and always read the current state so a slow save can never
// overwrite a newer one.
type persister struct {
	store   DraftStore
	session *Session
	timeout time.Duration
	logger  *logging.Logger

	mu sync.Mutex
}

func (p *persister) sync() {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	state := p.session.ctrl.State()
	var err error
	if state.Step.IsTerminal() {
		err = p.store.Delete(ctx, p.session.ID)
	} else {
		err = p.store.Save(ctx, drafts.Draft{
			BusinessID: p.session.BusinessID,
			SessionID:  p.session.ID,
			Branding:   p.session.Branding,
			State:      state,
		})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("draft sync failed", "error", err)
	}
}
