// Package submission turns a completed wizard into a booking request and
// submits it to the booking API exactly once per user confirmation.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/contractor-booking/internal/bookingapi"
	"github.com/wolfman30/contractor-booking/internal/observability/metrics"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

var tracer = otel.Tracer("contractor.internal.submission")

var (
	ErrNotOnReview            = errors.New("submission: wizard is not on the review step")
	ErrTermsNotAccepted       = errors.New("submission: terms not accepted")
	ErrDispatchFeeNotAccepted = errors.New("submission: dispatch fee not accepted")
	ErrIncomplete             = errors.New("submission: booking data incomplete")
	ErrSuperseded             = errors.New("submission: wizard changed during submission")
	ErrInFlight               = errors.New("submission: a submission is already in progress")
)

const (
	MsgTermsRequired       = "Please accept the terms of service to confirm your booking."
	MsgDispatchFeeRequired = "Please accept the dispatch fee to confirm your booking."
	MsgIncomplete          = "Some booking details are missing. Please review the previous steps."
)

// BookingClient creates bookings on the remote platform.
type BookingClient interface {
	CreateBooking(ctx context.Context, req bookingapi.BookingRequest) (*bookingapi.BookingRecord, error)
}

// KeyFunc generates a fresh idempotency key.
type KeyFunc func() string

// Completion is handed to the host once a booking is confirmed.
type Completion struct {
	BusinessID    string
	BusinessName  string
	BusinessPhone string
	BusinessEmail string
	SessionID     string
	Booking       wizard.Booking
	State         wizard.State
}

// Config wires a Pipeline.
type Config struct {
	BusinessID    string
	SessionID     string
	BusinessName  string
	BusinessPhone string
	BusinessEmail string
	Client        BookingClient
	NewKey        KeyFunc
	OnComplete    func(Completion)
	Logger        *logging.Logger
	Metrics       *metrics.WizardMetrics
}

// Pipeline submits the wizard's accumulated state.
type Pipeline struct {
	businessID    string
	sessionID     string
	businessName  string
	businessPhone string
	businessEmail string
	client        BookingClient
	newKey        KeyFunc
	onComplete    func(Completion)
	logger        *logging.Logger
	metrics       *metrics.WizardMetrics

	inFlight atomic.Bool
}

// New constructs a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Client == nil {
		panic("submission: booking client required")
	}
	if cfg.NewKey == nil {
		cfg.NewKey = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Pipeline{
		businessID:    cfg.BusinessID,
		sessionID:     cfg.SessionID,
		businessName:  cfg.BusinessName,
		businessPhone: cfg.BusinessPhone,
		businessEmail: cfg.BusinessEmail,
		client:        cfg.Client,
		newKey:        cfg.NewKey,
		onComplete:    cfg.OnComplete,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// Confirm validates the review-step preconditions, submits the booking
// with a fresh idempotency key and moves the wizard to confirmation. On
// failure the wizard stays on review with an error and all input intact.
// A Confirm that overlaps one already running returns ErrInFlight without
// touching the API.
func (p *Pipeline) Confirm(ctx context.Context, ctrl *wizard.Controller) (*wizard.Booking, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	defer p.inFlight.Store(false)

	ctx, span := tracer.Start(ctx, "submission.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("contractor.business_id", p.businessID),
		attribute.String("contractor.session_id", p.sessionID),
	)

	ticket, snap, err := ctrl.BeginSubmission()
	switch {
	case errors.Is(err, wizard.ErrBusy):
		return nil, ErrInFlight
	case err != nil:
		return nil, ErrNotOnReview
	}
	if err := checkConsent(snap); err != nil {
		ctrl.Fail(ticket, consentMessage(err))
		p.metrics.ObserveSubmission("rejected")
		return nil, err
	}

	key := p.newKey()
	req, err := BuildRequest(p.businessID, key, snap)
	if err != nil {
		ctrl.Fail(ticket, MsgIncomplete)
		p.metrics.ObserveSubmission("rejected")
		p.logger.Warn("booking submission rejected", "business_id", p.businessID, "session_id", p.sessionID, "error", err)
		return nil, err
	}

	start := time.Now()
	rec, err := p.client.CreateBooking(ctx, req)
	p.metrics.ObserveRemoteCall("create_booking", err == nil, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		p.metrics.ObserveSubmission("failure")
		p.logger.Warn("booking submission failed",
			"business_id", p.businessID,
			"session_id", p.sessionID,
			"idempotency_key", key,
			"error", err,
		)
		ctrl.Fail(ticket, UserMessage(err, p.businessPhone))
		return nil, fmt.Errorf("submission: create booking: %w", err)
	}

	booking := wizard.Booking{
		ID:               rec.ID,
		BookingNumber:    rec.BookingNumber,
		Status:           rec.Status,
		QuotedPriceCents: rec.QuotedPriceCents,
	}
	if !ctrl.Complete(ticket, booking) {
		reason := "wizard reset during submission"
		if ctrl.Fail(ticket, "") {
			reason = "wizard left the review step during submission"
		}
		p.logger.Warn("booking confirmed but not applied",
			"business_id", p.businessID,
			"session_id", p.sessionID,
			"booking_id", rec.ID,
			"reason", reason,
		)
		return nil, ErrSuperseded
	}
	p.metrics.ObserveSubmission("success")
	span.SetAttributes(attribute.String("contractor.booking_id", rec.ID))
	p.logger.Info("booking submitted",
		"business_id", p.businessID,
		"session_id", p.sessionID,
		"booking_id", rec.ID,
		"booking_number", rec.BookingNumber,
	)

	if p.onComplete != nil {
		p.onComplete(Completion{
			BusinessID:    p.businessID,
			BusinessName:  p.businessName,
			BusinessPhone: p.businessPhone,
			BusinessEmail: p.businessEmail,
			SessionID:     p.sessionID,
			Booking:       booking,
			State:         ctrl.State(),
		})
	}
	return &booking, nil
}

func checkConsent(s wizard.State) error {
	if !s.TermsAccepted {
		return ErrTermsNotAccepted
	}
	if s.ZipInfo.DispatchFee() > 0 && !s.DispatchFeeAccepted {
		return ErrDispatchFeeNotAccepted
	}
	return nil
}

func consentMessage(err error) string {
	if errors.Is(err, ErrDispatchFeeNotAccepted) {
		return MsgDispatchFeeRequired
	}
	return MsgTermsRequired
}

// BuildRequest flattens the wizard state into the booking API shape. Every
// step before review must satisfy its completion predicate.
func BuildRequest(businessID, idempotencyKey string, s wizard.State) (bookingapi.BookingRequest, error) {
	var missing []string
	for step := wizard.StepZipCheck; step < wizard.StepReview; step++ {
		if !wizard.StepComplete(s, step) {
			missing = append(missing, step.String())
		}
	}
	if len(missing) > 0 {
		return bookingapi.BookingRequest{}, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	req := bookingapi.BookingRequest{
		BusinessID:     businessID,
		IdempotencyKey: idempotencyKey,

		ServiceID:  s.Service.ServiceID,
		CategoryID: s.Service.CategoryID,

		CustomerFirstName: strings.TrimSpace(s.Contact.FirstName),
		CustomerLastName:  strings.TrimSpace(s.Contact.LastName),
		CustomerPhone:     strings.TrimSpace(s.Contact.PhoneE164),
		CustomerEmail:     strings.TrimSpace(s.Contact.Email),

		AddressLine1:       s.Address.Line1,
		AddressLine2:       s.Address.Line2,
		AddressCity:        s.Address.City,
		AddressRegion:      s.Address.Region,
		AddressPostalCode:  s.Address.PostalCode,
		AddressCountryCode: s.Address.CountryCode,
		AccessNotes:        s.Address.AccessNotes,

		RequestedStart: s.Slot.Start.UTC(),
		RequestedEnd:   s.Slot.End.UTC(),
		Timezone:       s.Slot.Timezone,

		SMSConsent:          s.Contact.SMSConsent,
		MarketingConsent:    s.Contact.MarketingConsent,
		TermsAccepted:       s.TermsAccepted,
		DispatchFeeAccepted: s.DispatchFeeAccepted,
		DispatchFeeCents:    s.ZipInfo.DispatchFee(),
	}
	if geo := s.Address.Geo; geo != nil {
		lat, lng := geo.Lat, geo.Lng
		req.AddressLat = &lat
		req.AddressLng = &lng
	}
	if req.Timezone == "" && s.ZipInfo != nil {
		req.Timezone = s.ZipInfo.Timezone
	}
	if d := s.Details; d != nil {
		req.Notes = d.Notes
		req.Urgency = string(d.Urgency)
		for _, a := range d.Attachments {
			req.AttachmentIDs = append(req.AttachmentIDs, a.ID)
		}
	}
	if req.Urgency == "" {
		req.Urgency = string(wizard.UrgencyNormal)
	}
	return req, nil
}

// UserMessage converts a submission failure into text for the review step.
func UserMessage(err error, businessPhone string) string {
	callUs := "Please try again."
	if phone := strings.TrimSpace(businessPhone); phone != "" {
		callUs = "Please try again or call us at " + phone + "."
	}

	var apiErr *bookingapi.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The booking service took too long to respond. " + callUs
	case errors.As(err, &apiErr) && !apiErr.Temporary() && apiErr.Message != "":
		return "We couldn't confirm your booking: " + apiErr.Message + ". " + callUs
	default:
		return "We couldn't reach the booking service. " + callUs
	}
}
