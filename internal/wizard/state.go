package wizard

import (
	"strings"
	"time"
)

// Branding is the optional business identity supplied by the embedding
// host. The phone number doubles as the fallback call-to-action.
type Branding struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Urgency is the customer-declared priority of the job.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyNormal    Urgency = "normal"
	UrgencyFlexible  Urgency = "flexible"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyEmergency, UrgencyUrgent, UrgencyNormal, UrgencyFlexible:
		return true
	}
	return false
}

// ZipInfo is the service-area lookup result for a postal code.
type ZipInfo struct {
	PostalCode         string `json:"postalCode"`
	CountryCode        string `json:"countryCode"`
	City               string `json:"city,omitempty"`
	Region             string `json:"region,omitempty"`
	Timezone           string `json:"timezone,omitempty"`
	Supported          bool   `json:"supported"`
	DispatchFeeCents   *int64 `json:"dispatchFeeCents,omitempty"`
	ResponseMinMinutes *int   `json:"responseMinMinutes,omitempty"`
	ResponseMaxMinutes *int   `json:"responseMaxMinutes,omitempty"`
	EmergencyAvailable bool   `json:"emergencyAvailable"`
	RegularAvailable   bool   `json:"regularAvailable"`
}

// DispatchFee returns the dispatch fee in cents, zero when none applies.
func (z *ZipInfo) DispatchFee() int64 {
	if z == nil || z.DispatchFeeCents == nil {
		return 0
	}
	return *z.DispatchFeeCents
}

// ServiceSelection identifies the chosen catalog entry.
type ServiceSelection struct {
	CategoryID string `json:"categoryId"`
	ServiceID  string `json:"serviceId"`
}

// GeoPoint is an optional geocoded position.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Address is the structured service address.
type Address struct {
	Line1       string    `json:"line1"`
	Line2       string    `json:"line2,omitempty"`
	City        string    `json:"city"`
	Region      string    `json:"region"`
	PostalCode  string    `json:"postalCode"`
	CountryCode string    `json:"countryCode"`
	Geo         *GeoPoint `json:"geo,omitempty"`
	AccessNotes string    `json:"accessNotes,omitempty"`
}

// Slot is the chosen arrival window.
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone,omitempty"`
}

// Contact is the customer's contact record.
type Contact struct {
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	PhoneE164        string `json:"phoneE164"`
	Email            string `json:"email"`
	SMSConsent       bool   `json:"smsConsent"`
	MarketingConsent *bool  `json:"marketingConsent,omitempty"`
}

// Attachment references an uploaded file.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	Key         string `json:"key"`
}

// Details holds the optional job description.
type Details struct {
	Notes       string       `json:"notes,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Urgency     Urgency      `json:"urgency"`
}

// Flags are the consent checkboxes on the review step.
type Flags struct {
	DispatchFeeAccepted bool `json:"dispatchFeeAccepted"`
	TermsAccepted       bool `json:"termsAccepted"`
}

// Booking is the record returned by the booking API after submission.
type Booking struct {
	ID               string `json:"id"`
	BookingNumber    string `json:"bookingNumber"`
	Status           string `json:"status"`
	QuotedPriceCents *int64 `json:"quotedPriceCents,omitempty"`
}

// State is the full wizard aggregate. A nil slice means the data has not
// been collected yet.
type State struct {
	Step                Step              `json:"currentStep"`
	ZipInfo             *ZipInfo          `json:"zipInfo,omitempty"`
	Service             *ServiceSelection `json:"service,omitempty"`
	Address             *Address          `json:"address,omitempty"`
	Slot                *Slot             `json:"slot,omitempty"`
	Contact             *Contact          `json:"contact,omitempty"`
	Details             *Details          `json:"details,omitempty"`
	DispatchFeeAccepted bool              `json:"dispatchFeeAccepted"`
	TermsAccepted       bool              `json:"termsAccepted"`
	Booking             *Booking          `json:"booking,omitempty"`
	IsLoading           bool              `json:"isLoading"`
	Error               string            `json:"error,omitempty"`
}

// Initial returns the state a fresh wizard starts in.
func Initial() State {
	return State{Step: StepZipCheck}
}

// Clone returns a deep copy so snapshots never alias controller memory.
func (s State) Clone() State {
	out := s
	if s.ZipInfo != nil {
		z := *s.ZipInfo
		z.DispatchFeeCents = clonePtr(s.ZipInfo.DispatchFeeCents)
		z.ResponseMinMinutes = clonePtr(s.ZipInfo.ResponseMinMinutes)
		z.ResponseMaxMinutes = clonePtr(s.ZipInfo.ResponseMaxMinutes)
		out.ZipInfo = &z
	}
	if s.Service != nil {
		sel := *s.Service
		out.Service = &sel
	}
	if s.Address != nil {
		a := *s.Address
		a.Geo = clonePtr(s.Address.Geo)
		out.Address = &a
	}
	if s.Slot != nil {
		sl := *s.Slot
		out.Slot = &sl
	}
	if s.Contact != nil {
		c := *s.Contact
		c.MarketingConsent = clonePtr(s.Contact.MarketingConsent)
		out.Contact = &c
	}
	if s.Details != nil {
		d := *s.Details
		if s.Details.Attachments != nil {
			d.Attachments = append([]Attachment(nil), s.Details.Attachments...)
		}
		out.Details = &d
	}
	if s.Booking != nil {
		b := *s.Booking
		b.QuotedPriceCents = clonePtr(s.Booking.QuotedPriceCents)
		out.Booking = &b
	}
	return out
}

// Persistable strips the UI-transient fields.
func (s State) Persistable() State {
	out := s.Clone()
	out.IsLoading = false
	out.Error = ""
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StepComplete evaluates the completion predicate for step against s.
func StepComplete(s State, step Step) bool {
	switch step {
	case StepZipCheck:
		return s.ZipInfo != nil && s.ZipInfo.Supported
	case StepCategory:
		return s.Service != nil && notBlank(s.Service.CategoryID) && notBlank(s.Service.ServiceID)
	case StepAddress:
		return s.Address != nil && notBlank(s.Address.Line1) && notBlank(s.Address.City) && notBlank(s.Address.Region)
	case StepDateTime:
		return s.Slot != nil && !s.Slot.Start.IsZero() && !s.Slot.End.IsZero()
	case StepContact:
		c := s.Contact
		return c != nil && notBlank(c.FirstName) && notBlank(c.LastName) && notBlank(c.PhoneE164) && notBlank(c.Email)
	case StepDetails:
		return true
	case StepReview:
		return s.TermsAccepted
	}
	return false
}

// CanProceed evaluates the completion predicate for the current step.
func CanProceed(s State) bool {
	return StepComplete(s, s.Step)
}

// Reachable reports whether every step before target is complete.
func Reachable(s State, target Step) bool {
	if !target.Valid() {
		return false
	}
	for step := StepZipCheck; step < target; step++ {
		if !StepComplete(s, step) {
			return false
		}
	}
	return true
}

func notBlank(v string) bool {
	return strings.TrimSpace(v) != ""
}
