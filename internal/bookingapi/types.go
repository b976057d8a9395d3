package bookingapi

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category groups services in the catalog.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Service is a bookable catalog entry.
type Service struct {
	ID              string `json:"id"`
	CategoryID      string `json:"categoryId"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	PriceFromCents  *int64 `json:"priceFromCents,omitempty"`
	PriceToCents    *int64 `json:"priceToCents,omitempty"`
}

// Catalog is the business's service menu.
type Catalog struct {
	Categories []Category `json:"categories"`
	Services   []Service  `json:"services"`
}

// Service returns the service with id, if present.
func (c *Catalog) Service(id string) (Service, bool) {
	if c == nil {
		return Service{}, false
	}
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// ServicesIn returns the services belonging to categoryID.
func (c *Catalog) ServicesIn(categoryID string) []Service {
	if c == nil {
		return nil
	}
	out := make([]Service, 0, len(c.Services))
	for _, s := range c.Services {
		if s.CategoryID == categoryID {
			out = append(out, s)
		}
	}
	return out
}

// TimeSlot is one bookable window with its capacity.
type TimeSlot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Capacity int       `json:"capacity"`
	Booked   int       `json:"booked"`
}

// Available reports whether the slot still has room.
func (t TimeSlot) Available() bool {
	return t.Booked < t.Capacity
}

// Availability maps a calendar date (YYYY-MM-DD) to its slots.
type Availability map[string][]TimeSlot

// AvailabilityQuery selects the slots to fetch.
type AvailabilityQuery struct {
	BusinessID string
	ServiceID  string
	From       time.Time
	To         time.Time
}

// BookingRequest is the flattened submission payload.
type BookingRequest struct {
	BusinessID     string `json:"-"`
	IdempotencyKey string `json:"-"`

	ServiceID  string `json:"serviceId"`
	CategoryID string `json:"categoryId,omitempty"`

	CustomerFirstName string `json:"customerFirstName"`
	CustomerLastName  string `json:"customerLastName"`
	CustomerPhone     string `json:"customerPhone"`
	CustomerEmail     string `json:"customerEmail"`

	AddressLine1       string   `json:"serviceAddressLine1"`
	AddressLine2       string   `json:"serviceAddressLine2,omitempty"`
	AddressCity        string   `json:"serviceCity"`
	AddressRegion      string   `json:"serviceRegion"`
	AddressPostalCode  string   `json:"servicePostalCode"`
	AddressCountryCode string   `json:"serviceCountryCode"`
	AddressLat         *float64 `json:"serviceLat,omitempty"`
	AddressLng         *float64 `json:"serviceLng,omitempty"`
	AccessNotes        string   `json:"accessNotes,omitempty"`

	RequestedStart time.Time `json:"requestedStart"`
	RequestedEnd   time.Time `json:"requestedEnd"`
	Timezone       string    `json:"timezone,omitempty"`

	Notes         string   `json:"notes,omitempty"`
	Urgency       string   `json:"urgency,omitempty"`
	AttachmentIDs []string `json:"attachmentIds,omitempty"`

	SMSConsent          bool  `json:"smsConsent"`
	MarketingConsent    *bool `json:"marketingConsent,omitempty"`
	TermsAccepted       bool  `json:"termsAccepted"`
	DispatchFeeAccepted bool  `json:"dispatchFeeAccepted"`
	DispatchFeeCents    int64 `json:"dispatchFeeCents,omitempty"`
}

// BookingRecord is the server's view of a created booking.
type BookingRecord struct {
	ID               string `json:"id"`
	BookingNumber    string `json:"bookingNumber"`
	Status           string `json:"status"`
	QuotedPriceCents *int64 `json:"quotedPriceCents,omitempty"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bookingapi: status %d", e.StatusCode)
	}
	return fmt.Sprintf("bookingapi: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return shouldRetry(e.StatusCode, nil)
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Message == "" {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return &APIError{StatusCode: status, Message: msg}
	}
	parsed.StatusCode = status
	return &parsed
}
