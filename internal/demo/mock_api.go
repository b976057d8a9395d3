// Package demo serves an in-memory contractor platform API for local
// development and integration tests. It implements the service-area,
// catalog, availability and booking endpoints the wizard consumes.
package demo

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/contractor-booking/internal/bookingapi"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

const (
	dateLayout      = "2006-01-02"
	maxRangeDays    = 62
	slotCapacity    = 2
	demoTimezone    = "America/Chicago"
	demoDispatchFee = int64(4900)
)

// slot start hours in the demo timezone; each window is two hours long.
var slotHours = []int{8, 10, 13, 15}

// MockContractorAPI answers the booking API endpoints from fixed demo data.
// Bookings are kept in memory and collapsed by Idempotency-Key.
type MockContractorAPI struct {
	logger   *logging.Logger
	location *time.Location

	mu       sync.Mutex
	bookings map[string]bookingapi.BookingRecord
	requests map[string]bookingapi.BookingRequest
	seq      int
}

// NewMockContractorAPI creates the demo API.
func NewMockContractorAPI(logger *logging.Logger) *MockContractorAPI {
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := time.LoadLocation(demoTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &MockContractorAPI{
		logger:   logger,
		location: loc,
		bookings: make(map[string]bookingapi.BookingRecord),
		requests: make(map[string]bookingapi.BookingRequest),
	}
}

// Routes returns the demo API router.
func (h *MockContractorAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/v1/businesses/{businessID}", func(r chi.Router) {
		r.Get("/service-area", h.ServiceArea)
		r.Get("/catalog", h.Catalog)
		r.Get("/availability", h.Availability)
		r.Post("/bookings", h.CreateBooking)
	})
	return r
}

// ServiceArea handles GET .../service-area?postal_code=. Austin-area ZIP
// codes (787xx) are served; everything else is outside the area.
func (h *MockContractorAPI) ServiceArea(w http.ResponseWriter, r *http.Request) {
	zip := strings.TrimSpace(r.URL.Query().Get("postal_code"))
	if zip == "" {
		apiError(w, http.StatusBadRequest, "invalid_postal_code", "postal_code is required")
		return
	}
	info := wizard.ZipInfo{PostalCode: zip, CountryCode: "US"}
	if strings.HasPrefix(zip, "787") && len(zip) == 5 {
		fee := demoDispatchFee
		minWait, maxWait := 60, 180
		info.City = "Austin"
		info.Region = "TX"
		info.Timezone = demoTimezone
		info.Supported = true
		info.DispatchFeeCents = &fee
		info.ResponseMinMinutes = &minWait
		info.ResponseMaxMinutes = &maxWait
		info.EmergencyAvailable = true
		info.RegularAvailable = true
	}
	writeJSON(w, http.StatusOK, info)
}

// Catalog handles GET .../catalog.
func (h *MockContractorAPI) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, demoCatalog())
}

// Availability handles GET .../availability?service_id&from&to.
func (h *MockContractorAPI) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID := q.Get("service_id")
	if _, ok := demoCatalog().Service(serviceID); !ok {
		apiError(w, http.StatusNotFound, "unknown_service", "unknown service_id")
		return
	}
	from, errFrom := time.ParseInLocation(dateLayout, q.Get("from"), h.location)
	to, errTo := time.ParseInLocation(dateLayout, q.Get("to"), h.location)
	if errFrom != nil || errTo != nil || to.Before(from) {
		apiError(w, http.StatusBadRequest, "invalid_range", "from and to must be YYYY-MM-DD with from <= to")
		return
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		apiError(w, http.StatusBadRequest, "invalid_range", fmt.Sprintf("range exceeds %d days", maxRangeDays))
		return
	}

	dates := bookingapi.Availability{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Sunday {
			continue
		}
		key := day.Format(dateLayout)
		slots := make([]bookingapi.TimeSlot, 0, len(slotHours))
		for _, hour := range slotHours {
			start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, h.location)
			slots = append(slots, bookingapi.TimeSlot{
				Start:    start,
				End:      start.Add(2 * time.Hour),
				Capacity: slotCapacity,
				Booked:   h.booked(serviceID, start),
			})
		}
		dates[key] = slots
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// CreateBooking handles POST .../bookings. A repeated Idempotency-Key
// returns the original booking; reusing a key for a different payload is a
// conflict.
func (h *MockContractorAPI) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		apiError(w, http.StatusBadRequest, "missing_idempotency_key", "Idempotency-Key header is required")
		return
	}
	var req bookingapi.BookingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid_body", "invalid booking payload")
		return
	}
	if msg := validateBooking(req); msg != "" {
		apiError(w, http.StatusUnprocessableEntity, "validation_failed", msg)
		return
	}

	h.mu.Lock()
	if rec, ok := h.bookings[key]; ok {
		prev := h.requests[key]
		h.mu.Unlock()
		if prev.ServiceID != req.ServiceID || !prev.RequestedStart.Equal(req.RequestedStart) || prev.CustomerEmail != req.CustomerEmail {
			apiError(w, http.StatusConflict, "idempotency_conflict", "Idempotency-Key reused with a different booking")
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	h.seq++
	rec := bookingapi.BookingRecord{
		ID:            fmt.Sprintf("bk_demo_%d", h.seq),
		BookingNumber: fmt.Sprintf("HS-%d", 1000+h.seq),
		Status:        "pending",
	}
	if svc, ok := demoCatalog().Service(req.ServiceID); ok && svc.PriceFromCents != nil {
		price := *svc.PriceFromCents
		rec.QuotedPriceCents = &price
	}
	h.bookings[key] = rec
	h.requests[key] = req
	h.mu.Unlock()

	h.logger.Info("demo booking created",
		"business_id", chi.URLParam(r, "businessID"),
		"booking_id", rec.ID,
		"service_id", req.ServiceID,
	)
	writeJSON(w, http.StatusCreated, rec)
}

// BookingCount returns the number of distinct bookings created.
func (h *MockContractorAPI) BookingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bookings)
}

// booked derives a stable pseudo-random occupancy so some slots show full.
func (h *MockContractorAPI) booked(serviceID string, start time.Time) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(serviceID + start.UTC().Format(time.RFC3339)))
	return int(f.Sum32() % (slotCapacity + 1))
}

func validateBooking(req bookingapi.BookingRequest) string {
	switch {
	case req.ServiceID == "":
		return "serviceId is required"
	case req.CustomerEmail == "" || req.CustomerPhone == "":
		return "customer email and phone are required"
	case req.AddressLine1 == "" || req.AddressPostalCode == "":
		return "service address is required"
	case req.RequestedStart.IsZero() || !req.RequestedEnd.After(req.RequestedStart):
		return "requested window is invalid"
	case !req.TermsAccepted:
		return "terms must be accepted"
	}
	return ""
}

func demoCatalog() *bookingapi.Catalog {
	return &bookingapi.Catalog{
		Categories: []bookingapi.Category{
			{ID: "plumbing", Name: "Plumbing", Description: "Leaks, drains and water heaters"},
			{ID: "hvac", Name: "Heating & Cooling"},
			{ID: "electrical", Name: "Electrical"},
		},
		Services: []bookingapi.Service{
			{ID: "drain-cleaning", CategoryID: "plumbing", Name: "Drain cleaning", DurationMinutes: 90, PriceFromCents: cents(14900), PriceToCents: cents(29900)},
			{ID: "water-heater-repair", CategoryID: "plumbing", Name: "Water heater repair", DurationMinutes: 120, PriceFromCents: cents(19900)},
			{ID: "ac-repair", CategoryID: "hvac", Name: "AC repair", DurationMinutes: 120, PriceFromCents: cents(12900)},
			{ID: "furnace-tune-up", CategoryID: "hvac", Name: "Furnace tune-up", DurationMinutes: 60, PriceFromCents: cents(8900), PriceToCents: cents(8900)},
			{ID: "outlet-repair", CategoryID: "electrical", Name: "Outlet repair", DurationMinutes: 60},
		},
	}
}

func cents(v int64) *int64 { return &v }

func apiError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, bookingapi.APIError{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
