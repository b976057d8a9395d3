package bookingapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/contractor-booking/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := New(Config{
		BaseURL:    ts.URL,
		APIKey:     "key",
		MaxRetries: retries,
		Logger:     logging.New("error"),
	})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestLookupZip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/businesses/biz_1/service-area", r.URL.Path)
		assert.Equal(t, "78701", r.URL.Query().Get("postal_code"))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "biz_1", r.Header.Get("X-Business-Id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"countryCode": "US", "city": "Austin", "region": "TX",
			"timezone": "America/Chicago", "supported": true, "dispatchFeeCents": 4900,
		})
	}, 0)

	info, err := c.LookupZip(context.Background(), "biz_1", " 78701 ")
	require.NoError(t, err)
	assert.True(t, info.Supported)
	assert.Equal(t, "78701", info.PostalCode)
	assert.Equal(t, int64(4900), info.DispatchFee())
}

func TestLookupZip_RequiresBusiness(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, 0)
	_, err := c.LookupZip(context.Background(), "", "78701")
	require.ErrorIs(t, err, ErrMissingBusinessID)
}

func TestCatalogAndAvailability(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/businesses/biz_1/catalog":
			_ = json.NewEncoder(w).Encode(Catalog{
				Categories: []Category{{ID: "plumbing", Name: "Plumbing"}},
				Services:   []Service{{ID: "drain-cleaning", CategoryID: "plumbing", Name: "Drain cleaning", DurationMinutes: 60}},
			})
		case "/v1/businesses/biz_1/availability":
			assert.Equal(t, "drain-cleaning", r.URL.Query().Get("service_id"))
			assert.Equal(t, "2025-03-01", r.URL.Query().Get("from"))
			assert.Equal(t, "2025-03-02", r.URL.Query().Get("to"))
			_, _ = w.Write([]byte(`{"dates":{"2025-03-01":[{"start":"2025-03-01T14:00:00Z","end":"2025-03-01T15:00:00Z","capacity":2,"booked":2}]}}`))
		default:
			http.NotFound(w, r)
		}
	}, 0)

	cat, err := c.Catalog(context.Background(), "biz_1")
	require.NoError(t, err)
	svc, ok := cat.Service("drain-cleaning")
	require.True(t, ok)
	assert.Equal(t, 60, svc.DurationMinutes)
	assert.Len(t, cat.ServicesIn("plumbing"), 1)

	avail, err := c.Availability(context.Background(), AvailabilityQuery{
		BusinessID: "biz_1",
		ServiceID:  "drain-cleaning",
		From:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, avail["2025-03-01"], 1)
	assert.False(t, avail["2025-03-01"][0].Available())
}

func TestCreateBooking_RetriesWithSameIdempotencyKey(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"try again"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(BookingRecord{ID: "bk_1", BookingNumber: "HS-1001", Status: "pending"})
	}, 3)

	rec, err := c.CreateBooking(context.Background(), BookingRequest{
		BusinessID:     "biz_1",
		IdempotencyKey: "idem-1",
		ServiceID:      "drain-cleaning",
	})
	require.NoError(t, err)
	assert.Equal(t, "HS-1001", rec.BookingNumber)
	assert.Equal(t, []string{"idem-1", "idem-1", "idem-1"}, keys)
}

func TestCreateBooking_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"slot_taken","message":"slot no longer available"}`))
	}, 3)

	_, err := c.CreateBooking(context.Background(), BookingRequest{BusinessID: "biz_1", IdempotencyKey: "k"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "slot_taken", apiErr.Code)
	assert.False(t, apiErr.Temporary())
	assert.Equal(t, 1, calls)
}

func TestCreateBooking_RequiresIdempotencyKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, 0)
	_, err := c.CreateBooking(context.Background(), BookingRequest{BusinessID: "biz_1"})
	require.ErrorIs(t, err, ErrMissingIdempotencyKey)
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(http.StatusTooManyRequests, nil))
	assert.True(t, shouldRetry(http.StatusBadGateway, nil))
	assert.False(t, shouldRetry(http.StatusBadRequest, nil))
	assert.False(t, shouldRetry(0, context.Canceled))
	assert.True(t, shouldRetry(0, errors.New("connection reset")))
}
