// Package bookingapi is the HTTP client for the contractor platform APIs the
// booking wizard consumes: service-area lookup, service catalog,
// availability and booking submission.
package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

const (
	dateLayout       = "2006-01-02"
	defaultUserAgent = "contractor-booking/1.0"
	maxResponseBytes = 1 << 20
)

var tracer = otel.Tracer("contractor.internal.bookingapi")

var (
	// ErrMissingBusinessID is returned when a call has no business scope.
	ErrMissingBusinessID = errors.New("bookingapi: business id required")
	// ErrMissingIdempotencyKey is returned when a booking is submitted without a key.
	ErrMissingIdempotencyKey = errors.New("bookingapi: idempotency key required")
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client talks to the contractor platform API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
	userAgent  string
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("bookingapi: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
		sleep:      sleepCtx,
	}, nil
}

// LookupZip returns service-area support for postalCode.
func (c *Client) LookupZip(ctx context.Context, businessID, postalCode string) (*wizard.ZipInfo, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, ErrMissingBusinessID
	}
	ctx, span := tracer.Start(ctx, "bookingapi.lookup_zip")
	defer span.End()
	span.SetAttributes(attribute.String("contractor.business_id", businessID))

	q := url.Values{}
	q.Set("postal_code", strings.TrimSpace(postalCode))
	data, err := c.invoke(ctx, http.MethodGet, businessPath(businessID, "service-area"), q, nil, businessHeader(businessID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var info wizard.ZipInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("bookingapi: decode service area: %w", err)
	}
	if info.PostalCode == "" {
		info.PostalCode = strings.TrimSpace(postalCode)
	}
	span.SetAttributes(attribute.Bool("contractor.zip_supported", info.Supported))
	return &info, nil
}

// Catalog returns the service catalog for businessID.
func (c *Client) Catalog(ctx context.Context, businessID string) (*Catalog, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, ErrMissingBusinessID
	}
	ctx, span := tracer.Start(ctx, "bookingapi.catalog")
	defer span.End()
	span.SetAttributes(attribute.String("contractor.business_id", businessID))

	data, err := c.invoke(ctx, http.MethodGet, businessPath(businessID, "catalog"), nil, nil, businessHeader(businessID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var out Catalog
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("bookingapi: decode catalog: %w", err)
	}
	return &out, nil
}

// Availability returns slots per date for the query's service and range.
func (c *Client) Availability(ctx context.Context, query AvailabilityQuery) (Availability, error) {
	if strings.TrimSpace(query.BusinessID) == "" {
		return nil, ErrMissingBusinessID
	}
	if strings.TrimSpace(query.ServiceID) == "" {
		return nil, errors.New("bookingapi: service id required")
	}
	ctx, span := tracer.Start(ctx, "bookingapi.availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("contractor.business_id", query.BusinessID),
		attribute.String("contractor.service_id", query.ServiceID),
	)

	q := url.Values{}
	q.Set("service_id", query.ServiceID)
	if !query.From.IsZero() {
		q.Set("from", query.From.Format(dateLayout))
	}
	if !query.To.IsZero() {
		q.Set("to", query.To.Format(dateLayout))
	}
	data, err := c.invoke(ctx, http.MethodGet, businessPath(query.BusinessID, "availability"), q, nil, businessHeader(query.BusinessID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var wrapper struct {
		Dates Availability `json:"dates"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("bookingapi: decode availability: %w", err)
	}
	if wrapper.Dates == nil {
		wrapper.Dates = Availability{}
	}
	return wrapper.Dates, nil
}

// CreateBooking submits a booking. Every retry of this call reuses
// req.IdempotencyKey so the server can collapse duplicates.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*BookingRecord, error) {
	if strings.TrimSpace(req.BusinessID) == "" {
		return nil, ErrMissingBusinessID
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, ErrMissingIdempotencyKey
	}
	ctx, span := tracer.Start(ctx, "bookingapi.create_booking")
	defer span.End()
	span.SetAttributes(
		attribute.String("contractor.business_id", req.BusinessID),
		attribute.String("contractor.service_id", req.ServiceID),
	)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bookingapi: marshal booking: %w", err)
	}
	headers := businessHeader(req.BusinessID)
	headers.Set("Idempotency-Key", req.IdempotencyKey)
	data, err := c.invoke(ctx, http.MethodPost, businessPath(req.BusinessID, "bookings"), nil, body, headers)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var out BookingRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("bookingapi: decode booking: %w", err)
	}
	span.SetAttributes(attribute.String("contractor.booking_id", out.ID))
	return &out, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte, headers http.Header) ([]byte, error) {
	fullURL := c.buildURL(path, query)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("bookingapi: build request: %w", err)
		}
		for k, vals := range headers {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("bookingapi: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, c.delay(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("bookingapi: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, c.delay(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("bookingapi: request failed without response")
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

func (c *Client) delay(attempt int) time.Duration {
	return c.backoff * time.Duration(1<<attempt)
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	c.logger.Warn("booking api retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func businessPath(businessID, resource string) string {
	return "/v1/businesses/" + url.PathEscape(businessID) + "/" + resource
}

func businessHeader(businessID string) http.Header {
	h := http.Header{}
	h.Set("X-Business-Id", businessID)
	return h
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}
