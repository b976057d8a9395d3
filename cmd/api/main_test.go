package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/wolfman30/contractor-booking/internal/config"
	"github.com/wolfman30/contractor-booking/internal/notify"
	"github.com/wolfman30/contractor-booking/internal/submission"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

func TestSetupMetricsExposesWizardMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveNav("zip_check", "view")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "contractor_wizard_step_events_total") {
		t.Fatalf("expected step counter to be exported")
	}
}

func TestMockBaseURL(t *testing.T) {
	if got := mockBaseURL(&appconfig.Config{Port: "8080"}); got != "" {
		t.Fatalf("expected no override without mock api, got %q", got)
	}
	if got := mockBaseURL(&appconfig.Config{Port: "8080", UseMockAPI: true}); got != "http://127.0.0.1:8080/demo" {
		t.Fatalf("unexpected mock url %q", got)
	}
	if got := mockBaseURL(&appconfig.Config{Port: "8080", UseMockAPI: true, BookingAPIBaseURL: "https://api"}); got != "" {
		t.Fatalf("expected configured URL to win, got %q", got)
	}
}

func TestPostgresURLOnlyForPostgresSink(t *testing.T) {
	if got := postgresURL(&appconfig.Config{AnalyticsSink: "log", DatabaseURL: "postgres://x"}); got != "" {
		t.Fatalf("expected empty URL, got %q", got)
	}
	if got := postgresURL(&appconfig.Config{AnalyticsSink: "postgres", DatabaseURL: "postgres://x"}); got != "postgres://x" {
		t.Fatalf("expected database URL, got %q", got)
	}
}

func TestNewSessionIssuerEphemeralSecret(t *testing.T) {
	issuer, err := newSessionIssuer(&appconfig.Config{SessionTokenTTL: time.Hour}, logging.New("error"))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	token, err := issuer.Issue("sess_1", "biz_1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.SessionID() != "sess_1" {
		t.Fatalf("unexpected session id %q", claims.SessionID())
	}
}

type captureSender struct {
	sent chan notify.EmailMessage
}

func (c *captureSender) Send(_ context.Context, msg notify.EmailMessage) error {
	c.sent <- msg
	return nil
}

func TestCompletionHookSendsConfirmation(t *testing.T) {
	sender := &captureSender{sent: make(chan notify.EmailMessage, 2)}
	hook := completionHook(notify.NewConfirmationNotifier(sender, logging.New("error")), logging.New("error"))

	start := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	hook(submission.Completion{
		BusinessID:   "biz_1",
		BusinessName: "Acme Plumbing",
		SessionID:    "sess_1",
		Booking:      wizard.Booking{ID: "bk_1", BookingNumber: "HS-1001"},
		State: wizard.State{
			Step:    wizard.StepConfirmation,
			Contact: &wizard.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
			Slot:    &wizard.Slot{Start: start, End: start.Add(time.Hour)},
		},
	})

	select {
	case msg := <-sender.sent:
		if msg.To != "jane@example.com" {
			t.Fatalf("expected customer email, got %q", msg.To)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected confirmation email")
	}
}
