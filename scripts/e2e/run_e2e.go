// Package main runs end-to-end scenarios against a running booking wizard
// API. Point it at a server started with USE_MOCK_API=true so the demo
// contractor API answers service-area, catalog and booking calls.
//
// Scenarios cover:
//   - Happy-path booking from ZIP check to confirmation
//   - Unsupported ZIP codes
//   - Navigation gating (skipping ahead, jumping back)
//   - Review step requirements (terms and dispatch fee)
//   - Contact field hints
//   - Reset and delete
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go              # runs all
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go happy-path   # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	businessID     = "biz_e2e"
	supportedZip   = "78701"
	unsupportedZip = "10001"
	requestTimeout = 15 * time.Second
)

var (
	apiBase string
	client  = &http.Client{Timeout: requestTimeout}
)

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// wizardSession is a created session plus its bearer token.
type wizardSession struct {
	ID    string
	Token string
}

// response is the subset of the wizard payload the scenarios inspect.
type response struct {
	Status int
	Error  string `json:"error"`
	View   struct {
		Step       string `json:"step"`
		Index      int    `json:"index"`
		CanProceed bool   `json:"canProceed"`
		Error      string `json:"error"`
		ZipCheck   *struct {
			Unsupported bool `json:"unsupported"`
		} `json:"zipCheck"`
		DateTime *struct {
			Dates []struct {
				Date  string `json:"date"`
				Slots []struct {
					Start    time.Time `json:"start"`
					End      time.Time `json:"end"`
					Capacity int       `json:"capacity"`
					Booked   int       `json:"booked"`
				} `json:"slots"`
			} `json:"dates"`
			Timezone string `json:"timezone"`
		} `json:"dateTime"`
	} `json:"view"`
	Booking *struct {
		ID            string `json:"id"`
		BookingNumber string `json:"bookingNumber"`
		Status        string `json:"status"`
	} `json:"booking"`
	Hints map[string]string `json:"hints"`
}

func createSession() (*wizardSession, error) {
	body := fmt.Sprintf(`{"businessId":%q,"branding":{"name":"E2E Plumbing","phone":"+15125550100"}}`, businessID)
	resp, err := client.Post(apiBase+"/v1/wizard/sessions/", "application/json", strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create session returned %d: %s", resp.StatusCode, string(raw))
	}
	var out struct {
		SessionID string `json:"sessionId"`
		Token     string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &wizardSession{ID: out.SessionID, Token: out.Token}, nil
}

func (s *wizardSession) call(method, path, body string) (*response, error) {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, apiBase+"/v1/wizard/sessions/"+s.ID+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out := &response{Status: resp.StatusCode}
	if resp.StatusCode == http.StatusNoContent {
		return out, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return out, nil
}

// mustCall records a fatal failure and returns nil when the request errors.
func mustCall(t *T, s *wizardSession, method, path, body string) *response {
	resp, err := s.call(method, path, body)
	if err != nil {
		t.fatalf("%s %s: %v", method, path, err)
		return nil
	}
	return resp
}

// advanceToDetails walks a fresh session up to the details step, picking
// the first open slot.
func advanceToDetails(t *T, s *wizardSession) bool {
	steps := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/zip", fmt.Sprintf(`{"postalCode":%q}`, supportedZip)},
		{http.MethodPost, "/next", ""},
		{http.MethodGet, "/catalog", ""},
		{http.MethodPut, "/service", `{"categoryId":"plumbing","serviceId":"drain-cleaning"}`},
		{http.MethodPost, "/next", ""},
		{http.MethodPut, "/address", `{"line1":"500 Congress Ave","city":"Austin","region":"TX","postalCode":"78701","countryCode":"US"}`},
		{http.MethodPost, "/next", ""},
	}
	for _, step := range steps {
		resp := mustCall(t, s, step.method, step.path, step.body)
		if resp == nil {
			return false
		}
		if resp.Status >= 400 {
			t.fatalf("%s %s returned %d: %s", step.method, step.path, resp.Status, resp.Error)
			return false
		}
	}

	from := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	to := time.Now().AddDate(0, 0, 14).Format("2006-01-02")
	resp := mustCall(t, s, http.MethodGet, "/availability?from="+from+"&to="+to, "")
	if resp == nil {
		return false
	}
	slot, ok := firstOpenSlot(resp)
	if !ok {
		t.fatalf("no open slot between %s and %s", from, to)
		return false
	}

	rest := []struct {
		method, path, body string
	}{
		{http.MethodPut, "/slot", slot},
		{http.MethodPost, "/next", ""},
		{http.MethodPut, "/contact", `{"firstName":"Dana","lastName":"Ortiz","phoneE164":"+15125550199","email":"dana@example.com","smsConsent":true}`},
		{http.MethodPost, "/next", ""},
	}
	for _, step := range rest {
		resp := mustCall(t, s, step.method, step.path, step.body)
		if resp == nil {
			return false
		}
		if resp.Status >= 400 {
			t.fatalf("%s %s returned %d: %s", step.method, step.path, resp.Status, resp.Error)
			return false
		}
	}
	return true
}

func firstOpenSlot(resp *response) (string, bool) {
	if resp.View.DateTime == nil {
		return "", false
	}
	for _, day := range resp.View.DateTime.Dates {
		for _, slot := range day.Slots {
			if slot.Booked < slot.Capacity {
				body, _ := json.Marshal(map[string]any{
					"start":    slot.Start,
					"end":      slot.End,
					"timezone": resp.View.DateTime.Timezone,
				})
				return string(body), true
			}
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioHappyPath(t *T) {
	s, err := createSession()
	if err != nil {
		t.fatalf("create session: %v", err)
		return
	}
	if !advanceToDetails(t, s) {
		return
	}
	resp := mustCall(t, s, http.MethodPut, "/details", `{"notes":"Kitchen sink drains slowly","urgency":"urgent"}`)
	if resp == nil {
		return
	}
	resp = mustCall(t, s, http.MethodPost, "/next", "")
	if resp == nil {
		return
	}
	t.check("reached review step", resp.View.Step == "review")

	mustCall(t, s, http.MethodPut, "/flags", `{"termsAccepted":true,"dispatchFeeAccepted":true}`)
	resp = mustCall(t, s, http.MethodPost, "/confirm", "")
	if resp == nil {
		return
	}
	t.check("confirm returns 200", resp.Status == http.StatusOK)
	t.check("booking number assigned", resp.Booking != nil && strings.HasPrefix(resp.Booking.BookingNumber, "HS-"))
	t.check("confirmation step shown", resp.View.Step == "confirmation")

	resp = mustCall(t, s, http.MethodPost, "/prev", "")
	if resp == nil {
		return
	}
	t.check("confirmation is terminal", resp.View.Step == "confirmation")
}

func scenarioUnsupportedZip(t *T) {
	s, err := createSession()
	if err != nil {
		t.fatalf("create session: %v", err)
		return
	}
	resp := mustCall(t, s, http.MethodPost, "/zip", fmt.Sprintf(`{"postalCode":%q}`, unsupportedZip))
	if resp == nil {
		return
	}
	t.check("unsupported zip flagged", resp.View.ZipCheck != nil && resp.View.ZipCheck.Unsupported)
	t.check("cannot proceed from unsupported zip", !resp.View.CanProceed)

	resp = mustCall(t, s, http.MethodPost, "/next", "")
	if resp == nil {
		return
	}
	t.check("next rejected with 409", resp.Status == http.StatusConflict)

	resp = mustCall(t, s, http.MethodPost, "/zip", `{"postalCode":"  "}`)
	if resp == nil {
		return
	}
	t.check("blank zip rejected with 400", resp.Status == http.StatusBadRequest)
}

func scenarioNavigationGating(t *T) {
	s, err := createSession()
	if err != nil {
		t.fatalf("create session: %v", err)
		return
	}
	resp := mustCall(t, s, http.MethodPost, "/goto/review", "")
	if resp == nil {
		return
	}
	t.check("cannot jump ahead to review", resp.Status == http.StatusConflict)

	mustCall(t, s, http.MethodPost, "/zip", fmt.Sprintf(`{"postalCode":%q}`, supportedZip))
	resp = mustCall(t, s, http.MethodPost, "/next", "")
	if resp == nil {
		return
	}
	t.check("advanced to category", resp.View.Step == "category")

	resp = mustCall(t, s, http.MethodPost, "/goto/0", "")
	if resp == nil {
		return
	}
	t.check("jumped back to zip check", resp.Status == http.StatusOK && resp.View.Index == 0)
}

func scenarioReviewRequirements(t *T) {
	s, err := createSession()
	if err != nil {
		t.fatalf("create session: %v", err)
		return
	}
	if !advanceToDetails(t, s) {
		return
	}
	mustCall(t, s, http.MethodPut, "/details", `{"urgency":"normal"}`)
	mustCall(t, s, http.MethodPost, "/next", "")

	resp := mustCall(t, s, http.MethodPost, "/confirm", "")
	if resp == nil {
		return
	}
	t.check("confirm without terms rejected", resp.Status == http.StatusConflict)

	mustCall(t, s, http.MethodPut, "/flags", `{"termsAccepted":true}`)
	resp = mustCall(t, s, http.MethodPost, "/confirm", "")
	if resp == nil {
		return
	}
	t.check("confirm without dispatch fee rejected", resp.Status == http.StatusConflict)
}

func scenarioContactHints(t *T) {
	s, err := createSession()
	if err != nil {
		t.fatalf("create session: %v", err)
		return
	}
	resp := mustCall(t, s, http.MethodPut, "/contact", `{"firstName":"Dana","lastName":"Ortiz","phoneE164":"5125550199","email":"dana-at-example"}`)
	if resp == nil {
		return
	}
	t.check("email hint returned", resp.Hints["email"] != "")
	t.check("phone hint returned", resp.Hints["phoneE164"] != "")
}

func scenarioResetAndDelete(t *T) {
	s, err := createSession()
	if err != nil {
		t.fatalf("create session: %v", err)
		return
	}
	mustCall(t, s, http.MethodPost, "/zip", fmt.Sprintf(`{"postalCode":%q}`, supportedZip))
	mustCall(t, s, http.MethodPost, "/next", "")
	resp := mustCall(t, s, http.MethodPost, "/reset", "")
	if resp == nil {
		return
	}
	t.check("reset returns to first step", resp.View.Index == 0)

	resp = mustCall(t, s, http.MethodDelete, "", "")
	if resp == nil {
		return
	}
	t.check("delete returns 204", resp.Status == http.StatusNoContent)

	resp = mustCall(t, s, http.MethodGet, "", "")
	if resp == nil {
		return
	}
	t.check("deleted session is gone", resp.Status == http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL required")
		os.Exit(1)
	}

	scenarios := []scenario{
		{"happy-path", scenarioHappyPath},
		{"unsupported-zip", scenarioUnsupportedZip},
		{"navigation-gating", scenarioNavigationGating},
		{"review-requirements", scenarioReviewRequirements},
		{"contact-hints", scenarioContactHints},
		{"reset-and-delete", scenarioResetAndDelete},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "✅"
		if t.failed > 0 {
			status = "❌"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\n❌ SOME TESTS FAILED")
		os.Exit(1)
	}
	fmt.Println("\n✅ ALL TESTS PASSED")
}
