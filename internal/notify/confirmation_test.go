package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/contractor-booking/internal/submission"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	fail map[string]error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.fail[msg.To]
}

func completion() submission.Completion {
	price := int64(18900)
	fee := int64(4900)
	return submission.Completion{
		BusinessID:    "biz_1",
		BusinessName:  "Acme Plumbing",
		BusinessPhone: "(512) 555-0100",
		SessionID:     "sess_1",
		Booking:       wizard.Booking{ID: "bk_1", BookingNumber: "HS-1001", Status: "pending", QuotedPriceCents: &price},
		State: wizard.State{
			Step:    wizard.StepConfirmation,
			ZipInfo: &wizard.ZipInfo{PostalCode: "78701", Timezone: "America/Chicago", Supported: true, DispatchFeeCents: &fee},
			Service: &wizard.ServiceSelection{CategoryID: "plumbing", ServiceID: "drain-cleaning"},
			Address: &wizard.Address{Line1: "123 Main St", City: "Austin", Region: "TX", PostalCode: "78701"},
			Slot: &wizard.Slot{
				Start: time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC),
				End:   time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC),
			},
			Contact: &wizard.Contact{FirstName: "Jane", LastName: "Doe", PhoneE164: "+15125551234", Email: "jane@example.com"},
			Details: &wizard.Details{Notes: "<b>sink</b>", Urgency: wizard.UrgencyUrgent},
		},
	}
}

func TestConfirmationNotifier_SendsCustomerEmail(t *testing.T) {
	sender := &recordingSender{}
	n := NewConfirmationNotifier(sender, logging.New("error"))

	require.NoError(t, n.Notify(context.Background(), completion()))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Equal(t, "Jane Doe", msg.ToName)
	assert.Equal(t, "Your booking with Acme Plumbing is confirmed (#HS-1001)", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Jane")
	assert.Contains(t, msg.Body, "Saturday, March 1, 8:00 AM - 9:00 AM CST")
	assert.Contains(t, msg.Body, "123 Main St, Austin, TX 78701")
	assert.Contains(t, msg.Body, "Quoted price: $189.00")
	assert.Contains(t, msg.Body, "Dispatch fee: $49.00")
	assert.Contains(t, msg.Body, "(512) 555-0100")
	assert.Contains(t, msg.HTML, "#HS-1001")
	assert.Equal(t, CategoryConfirmation, msg.Category)
	assert.Equal(t, completion().Booking.ID, msg.BookingID)
	assert.Empty(t, msg.ReplyTo)
}

func TestConfirmationNotifier_AlertsBusiness(t *testing.T) {
	sender := &recordingSender{}
	n := NewConfirmationNotifier(sender, logging.New("error"))
	c := completion()
	c.BusinessEmail = "office@acme.example"

	require.NoError(t, n.Notify(context.Background(), c))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "office@acme.example", sender.sent[0].ReplyTo)
	alert := sender.sent[1]
	assert.Equal(t, "office@acme.example", alert.To)
	assert.Equal(t, "jane@example.com", alert.ReplyTo)
	assert.Equal(t, CategoryBusinessAlert, alert.Category)
	assert.Equal(t, "New booking #HS-1001", alert.Subject)
	assert.Contains(t, alert.Body, "Customer: Jane Doe")
	assert.Contains(t, alert.Body, "Service: plumbing / drain-cleaning")
	assert.Contains(t, alert.Body, "Urgency: urgent")
}

func TestConfirmationNotifier_SkipsWithoutEmail(t *testing.T) {
	sender := &recordingSender{}
	n := NewConfirmationNotifier(sender, logging.New("error"))
	c := completion()
	c.State.Contact.Email = " "

	require.NoError(t, n.Notify(context.Background(), c))
	assert.Empty(t, sender.sent)

	var disabled *ConfirmationNotifier
	require.NoError(t, disabled.Notify(context.Background(), c))
	require.NoError(t, NewConfirmationNotifier(nil, nil).Notify(context.Background(), c))
}

func TestConfirmationNotifier_ReportsFailuresButTriesAll(t *testing.T) {
	sender := &recordingSender{fail: map[string]error{"jane@example.com": errors.New("bounced")}}
	n := NewConfirmationNotifier(sender, logging.New("error"))
	c := completion()
	c.BusinessEmail = "office@acme.example"

	err := n.Notify(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bounced")
	assert.Len(t, sender.sent, 2)
}

func TestCustomerHTML_EscapesValues(t *testing.T) {
	c := completion()
	c.BusinessName = "<script>"
	assert.NotContains(t, customerHTML(c), "<script>")
	assert.Contains(t, customerHTML(c), "&lt;script&gt;")
}
