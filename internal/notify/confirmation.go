package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/contractor-booking/internal/submission"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// ConfirmationNotifier emails the customer, and optionally the business,
// once a booking is confirmed. Its Notify method is meant to back the
// host's onComplete callback.
type ConfirmationNotifier struct {
	email  EmailSender
	logger *logging.Logger
}

// NewConfirmationNotifier creates a notifier. A nil sender disables it.
func NewConfirmationNotifier(email EmailSender, logger *logging.Logger) *ConfirmationNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmationNotifier{email: email, logger: logger}
}

// Notify sends the confirmation emails for c.
func (n *ConfirmationNotifier) Notify(ctx context.Context, c submission.Completion) error {
	if n == nil || n.email == nil {
		return nil
	}
	contact := c.State.Contact
	if contact == nil || strings.TrimSpace(contact.Email) == "" {
		n.logger.Debug("notify: no customer email, skipping confirmation", "session_id", c.SessionID)
		return nil
	}

	var errs []error
	msg := EmailMessage{
		To:        strings.TrimSpace(contact.Email),
		ToName:    strings.TrimSpace(contact.FirstName + " " + contact.LastName),
		ReplyTo:   strings.TrimSpace(c.BusinessEmail),
		Subject:   customerSubject(c),
		Body:      customerText(c),
		HTML:      customerHTML(c),
		Category:  CategoryConfirmation,
		BookingID: c.Booking.ID,
	}
	if err := n.email.Send(ctx, msg); err != nil {
		n.logger.Error("notify: failed to send confirmation", "error", err, "booking_id", c.Booking.ID)
		errs = append(errs, err)
	} else {
		n.logger.Info("notify: confirmation email sent", "booking_id", c.Booking.ID, "session_id", c.SessionID)
	}

	if to := strings.TrimSpace(c.BusinessEmail); to != "" {
		alert := EmailMessage{
			To:        to,
			ToName:    c.BusinessName,
			ReplyTo:   strings.TrimSpace(contact.Email),
			Subject:   fmt.Sprintf("New booking %s", bookingRef(c.Booking)),
			Body:      businessText(c),
			Category:  CategoryBusinessAlert,
			BookingID: c.Booking.ID,
		}
		if err := n.email.Send(ctx, alert); err != nil {
			n.logger.Error("notify: failed to send business alert", "error", err, "booking_id", c.Booking.ID)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: confirmation: %w", errors.Join(errs...))
	}
	return nil
}

func bookingRef(b wizard.Booking) string {
	if b.BookingNumber != "" {
		return "#" + b.BookingNumber
	}
	return b.ID
}

func customerSubject(c submission.Completion) string {
	name := c.BusinessName
	if name == "" {
		return fmt.Sprintf("Your booking %s is confirmed", bookingRef(c.Booking))
	}
	return fmt.Sprintf("Your booking with %s is confirmed (%s)", name, bookingRef(c.Booking))
}

// formatWindow renders the slot in the customer's timezone when known.
func formatWindow(s *wizard.Slot, zip *wizard.ZipInfo) string {
	if s == nil {
		return ""
	}
	tz := s.Timezone
	if tz == "" && zip != nil {
		tz = zip.Timezone
	}
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	start, end := s.Start.In(loc), s.End.In(loc)
	return fmt.Sprintf("%s, %s - %s %s",
		start.Format("Monday, January 2"), start.Format("3:04 PM"), end.Format("3:04 PM"), start.Format("MST"))
}

func formatAddress(a *wizard.Address) string {
	if a == nil {
		return ""
	}
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, strings.TrimSpace(fmt.Sprintf("%s, %s %s", a.City, a.Region, a.PostalCode)))
	return strings.Join(parts, ", ")
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func customerText(c submission.Completion) string {
	var b strings.Builder
	name := "there"
	if c.State.Contact != nil && c.State.Contact.FirstName != "" {
		name = c.State.Contact.FirstName
	}
	fmt.Fprintf(&b, "Hi %s,\n\nYour booking %s is confirmed.\n\n", name, bookingRef(c.Booking))
	if w := formatWindow(c.State.Slot, c.State.ZipInfo); w != "" {
		fmt.Fprintf(&b, "When: %s\n", w)
	}
	if a := formatAddress(c.State.Address); a != "" {
		fmt.Fprintf(&b, "Where: %s\n", a)
	}
	if c.Booking.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", c.Booking.Status)
	}
	if p := c.Booking.QuotedPriceCents; p != nil {
		fmt.Fprintf(&b, "Quoted price: %s\n", formatCents(*p))
	}
	if fee := c.State.ZipInfo.DispatchFee(); fee > 0 {
		fmt.Fprintf(&b, "Dispatch fee: %s\n", formatCents(fee))
	}
	if c.BusinessPhone != "" {
		fmt.Fprintf(&b, "\nQuestions? Call us at %s.\n", c.BusinessPhone)
	}
	if c.BusinessName != "" {
		fmt.Fprintf(&b, "\n%s\n", c.BusinessName)
	}
	return b.String()
}

func customerHTML(c submission.Completion) string {
	row := func(label, value string) string {
		if value == "" {
			return ""
		}
		return fmt.Sprintf(`<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>%s</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>`,
			label, html.EscapeString(value))
	}
	quoted := ""
	if p := c.Booking.QuotedPriceCents; p != nil {
		quoted = formatCents(*p)
	}
	footer := ""
	if c.BusinessPhone != "" {
		footer = fmt.Sprintf(`<p>Questions? Call us at <a href="tel:%s">%s</a>.</p>`,
			html.EscapeString(c.BusinessPhone), html.EscapeString(c.BusinessPhone))
	}
	return fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #2563eb;">Booking confirmed</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
%s%s%s%s%s
</table>
%s
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">%s</p>
</div>`,
		row("Booking:", bookingRef(c.Booking)),
		row("When:", formatWindow(c.State.Slot, c.State.ZipInfo)),
		row("Where:", formatAddress(c.State.Address)),
		row("Status:", c.Booking.Status),
		row("Quoted price:", quoted),
		footer,
		html.EscapeString(c.BusinessName))
}

func businessText(c submission.Completion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Booking %s was placed online.\n\n", bookingRef(c.Booking))
	if ct := c.State.Contact; ct != nil {
		fmt.Fprintf(&b, "Customer: %s %s\nPhone: %s\nEmail: %s\n", ct.FirstName, ct.LastName, ct.PhoneE164, ct.Email)
	}
	if s := c.State.Service; s != nil {
		fmt.Fprintf(&b, "Service: %s / %s\n", s.CategoryID, s.ServiceID)
	}
	if w := formatWindow(c.State.Slot, c.State.ZipInfo); w != "" {
		fmt.Fprintf(&b, "When: %s\n", w)
	}
	if a := formatAddress(c.State.Address); a != "" {
		fmt.Fprintf(&b, "Where: %s\n", a)
	}
	if d := c.State.Details; d != nil {
		fmt.Fprintf(&b, "Urgency: %s\n", d.Urgency)
		if d.Notes != "" {
			fmt.Fprintf(&b, "Notes: %s\n", d.Notes)
		}
		if len(d.Attachments) > 0 {
			fmt.Fprintf(&b, "Attachments: %d\n", len(d.Attachments))
		}
	}
	return b.String()
}
