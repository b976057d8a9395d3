package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// DefaultFromName is used when no sender name is configured.
const DefaultFromName = "Booking Confirmations"

// Message categories, reported to the provider for delivery stats.
const (
	CategoryConfirmation  = "booking_confirmation"
	CategoryBusinessAlert = "booking_alert"
)

// EmailSender delivers one message. SendGrid, SES and the stub implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a booking email. ReplyTo routes customer replies to the
// business rather than the no-reply sender.
type EmailMessage struct {
	To        string
	ToName    string
	ReplyTo   string
	Subject   string
	Body      string // plain text
	HTML      string
	Category  string
	BookingID string
}

// SendGridConfig holds the SendGrid sender settings.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	response, err := s.client.SendWithContext(ctx, sendGridMessage(s.from, msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "booking_id", msg.BookingID)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected message", "status", response.StatusCode, "body", response.Body, "booking_id", msg.BookingID)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}
	s.logger.Info("booking email sent via sendgrid",
		"category", msg.Category,
		"booking_id", msg.BookingID,
		"status", response.StatusCode,
	)
	return nil
}

func sendGridMessage(from *mail.Email, msg EmailMessage) *mail.SGMailV3 {
	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	m := mail.NewSingleEmail(from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, html)
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	if msg.BookingID != "" {
		m.SetCustomArg("booking_id", msg.BookingID)
	}
	return m
}

// StubEmailSender logs messages instead of sending them.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email delivery disabled, dropping message",
		"category", msg.Category,
		"booking_id", msg.BookingID,
		"subject", msg.Subject,
	)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
