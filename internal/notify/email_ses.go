package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// SESAPI is the part of the SESv2 client the sender calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds the SES sender settings.
type SESConfig struct {
	FromEmail string
	FromName  string
	// ConfigurationSet is optional; it enables SES event publishing.
	ConfigurationSet string
}

// SESSender delivers through Amazon SES v2.
type SESSender struct {
	client SESAPI
	cfg    SESConfig
	logger *logging.Logger
}

// NewSESSender returns nil without a client.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	return &SESSender{client: client, cfg: cfg, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}
	output, err := s.client.SendEmail(ctx, s.input(msg))
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "booking_id", msg.BookingID)
		return fmt.Errorf("notify: SES send failed: %w", err)
	}
	s.logger.Info("booking email sent via SES",
		"category", msg.Category,
		"booking_id", msg.BookingID,
		"message_id", aws.ToString(output.MessageId),
	)
	return nil
}

func (s *SESSender) input(msg EmailMessage) *sesv2.SendEmailInput {
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}
	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if msg.ReplyTo != "" {
		in.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.cfg.ConfigurationSet != "" {
		in.ConfigurationSetName = aws.String(s.cfg.ConfigurationSet)
	}
	if msg.Category != "" {
		in.EmailTags = append(in.EmailTags, sesTag("category", msg.Category))
	}
	if msg.BookingID != "" {
		in.EmailTags = append(in.EmailTags, sesTag("booking_id", msg.BookingID))
	}
	return in
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// sesTag builds a message tag. SES only accepts [A-Za-z0-9_-] in tag values.
func sesTag(name, value string) types.MessageTag {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, value)
	return types.MessageTag{Name: aws.String(name), Value: aws.String(clean)}
}

var _ EmailSender = (*SESSender)(nil)
