package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/contractor-booking/internal/analytics"
	"github.com/wolfman30/contractor-booking/internal/attachments"
	"github.com/wolfman30/contractor-booking/internal/bookingapi"
	appconfig "github.com/wolfman30/contractor-booking/internal/config"
	"github.com/wolfman30/contractor-booking/internal/notify"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// BuildBookingClient creates the contractor API client. baseURL overrides
// the configured URL, which is how the in-process demo API is targeted.
// BOOKING_API_RETRY_MAX_ATTEMPTS counts the first request.
func BuildBookingClient(cfg *appconfig.Config, baseURL string, logger *logging.Logger) (*bookingapi.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = cfg.BookingAPIBaseURL
	}
	return bookingapi.New(bookingapi.Config{
		BaseURL:    baseURL,
		APIKey:     cfg.BookingAPIKey,
		Timeout:    cfg.BookingAPITimeout,
		MaxRetries: max(cfg.BookingAPIRetryMaxAttempts-1, 0),
		Backoff:    cfg.BookingAPIRetryBaseDelay,
		Logger:     logger,
	})
}

// BuildAnalyticsSink selects the analytics sink named by ANALYTICS_SINK.
// A sink whose backing service is missing falls back to logging. "none"
// returns nil, which the emitter treats as discard.
func BuildAnalyticsSink(cfg *appconfig.Config, awsCfg *aws.Config, pool *pgxpool.Pool, logger *logging.Logger) analytics.Sink {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return analytics.NewLogSink(logger)
	}
	switch cfg.AnalyticsSink {
	case "none":
		return nil
	case "http":
		if cfg.AnalyticsHTTPURL != "" {
			return analytics.NewHTTPSink(cfg.AnalyticsHTTPURL, nil)
		}
	case "sqs":
		if awsCfg != nil && cfg.AnalyticsQueueURL != "" {
			return analytics.NewSQSSink(sqs.NewFromConfig(*awsCfg), cfg.AnalyticsQueueURL)
		}
	case "postgres":
		if pool != nil {
			return analytics.NewPostgresSink(pool)
		}
	case "log", "":
		return analytics.NewLogSink(logger)
	}
	logger.Warn("analytics sink unavailable, falling back to log", "sink", cfg.AnalyticsSink)
	return analytics.NewLogSink(logger)
}

// BuildEmailSender prefers SendGrid, then SES, then the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	if cfg.SendGridAPIKey != "" && cfg.SESFromEmail != "" {
		logger.Info("confirmation emails via sendgrid")
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	if awsCfg != nil && cfg.SESFromEmail != "" {
		logger.Info("confirmation emails via ses")
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail:        cfg.SESFromEmail,
			FromName:         cfg.EmailFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger)
	}
	logger.Info("confirmation emails disabled, using stub sender")
	return notify.NewStubEmailSender(logger)
}

// BuildAttachmentStore returns the S3 attachment store, or nil when no
// bucket is configured.
func BuildAttachmentStore(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *attachments.Store {
	if cfg == nil || awsCfg == nil || strings.TrimSpace(cfg.AttachmentsBucket) == "" {
		return nil
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO only serve path-style URLs.
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return attachments.NewStore(client, cfg.AttachmentsBucket, logger)
}
