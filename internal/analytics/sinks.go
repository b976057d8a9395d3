package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Track(_ context.Context, ev Event) error {
	s.logger.Info("wizard_event",
		"step", ev.Step,
		"action", ev.Action,
		"business_id", ev.BusinessID,
		"session_id", ev.SessionID,
		"timestamp", ev.Timestamp.Format(time.RFC3339Nano),
	)
	return nil
}

// HTTPSink posts each event as JSON to a collector endpoint.
type HTTPSink struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPSink(endpoint string, httpClient *http.Client) *HTTPSink {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSink{endpoint: endpoint, httpClient: httpClient}
}

func (s *HTTPSink) Track(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("analytics: marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("analytics: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: http request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics: collector status %d", resp.StatusCode)
	}
	return nil
}

// SQSAPI is the subset of the SQS client used by SQSSink.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes events to a queue for downstream processing.
type SQSSink struct {
	client   SQSAPI
	queueURL string
}

func NewSQSSink(client SQSAPI, queueURL string) *SQSSink {
	if client == nil {
		panic("analytics: SQS client cannot be nil")
	}
	if strings.TrimSpace(queueURL) == "" {
		panic("analytics: SQS queueURL cannot be empty")
	}
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Track(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("analytics: marshal event: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("analytics: failed to send SQS message: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink appends events to the wizard_events table.
type PostgresSink struct {
	db execer
}

// NewPostgresSink accepts a *pgxpool.Pool or any compatible executor.
func NewPostgresSink(db execer) *PostgresSink {
	if db == nil {
		panic("analytics: pgx pool required")
	}
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Track(ctx context.Context, ev Event) error {
	query := `
		INSERT INTO wizard_events (business_id, session_id, step, action, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.Exec(ctx, query, ev.BusinessID, ev.SessionID, ev.Step, ev.Action, ev.Timestamp); err != nil {
		return fmt.Errorf("analytics: insert event: %w", err)
	}
	return nil
}
