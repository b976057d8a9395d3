package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/contractor-booking/internal/analytics"
	appconfig "github.com/wolfman30/contractor-booking/internal/config"
	"github.com/wolfman30/contractor-booking/internal/drafts"
	"github.com/wolfman30/contractor-booking/internal/notify"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
	if store := BuildDraftStore(nil, &appconfig.Config{}); store != nil {
		t.Fatalf("expected nil draft store without redis")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), DraftTTL: time.Hour}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	store := BuildDraftStore(client, cfg)
	if store == nil {
		t.Fatalf("expected draft store")
	}
	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, drafts.ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	if pool := ConnectPostgresPool(context.Background(), "", logging.New("error")); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestBuildAnalyticsSink(t *testing.T) {
	logger := logging.New("error")
	awsCfg := &aws.Config{Region: "us-east-1"}

	cases := []struct {
		name string
		cfg  *appconfig.Config
		aws  *aws.Config
		want string
	}{
		{"default log", &appconfig.Config{}, nil, "log"},
		{"none", &appconfig.Config{AnalyticsSink: "none"}, nil, "nil"},
		{"http", &appconfig.Config{AnalyticsSink: "http", AnalyticsHTTPURL: "https://collector.example.com"}, nil, "http"},
		{"http missing url", &appconfig.Config{AnalyticsSink: "http"}, nil, "log"},
		{"sqs", &appconfig.Config{AnalyticsSink: "sqs", AnalyticsQueueURL: "http://localhost:4566/queue/events"}, awsCfg, "sqs"},
		{"sqs without aws", &appconfig.Config{AnalyticsSink: "sqs", AnalyticsQueueURL: "http://localhost:4566/queue/events"}, nil, "log"},
		{"postgres without pool", &appconfig.Config{AnalyticsSink: "postgres"}, nil, "log"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := BuildAnalyticsSink(tc.cfg, tc.aws, nil, logger)
			var got string
			switch sink.(type) {
			case nil:
				got = "nil"
			case *analytics.LogSink:
				got = "log"
			case *analytics.HTTPSink:
				got = "http"
			case *analytics.SQSSink:
				got = "sqs"
			default:
				got = "other"
			}
			if got != tc.want {
				t.Fatalf("expected %s sink, got %s", tc.want, got)
			}
		})
	}
}

func TestBuildEmailSenderPriority(t *testing.T) {
	logger := logging.New("error")
	awsCfg := &aws.Config{Region: "us-east-1"}

	if _, ok := BuildEmailSender(&appconfig.Config{}, awsCfg, logger).(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender without a from address")
	}
	if _, ok := BuildEmailSender(&appconfig.Config{SESFromEmail: "book@example.com"}, awsCfg, logger).(*notify.SESSender); !ok {
		t.Fatalf("expected SES sender")
	}
	cfg := &appconfig.Config{SESFromEmail: "book@example.com", SendGridAPIKey: "SG.key"}
	if _, ok := BuildEmailSender(cfg, awsCfg, logger).(*notify.SendGridSender); !ok {
		t.Fatalf("expected SendGrid sender when an API key is set")
	}
}

func TestBuildAttachmentStore(t *testing.T) {
	logger := logging.New("error")
	awsCfg := &aws.Config{Region: "us-east-1"}

	if store := BuildAttachmentStore(&appconfig.Config{}, awsCfg, logger); store != nil {
		t.Fatalf("expected nil store without bucket")
	}
	store := BuildAttachmentStore(&appconfig.Config{AttachmentsBucket: "uploads", AWSEndpointOverride: "http://localhost:4566"}, awsCfg, logger)
	if !store.Enabled() {
		t.Fatalf("expected enabled store with bucket")
	}
}

func TestBuildBookingClient(t *testing.T) {
	logger := logging.New("error")
	if _, err := BuildBookingClient(&appconfig.Config{}, "", logger); err == nil {
		t.Fatalf("expected error without base URL")
	}
	if _, err := BuildBookingClient(&appconfig.Config{}, "http://127.0.0.1:8080/demo", logger); err != nil {
		t.Fatalf("expected override URL to be used: %v", err)
	}
}

func TestBuildBookingClientAttemptsIncludeFirstRequest(t *testing.T) {
	for _, tc := range []struct {
		attempts int
		want     int32
	}{
		{attempts: 3, want: 3},
		{attempts: 1, want: 1},
		{attempts: 0, want: 1},
	} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		cfg := &appconfig.Config{
			BookingAPIBaseURL:          srv.URL,
			BookingAPITimeout:          time.Second,
			BookingAPIRetryMaxAttempts: tc.attempts,
			BookingAPIRetryBaseDelay:   time.Millisecond,
		}
		client, err := BuildBookingClient(cfg, "", logging.New("error"))
		if err != nil {
			srv.Close()
			t.Fatalf("build client: %v", err)
		}
		if _, err := client.LookupZip(context.Background(), "biz_1", "78701"); err == nil {
			t.Errorf("attempts=%d: expected error from unavailable API", tc.attempts)
		}
		srv.Close()
		if got := hits.Load(); got != tc.want {
			t.Errorf("attempts=%d: expected %d requests, got %d", tc.attempts, tc.want, got)
		}
	}
}
