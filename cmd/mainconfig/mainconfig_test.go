package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/contractor-booking/internal/config"
)

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if awsCfg.Region != "us-east-1" {
		t.Fatalf("expected region, got %s", awsCfg.Region)
	}
	if awsCfg.RetryMaxAttempts != awsMaxAttempts {
		t.Fatalf("expected %d retry attempts, got %d", awsMaxAttempts, awsCfg.RetryMaxAttempts)
	}
	for _, svc := range []string{sqs.ServiceID, s3.ServiceID} {
		ep, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(svc, "us-east-1")
		if err != nil {
			t.Fatalf("resolve %s: %v", svc, err)
		}
		if ep.URL != "http://localhost:4566" {
			t.Fatalf("expected override for %s, got %s", svc, ep.URL)
		}
		if ep.HostnameImmutable != (svc == s3.ServiceID) {
			t.Fatalf("unexpected HostnameImmutable for %s", svc)
		}
	}
	if _, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint("dynamodb", "us-east-1"); err == nil {
		t.Fatalf("expected unrelated services to use default resolution")
	}
}

func TestNeedsAWS(t *testing.T) {
	if NeedsAWS(&appconfig.Config{AnalyticsSink: "log"}) {
		t.Fatalf("expected no AWS for log sink")
	}
	if !NeedsAWS(&appconfig.Config{AttachmentsBucket: "uploads"}) {
		t.Fatalf("expected AWS for attachments")
	}
	if NeedsAWS(&appconfig.Config{SESFromEmail: "a@example.com", SendGridAPIKey: "SG"}) {
		t.Fatalf("expected SendGrid to bypass SES")
	}
}
