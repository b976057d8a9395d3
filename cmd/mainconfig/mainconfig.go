// Package mainconfig holds process-level wiring shared by the binaries.
package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/contractor-booking/internal/config"
)

// awsMaxAttempts bounds SDK retries. Analytics and email run off the
// request path, so a short budget keeps shutdown drains quick.
const awsMaxAttempts = 3

// LoadAWSConfig builds the SDK config for the analytics queue, attachment
// bucket and SES. Static credentials win over the default chain, and
// AWS_ENDPOINT_OVERRIDE points those three services at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
		config.WithRetryMaxAttempts(awsMaxAttempts),
	}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.EndpointResolverWithOptions = localEndpoints(endpoint, cfg.AWSRegion)
	}
	return awsCfg, nil
}

// localEndpoints routes the services the API uses to one local endpoint.
// S3 keeps the hostname as given so bucket names are not prepended.
func localEndpoints(endpoint, region string) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
		switch service {
		case sqs.ServiceID, s3.ServiceID, sesv2.ServiceID:
			return aws.Endpoint{
				URL:               endpoint,
				PartitionID:       "aws",
				SigningRegion:     region,
				HostnameImmutable: service == s3.ServiceID,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.AnalyticsSink == "sqs" || cfg.AttachmentsBucket != "" ||
		(cfg.SESFromEmail != "" && cfg.SendGridAPIKey == "")
}
