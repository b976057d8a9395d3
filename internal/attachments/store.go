// Package attachments uploads job photos and documents attached on the
// details step.
package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

// MaxSizeBytes caps a single attachment.
const MaxSizeBytes = 10 << 20

var (
	ErrDisabled         = errors.New("attachments: storage not configured")
	ErrTooLarge         = errors.New("attachments: file exceeds size limit")
	ErrEmpty            = errors.New("attachments: file is empty")
	ErrUnsupportedType  = errors.New("attachments: unsupported content type")
	ErrMissingSessionID = errors.New("attachments: session id required")
)

var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/heic":      true,
	"image/webp":      true,
	"application/pdf": true,
	"video/mp4":       true,
}

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store writes attachments to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	newID    func() string
}

// NewStore creates a Store. If bucket is empty, uploads fail with ErrDisabled.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, newID: uuid.NewString}
}

// Enabled returns true if a bucket is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Upload stores body and returns the attachment record to put on the
// wizard's details slice.
func (s *Store) Upload(ctx context.Context, sessionID, filename, contentType string, body io.Reader) (wizard.Attachment, error) {
	if !s.Enabled() {
		return wizard.Attachment{}, ErrDisabled
	}
	if sessionID == "" {
		return wizard.Attachment{}, ErrMissingSessionID
	}
	contentType = normalizeType(contentType)
	if !allowedTypes[contentType] {
		return wizard.Attachment{}, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}

	// read one byte past the limit to detect oversize bodies
	data, err := io.ReadAll(io.LimitReader(body, MaxSizeBytes+1))
	if err != nil {
		return wizard.Attachment{}, fmt.Errorf("attachments: read body: %w", err)
	}
	if len(data) == 0 {
		return wizard.Attachment{}, ErrEmpty
	}
	if len(data) > MaxSizeBytes {
		return wizard.Attachment{}, ErrTooLarge
	}

	id := s.newID()
	name := SanitizeFilename(filename)
	key := fmt.Sprintf("attachments/%s/%s-%s", sessionID, id, name)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return wizard.Attachment{}, fmt.Errorf("attachments: s3 put %s: %w", key, err)
	}

	s.logger.Info("stored attachment",
		"session_id", sessionID,
		"attachment_id", id,
		"s3_key", key,
		"size_bytes", len(data),
	)
	return wizard.Attachment{
		ID:          id,
		Filename:    name,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Key:         key,
	}, nil
}

// Delete removes a stored attachment.
func (s *Store) Delete(ctx context.Context, a wizard.Attachment) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(a.Key),
	})
	if err != nil {
		return fmt.Errorf("attachments: s3 delete %s: %w", a.Key, err)
	}
	return nil
}

func normalizeType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// SanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] so the name is safe inside an object key.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 100 {
		out = out[len(out)-100:]
	}
	return out
}
