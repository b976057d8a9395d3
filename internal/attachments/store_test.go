package attachments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/contractor-booking/pkg/logging"
)

type mockS3Client struct {
	objects map[string][]byte
	types   map[string]string
	deleted []string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *mockS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(in.Body)
	m.objects[*in.Key] = body
	m.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.deleted = append(m.deleted, *in.Key)
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStore(mock S3API, bucket string) *Store {
	s := NewStore(mock, bucket, logging.New("error"))
	s.newID = func() string { return "att-1" }
	return s
}

func TestStore_Upload(t *testing.T) {
	mock := newMockS3()
	store := newTestStore(mock, "uploads")

	att, err := store.Upload(context.Background(), "sess_1", "../../Leaky Sink.JPG", "image/jpeg; charset=binary", strings.NewReader("jpegdata"))
	require.NoError(t, err)

	assert.Equal(t, "att-1", att.ID)
	assert.Equal(t, "Leaky_Sink.JPG", att.Filename)
	assert.Equal(t, "image/jpeg", att.ContentType)
	assert.Equal(t, int64(8), att.SizeBytes)
	assert.Equal(t, "attachments/sess_1/att-1-Leaky_Sink.JPG", att.Key)
	assert.Equal(t, []byte("jpegdata"), mock.objects[att.Key])
	assert.Equal(t, "image/jpeg", mock.types[att.Key])
}

func TestStore_UploadRejects(t *testing.T) {
	store := newTestStore(newMockS3(), "uploads")
	ctx := context.Background()

	tests := []struct {
		name        string
		session     string
		contentType string
		body        io.Reader
		want        error
	}{
		{"too large", "sess_1", "application/pdf", bytes.NewReader(make([]byte, MaxSizeBytes+1)), ErrTooLarge},
		{"empty", "sess_1", "image/png", strings.NewReader(""), ErrEmpty},
		{"type", "sess_1", "application/x-msdownload", strings.NewReader("MZ"), ErrUnsupportedType},
		{"session", "", "image/png", strings.NewReader("png"), ErrMissingSessionID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Upload(ctx, tt.session, "f", tt.contentType, tt.body)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStore_UploadAtLimit(t *testing.T) {
	store := newTestStore(newMockS3(), "uploads")
	att, err := store.Upload(context.Background(), "sess_1", "scan.pdf", "application/pdf", bytes.NewReader(make([]byte, MaxSizeBytes)))
	require.NoError(t, err)
	assert.Equal(t, int64(MaxSizeBytes), att.SizeBytes)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(newMockS3(), "", nil)
	assert.False(t, store.Enabled())
	_, err := store.Upload(context.Background(), "sess_1", "a.png", "image/png", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrDisabled)

	var nilStore *Store
	assert.False(t, nilStore.Enabled())
}

func TestStore_PutFailure(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("AccessDenied")
	store := newTestStore(mock, "uploads")
	_, err := store.Upload(context.Background(), "sess_1", "a.png", "image/png", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestStore_Delete(t *testing.T) {
	mock := newMockS3()
	store := newTestStore(mock, "uploads")
	att, err := store.Upload(context.Background(), "sess_1", "a.png", "image/png", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), att))
	assert.Equal(t, []string{att.Key}, mock.deleted)
	assert.Empty(t, mock.objects)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "file", SanitizeFilename(""))
	assert.Equal(t, "file", SanitizeFilename(".."))
	assert.Equal(t, "report.pdf", SanitizeFilename(`C:\Users\jane\report.pdf`))
	assert.Equal(t, "caf__photo.png", SanitizeFilename("café photo.png"))
	assert.Len(t, SanitizeFilename(strings.Repeat("a", 300)+".png"), 100)
}
