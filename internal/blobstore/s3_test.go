package blobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isites_migrator/internal/domain"
)

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []recordedRequest
	objects  map[string]bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
	})
	f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		if !f.objects[r.URL.Path] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", "0")
		w.Header().Set("Content-Type", "application/zip")
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, fake *fakeS3, prefix string) *S3Store {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return newS3Store(client, Config{Bucket: "exports", KeyPrefix: prefix}, logger)
}

func TestS3Store_Upload(t *testing.T) {
	fake := &fakeS3{objects: map[string]bool{}}
	store := newTestStore(t, fake, "isites/")

	local := filepath.Join(t.TempDir(), "ABC123.zip")
	require.NoError(t, os.WriteFile(local, []byte("PK\x05\x06"), 0o644))

	err := store.Upload(context.Background(), "ABC123.zip", local, "application/zip")
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, http.MethodPut, fake.requests[0].Method)
	assert.Equal(t, "/exports/isites/ABC123.zip", fake.requests[0].Path)
	assert.Equal(t, "application/zip", fake.requests[0].ContentType)
}

func TestS3Store_Upload_MissingFile(t *testing.T) {
	store := newTestStore(t, &fakeS3{}, "")

	err := store.Upload(context.Background(), "ABC123.zip", filepath.Join(t.TempDir(), "nope.zip"), "application/zip")
	require.Error(t, err)
}

func TestS3Store_PresignGet(t *testing.T) {
	fake := &fakeS3{objects: map[string]bool{"/exports/ABC123.zip": true}}
	store := newTestStore(t, fake, "")

	url, err := store.PresignGet(context.Background(), "ABC123.zip", 15*time.Minute)
	require.NoError(t, err)

	assert.Contains(t, url, "/exports/ABC123.zip")
	assert.Contains(t, url, "X-Amz-Expires=900")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestS3Store_PresignGet_NotFound(t *testing.T) {
	fake := &fakeS3{objects: map[string]bool{}}
	store := newTestStore(t, fake, "")

	_, err := store.PresignGet(context.Background(), "MISSING.zip", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
