package adapters

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/breaker"
	"github.com/reelscript/reelscript/internal/model"
)

// Uploader publishes a local file and returns its public URL.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, objectName, contentType string) (string, error)
}

// GCSUploader writes artifacts to a public Cloud Storage bucket using
// application default credentials.
type GCSUploader struct {
	client  *storage.Client
	bucket  string
	brk     *breaker.Breaker
	timeout time.Duration
	log     zerolog.Logger
}

func NewGCSUploader(ctx context.Context, bucket string, brk *breaker.Breaker, timeout time.Duration, log zerolog.Logger) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket, brk: brk, timeout: timeout, log: log}, nil
}

func (u *GCSUploader) UploadFile(ctx context.Context, localPath, objectName, contentType string) (string, error) {
	err := u.brk.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, u.timeout)
		defer cancel()

		f, err := os.Open(localPath)
		if err != nil {
			return &model.UpstreamError{Service: CircuitUpload, Permanent: true,
				Cause: fmt.Errorf("open artifact: %w", err)}
		}
		defer f.Close()

		w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(callCtx)
		w.ContentType = contentType
		w.CacheControl = "public, max-age=86400"
		if _, err := io.Copy(w, f); err != nil {
			_ = w.Close()
			return &model.UpstreamError{Service: CircuitUpload, Permanent: false,
				Cause: fmt.Errorf("write object %s: %w", objectName, err)}
		}
		if err := w.Close(); err != nil {
			return &model.UpstreamError{Service: CircuitUpload, Permanent: false,
				Cause: fmt.Errorf("close object %s: %w", objectName, err)}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, objectName), nil
}

// NoopUploader is the "none" image provider: artifacts stay local and no
// URL is published.
type NoopUploader struct{}

func (NoopUploader) UploadFile(ctx context.Context, localPath, objectName, contentType string) (string, error) {
	return "", nil
}
