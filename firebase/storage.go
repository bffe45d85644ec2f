package firebase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
)

var errNoBucket = errors.New("no storage bucket configured")

// ReportStorage keeps exported reports and returns a URL to fetch them.
type ReportStorage interface {
	UploadReport(ctx context.Context, name string, data []byte) (string, error)
}

// BucketReports writes reports to the app's Cloud Storage bucket.
type BucketReports struct {
	bucket    *storage.BucketHandle
	name      string
	prefix    string
	signedTTL time.Duration
	now       func() time.Time
}

func NewBucketReports(ctx context.Context, app *firebase.App, bucketName string) (*BucketReports, error) {
	if bucketName == "" {
		return nil, errNoBucket
	}
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase storage client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketName, err)
	}
	return &BucketReports{
		bucket:    bucket,
		name:      bucketName,
		prefix:    "reports",
		signedTTL: 24 * time.Hour,
		now:       time.Now,
	}, nil
}

func (b *BucketReports) objectPath(name string) string {
	return fmt.Sprintf("%s/%s_%s", b.prefix, b.now().UTC().Format("20060102T150405Z"), sanitizeFilename(name))
}

// UploadReport stores the JSON report. It returns a signed URL when the credentials can
// sign, and the gs:// location otherwise.
func (b *BucketReports) UploadReport(ctx context.Context, name string, data []byte) (string, error) {
	path := b.objectPath(name)

	wc := b.bucket.Object(path).NewWriter(ctx)
	wc.ContentType = "application/json"
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}

	url, err := b.bucket.SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: b.now().Add(b.signedTTL),
	})
	if err != nil {
		slog.Warn("could not sign report url", "object", path, "error", err)
		return fmt.Sprintf("gs://%s/%s", b.name, path), nil
	}
	return url, nil
}
