package firebase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeFilename removes special characters from filenames and limits length.
func sanitizeFilename(filename string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(filename, "_")

	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	if sanitized == "" || sanitized == "." || sanitized == ".." {
		sanitized = "file"
	}
	return sanitized
}

// clientOptions accepts either inline service account JSON or a path to the key file.
// Empty credentials fall back to application default credentials.
func clientOptions(credentials string) []option.ClientOption {
	credentials = strings.TrimSpace(credentials)
	switch {
	case credentials == "":
		slog.Warn("firebase credentials not set, using application default credentials")
		return nil
	case strings.HasPrefix(credentials, "{"):
		slog.Info("using firebase credentials from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credentials))}
	default:
		slog.Info("using firebase credentials from file", "path", credentials)
		return []option.ClientOption{option.WithCredentialsFile(credentials)}
	}
}

// Init builds the Firebase app used for identity and report storage.
func Init(ctx context.Context, credentials, storageBucket string) (*firebase.App, error) {
	var cfg *firebase.Config
	if storageBucket != "" {
		cfg = &firebase.Config{StorageBucket: storageBucket}
	}

	app, err := firebase.NewApp(ctx, cfg, clientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("firebase init failed: %w", err)
	}
	slog.Info("firebase initialized", "storage_bucket", storageBucket)
	return app, nil
}
