package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/smallbiznis/opspulse/internal/clock"
	"google.golang.org/api/option"
)

const uploadTimeout = 2 * time.Minute

type GCSStore struct {
	client        *gcs.Client
	bucket        string
	mode          Mode
	emulatorHost  string
	publicBaseURL string
	clock         clock.Clock
}

func newGCSClient(ctx context.Context, mode Mode, emulatorHost string) (*gcs.Client, error) {
	switch mode {
	case ModeGCS:
		return gcs.NewClient(ctx, option.WithScopes(gcs.ScopeReadWrite))
	case ModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(emulatorHost, "/"))
		return gcs.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ConfigError{Mode: string(mode), Reason: "not a gcs mode"}
	}
}

func (s *GCSStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(key)
	n, err := writeObject(ctx, func(ctx context.Context) io.WriteCloser {
		w := obj.NewWriter(ctx)
		w.ContentType = contentType
		return w
	}, r)
	if err != nil {
		return n, fmt.Errorf("upload object %q: %w", key, err)
	}
	return n, nil
}

// writeObject copies r into a writer opened on a child context. A GCS writer
// commits whatever it holds on Close unless its context is done, so a failed
// copy cancels first and the partial object is discarded.
func writeObject(ctx context.Context, open func(context.Context) io.WriteCloser, r io.Reader) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := open(ctx)
	n, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return n, err
	}
	return n, w.Close()
}

func (s *GCSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.mode == ModeGCSEmulator {
		// The emulator does not verify signatures; hand out the media URL.
		base := s.publicBaseURL
		if base == "" {
			base = s.emulatorHost
		}
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			strings.TrimRight(base, "/"), url.PathEscape(s.bucket), url.PathEscape(key)), nil
	}

	signed, err := s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Method:  "GET",
		Scheme:  gcs.SigningSchemeV4,
		Expires: s.clock.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign object %q: %w", key, err)
	}
	return signed, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
