// Package content resolves image content locations to local files.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/tenderflow/internal/gcp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrUnsupportedLocation is returned for schemes without a configured client.
var ErrUnsupportedLocation = errors.New("unsupported content location")

// Fetcher makes the content at location available as a local file.
type Fetcher interface {
	Fetch(ctx context.Context, location, destDir string) (string, error)
}

// Resolver handles local paths, file://, gs:// and s3:// locations.
// Remote clients are optional; a nil client disables its scheme.
type Resolver struct {
	GCS *storage.Client
	S3  *minio.Client
}

// MinioConfig configures the S3-compatible object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinioClient returns nil without error when no endpoint is configured.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

func (r *Resolver) Fetch(ctx context.Context, location, destDir string) (string, error) {
	switch {
	case strings.HasPrefix(location, "gs://"):
		if r.GCS == nil {
			return "", fmt.Errorf("%w: %s (no storage client)", ErrUnsupportedLocation, location)
		}
		bucket, object, err := gcp.ParseGCSURI(location)
		if err != nil {
			return "", err
		}
		dest := localName(destDir, location, object)
		if err := gcp.DownloadObject(ctx, r.GCS, bucket, object, dest); err != nil {
			return "", err
		}
		return dest, nil

	case strings.HasPrefix(location, "s3://"):
		if r.S3 == nil {
			return "", fmt.Errorf("%w: %s (no object store client)", ErrUnsupportedLocation, location)
		}
		u, err := url.Parse(location)
		if err != nil {
			return "", fmt.Errorf("invalid s3 location %q: %w", location, err)
		}
		object := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || object == "" {
			return "", fmt.Errorf("s3 location must name a bucket and an object: %q", location)
		}
		dest := localName(destDir, location, object)
		if err := r.S3.FGetObject(ctx, u.Host, object, dest, minio.GetObjectOptions{}); err != nil {
			return "", fmt.Errorf("failed to download s3://%s/%s: %w", u.Host, object, err)
		}
		return dest, nil

	case strings.HasPrefix(location, "file://"):
		u, err := url.Parse(location)
		if err != nil {
			return "", fmt.Errorf("invalid file location %q: %w", location, err)
		}
		return filepath.FromSlash(u.Path), nil

	case strings.Contains(location, "://"):
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLocation, location)
	}
	return location, nil
}

// localName keeps the object's base name and prefixes a hash of the full location
// so two objects with the same name do not collide in destDir.
func localName(destDir, location, object string) string {
	sum := sha256.Sum256([]byte(location))
	return filepath.Join(destDir, hex.EncodeToString(sum[:4])+"-"+path.Base(object))
}
