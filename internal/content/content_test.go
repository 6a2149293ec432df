package content

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolverLocalLocations(t *testing.T) {
	r := &Resolver{}
	ctx := context.Background()

	got, err := r.Fetch(ctx, "/var/scans/page-1.png", t.TempDir())
	if err != nil || got != "/var/scans/page-1.png" {
		t.Fatalf("Fetch(path) = %q, %v", got, err)
	}
	got, err = r.Fetch(ctx, "file:///var/scans/page-2.png", t.TempDir())
	if err != nil || got != filepath.FromSlash("/var/scans/page-2.png") {
		t.Fatalf("Fetch(file://) = %q, %v", got, err)
	}
}

func TestResolverRemoteWithoutClient(t *testing.T) {
	r := &Resolver{}
	for _, loc := range []string{"gs://scans/page.png", "s3://scans/page.png", "ftp://scans/page.png"} {
		if _, err := r.Fetch(context.Background(), loc, t.TempDir()); !errors.Is(err, ErrUnsupportedLocation) {
			t.Fatalf("Fetch(%q) error = %v, want ErrUnsupportedLocation", loc, err)
		}
	}
}

func TestLocalNameAvoidsCollisions(t *testing.T) {
	a := localName("/tmp/job", "gs://one/page.png", "page.png")
	b := localName("/tmp/job", "gs://two/page.png", "page.png")
	if a == b {
		t.Fatalf("localName collided: %q", a)
	}
	if !strings.HasSuffix(a, "-page.png") || filepath.Dir(a) != "/tmp/job" {
		t.Fatalf("localName = %q", a)
	}
}

func TestNewMinioClientDisabled(t *testing.T) {
	c, err := NewMinioClient(MinioConfig{})
	if err != nil || c != nil {
		t.Fatalf("NewMinioClient(empty) = %v, %v", c, err)
	}
	c, err = NewMinioClient(MinioConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	if err != nil || c == nil {
		t.Fatalf("NewMinioClient() = %v, %v", c, err)
	}
}
