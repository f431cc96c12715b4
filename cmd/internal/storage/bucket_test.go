package storage

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func testConfig() Config {
	return Config{
		Endpoint:        "http://127.0.0.1:9000",
		Region:          "us-east-1",
		AccessKeyID:     "hearth",
		SecretAccessKey: "hearth-secret",
		Bucket:          "recipe-images",
		PublicBaseURL:   "https://cdn.example.test/",
		PathStyle:       true,
		PresignTTL:      15 * time.Minute,
	}
}

func TestNew_DisabledReturnsNil(t *testing.T) {
	t.Parallel()

	b, err := New(context.Background(), Config{})
	if err != nil || b != nil {
		t.Fatalf("New(disabled) = %v, %v", b, err)
	}
	if _, err := b.PresignUpload(context.Background(), "u1", "image/png"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

// writeCABundle writes a self-signed CA certificate as PEM and returns its path.
func writeCABundle(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "hearth test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("cert: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestNew_HonorsCustomCABundle(t *testing.T) {
	t.Setenv("AWS_CA_BUNDLE", writeCABundle(t))

	b, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New with AWS_CA_BUNDLE: %v", err)
	}
	if _, err := b.PresignUpload(context.Background(), "u1", "image/png"); err != nil {
		t.Fatalf("PresignUpload: %v", err)
	}
}

func TestPresignUpload(t *testing.T) {
	t.Parallel()

	b, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.newID = func() string { return "0b6c3d1e-0000-4000-8000-000000000001" }

	up, err := b.PresignUpload(context.Background(), "u1", "image/JPEG; charset=binary")
	if err != nil {
		t.Fatalf("PresignUpload: %v", err)
	}
	if up.Key != "recipes/u1/0b6c3d1e-0000-4000-8000-000000000001.jpg" {
		t.Fatalf("key = %q", up.Key)
	}
	if up.PublicURL != "https://cdn.example.test/recipe-images/"+up.Key {
		t.Fatalf("public url = %q", up.PublicURL)
	}
	if up.Headers["Content-Type"] != "image/jpeg" {
		t.Fatalf("headers = %v", up.Headers)
	}

	u, err := url.Parse(up.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.HasPrefix(u.Path, "/recipe-images/recipes/u1/") {
		t.Fatalf("path-style url expected, got %s", u.Path)
	}
	if u.Query().Get("X-Amz-Signature") == "" || u.Query().Get("X-Amz-Expires") != "900" {
		t.Fatalf("query = %v", u.Query())
	}
}

func TestPresignUpload_RejectsNonImages(t *testing.T) {
	t.Parallel()

	b, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, ct := range []string{"text/html", "image/svg+xml", ""} {
		if _, err := b.PresignUpload(context.Background(), "u1", ct); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("%q: expected ErrUnsupportedType, got %v", ct, err)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Enabled() || cfg.Bucket != "recipe-images" || cfg.PresignTTL != 15*time.Minute {
		t.Fatalf("defaults = %+v", cfg)
	}

	tests := map[string]map[string]string{
		"bad scheme":   {"HEARTH_STORAGE_ENDPOINT": "ftp://x", "HEARTH_STORAGE_ACCESS_KEY_ID": "a", "HEARTH_STORAGE_SECRET_ACCESS_KEY": "b"},
		"missing keys": {"HEARTH_STORAGE_ENDPOINT": "http://minio:9000"},
		"short ttl":    {"HEARTH_STORAGE_ENDPOINT": "http://minio:9000", "HEARTH_STORAGE_ACCESS_KEY_ID": "a", "HEARTH_STORAGE_SECRET_ACCESS_KEY": "b", "HEARTH_STORAGE_PRESIGN_TTL": "1s"},
	}
	for name, env := range tests {
		if _, err := LoadConfig(context.Background(), envconfig.MapLookuper(env)); !errors.Is(err, ErrConfig) {
			t.Fatalf("%s: expected ErrConfig, got %v", name, err)
		}
	}
}
