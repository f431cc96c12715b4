// Package storage presigns recipe-image uploads against an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	// ErrUnavailable is returned by a nil Bucket.
	ErrUnavailable     = errors.New("storage: not configured")
	ErrUnsupportedType = errors.New("storage: unsupported content type")
)

var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Upload is a presigned PUT. The client must send Headers with the request.
type Upload struct {
	URL       string
	Method    string
	Headers   map[string]string
	Key       string
	PublicURL string
	ExpiresAt time.Time
}

// Bucket is safe for concurrent use. A nil *Bucket reports ErrUnavailable.
type Bucket struct {
	presign    *s3.PresignClient
	bucket     string
	publicBase string
	ttl        time.Duration
	now        func() time.Time
	newID      func() string
}

// New returns nil, nil when cfg is disabled.
func New(ctx context.Context, cfg Config) (*Bucket, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		o.BaseEndpoint = aws.String(endpoint)
		// Presigned PUTs carry no body checksum.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	public := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if public == "" {
		public = endpoint
	}
	return &Bucket{
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		publicBase: public,
		ttl:        cfg.PresignTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// ObjectKey builds recipes/{userID}/{id}{ext} for an accepted image type.
func ObjectKey(userID, id, contentType string) (string, error) {
	ext, ok := extByType[normalizeType(contentType)]
	if !ok {
		return "", ErrUnsupportedType
	}
	return "recipes/" + userID + "/" + id + ext, nil
}

func normalizeType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// PresignUpload signs a PUT of one new object owned by userID.
func (b *Bucket) PresignUpload(ctx context.Context, userID, contentType string) (Upload, error) {
	if b == nil {
		return Upload{}, ErrUnavailable
	}
	ct := normalizeType(contentType)
	key, err := ObjectKey(userID, b.newID(), ct)
	if err != nil {
		return Upload{}, err
	}

	expires := b.now().Add(b.ttl)
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(ct),
	}, s3.WithPresignExpires(b.ttl))
	if err != nil {
		return Upload{}, err
	}

	headers := map[string]string{"Content-Type": ct}
	for k, v := range req.SignedHeader {
		if len(v) > 0 && !strings.EqualFold(k, "host") {
			headers[http.CanonicalHeaderKey(k)] = v[0]
		}
	}
	return Upload{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
		Key:       key,
		PublicURL: b.PublicURL(key),
		ExpiresAt: expires,
	}, nil
}

// PublicURL is {public_base}/{bucket}/{key}.
func (b *Bucket) PublicURL(key string) string {
	if b == nil {
		return ""
	}
	return b.publicBase + "/" + b.bucket + "/" + strings.TrimLeft(key, "/")
}
