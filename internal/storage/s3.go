// Package storage serves game art assets from S3: public immutable sprites
// and private admin-only previews.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// Public assets are immutable once published, so clients may cache them for
// a year.
const publicCacheControl = "public, max-age=31536000, immutable"

const (
	publicPrefix  = "assets/"
	previewPrefix = "previews/"
)

// Asset is one fetched object.
type Asset struct {
	Key          string
	ContentType  string
	CacheControl string
	Body         []byte
}

// Store wraps the S3 client for the assets bucket.
type Store struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// New builds a store from the ambient AWS credential chain. An empty bucket
// disables the store; callers get upstream_unavailable.
func New(ctx context.Context, bucket, region string, log zerolog.Logger) (*Store, error) {
	st := &Store{
		bucket: bucket,
		log:    log.With().Str("component", "asset_store").Logger(),
	}
	if bucket == "" {
		st.log.Warn().Msg("Asset bucket not configured, asset endpoints disabled")
		return st, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	st.client = s3.NewFromConfig(cfg)
	return st, nil
}

// Enabled reports whether a bucket is configured.
func (s *Store) Enabled() bool {
	return s.client != nil
}

// GetPublic fetches one public art asset. Keys are confined to the public
// prefix; traversal attempts are rejected before touching S3.
func (s *Store) GetPublic(ctx context.Context, key string) (*Asset, error) {
	return s.get(ctx, publicPrefix, key, publicCacheControl)
}

// GetPreview fetches one private admin preview. No shared caching.
func (s *Store) GetPreview(ctx context.Context, key string) (*Asset, error) {
	return s.get(ctx, previewPrefix, key, "private, no-store")
}

func (s *Store) get(ctx context.Context, prefix, key, cacheControl string) (*Asset, error) {
	if s.client == nil {
		return nil, domain.E(domain.KindUpstreamUnavailable, "asset storage not configured")
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	fullKey := prefix + key

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &fullKey,
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound") {
			return nil, domain.E(domain.KindNotFound, "asset not found")
		}
		s.log.Error().Err(err).Str("key", fullKey).Msg("S3 fetch failed")
		return nil, domain.E(domain.KindUpstreamUnavailable, "asset storage unavailable")
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset body: %w", err)
	}

	contentType := "application/octet-stream"
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}
	return &Asset{
		Key:          key,
		ContentType:  contentType,
		CacheControl: cacheControl,
		Body:         body,
	}, nil
}

// PutPreview uploads an admin preview image.
func (s *Store) PutPreview(ctx context.Context, key, contentType string, body []byte) error {
	if s.client == nil {
		return domain.E(domain.KindUpstreamUnavailable, "asset storage not configured")
	}
	if err := validateKey(key); err != nil {
		return err
	}
	fullKey := previewPrefix + key

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &fullKey,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		s.log.Error().Err(err).Str("key", fullKey).Msg("S3 upload failed")
		return domain.E(domain.KindUpstreamUnavailable, "asset storage unavailable")
	}
	return nil
}

// ListPublic enumerates public asset keys under an optional subpath, capped.
func (s *Store) ListPublic(ctx context.Context, subpath string, limit int32) ([]string, error) {
	if s.client == nil {
		return nil, domain.E(domain.KindUpstreamUnavailable, "asset storage not configured")
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	prefix := publicPrefix
	if subpath != "" {
		if err := validateKey(subpath); err != nil {
			return nil, err
		}
		prefix += strings.TrimSuffix(subpath, "/") + "/"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &s.bucket,
		Prefix:  &prefix,
		MaxKeys: &limit,
	})
	if err != nil {
		s.log.Error().Err(err).Str("prefix", prefix).Msg("S3 list failed")
		return nil, domain.E(domain.KindUpstreamUnavailable, "asset storage unavailable")
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key != nil {
			keys = append(keys, strings.TrimPrefix(*obj.Key, publicPrefix))
		}
	}
	return keys, nil
}

func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return domain.E(domain.KindInvalidRequest, "invalid asset key")
	}
	return nil
}
