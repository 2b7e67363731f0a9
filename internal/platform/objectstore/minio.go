// Package objectstore archives finished explorations in an S3-compatible
// bucket through minio-go.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive writes objects into a single bucket.
type Archive struct {
	client *minio.Client
	bucket string
}

// Open builds the client and creates the bucket when it is missing.
func Open(ctx context.Context, cfg Config) (*Archive, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

func NewArchive(client *minio.Client, bucket string) (*Archive, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	return &Archive{client: client, bucket: bucket}, nil
}

func (a *Archive) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if a == nil || a.client == nil {
		return errors.New("archive not initialized")
	}
	_, err := a.client.PutObject(ctx, a.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", a.bucket, key, err)
	}
	return nil
}

func newClient(cfg Config) (*minio.Client, error) {
	if !cfg.Enabled {
		return nil, errors.New("object store disabled")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
}

// The archive uploads a handful of files once per exploration.
func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}
