package certificate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/learnstations/stationbot/core/logger"
)

// ArchiveOptions points at an S3 compatible bucket.
type ArchiveOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Archive uploads rendered certificates to object storage.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive connects to the object store and creates the bucket when missing.
func NewArchive(ctx context.Context, opts ArchiveOptions) (*Archive, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("certificate: archive endpoint and bucket required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("certificate: object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("certificate: check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("certificate: create bucket %s: %w", opts.Bucket, err)
		}
		logger.Cert.Info("bucket created",
			slog.String("event", "cert.archive"),
			slog.String("bucket", opts.Bucket),
		)
	}
	return &Archive{client: client, bucket: opts.Bucket}, nil
}

// Store uploads png under key, replacing any previous object.
func (a *Archive) Store(ctx context.Context, key string, png []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(png), int64(len(png)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return fmt.Errorf("certificate: upload %s: %w", key, err)
	}
	return nil
}
