/*
Package s3 archives files into an S3 compatible bucket.
*/
package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
)

var ErrConnectionFailed = errors.New("s3: connection failed")

type Client struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a new S3 client and makes sure S3_BUCKET exists.
func New(ctx context.Context, log logger.Logger, cfg *config.Config) (*Client, error) {
	cfg.SetDefault("S3_ENDPOINT", "localhost:9000")
	cfg.SetDefault("S3_ACCESS_KEY_ID", "minio_access_key")
	cfg.SetDefault("S3_SECRET_ACCESS_KEY", "minio_secret_key")
	cfg.SetDefault("S3_USE_SSL", false)
	cfg.SetDefault("S3_REGION", "")
	cfg.SetDefault("S3_BUCKET", "innotter-stats")
	cfg.SetDefault("S3_PREFIX", "flight") // object key prefix

	client, err := minio.New(cfg.GetString("S3_ENDPOINT"), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetString("S3_ACCESS_KEY_ID"), cfg.GetString("S3_SECRET_ACCESS_KEY"), ""),
		Secure: cfg.GetBool("S3_USE_SSL"),
		Region: cfg.GetString("S3_REGION"),
	})
	if err != nil {
		return nil, err
	}

	bucket := cfg.GetString("S3_BUCKET")

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.GetString("S3_REGION")})
		if err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
	}

	log.Info("S3 client created",
		slog.String("endpoint", cfg.GetString("S3_ENDPOINT")),
		slog.String("bucket", bucket),
	)

	return &Client{
		client: client,
		bucket: bucket,
		prefix: cfg.GetString("S3_PREFIX"),
	}, nil
}

// Archive uploads the local file and returns its s3:// location.
func (c *Client) Archive(ctx context.Context, file string) (string, error) {
	key := path.Join(c.prefix, filepath.Base(file))

	_, err := c.client.FPutObject(ctx, c.bucket, key, file, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("upload %q: %w", key, err)
	}

	return "s3://" + c.bucket + "/" + key, nil
}

// Stat reports the size of an archived object.
func (c *Client) Stat(ctx context.Context, key string) (int64, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, err
	}

	return info.Size, nil
}
