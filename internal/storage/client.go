package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrObjectNotFound = errors.New("object not found")

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	UseSSL   bool
}

type ObjectInfo struct {
	ContentType string
	Size        int64
}

// Client reads source images from S3-compatible object storage.
type Client struct {
	minio *minio.Client
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Client{minio: mc}, nil
}

func (c *Client) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := c.minio.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, wrapObjectError("stat", bucket, key, err)
	}
	return ObjectInfo{ContentType: info.ContentType, Size: info.Size}, nil
}

func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.minio.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapObjectError("get", bucket, key, err)
	}
	return obj, nil
}

func wrapObjectError(op, bucket, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s object %s/%s: %w", op, bucket, key, ErrObjectNotFound)
	}
	return fmt.Errorf("%s object %s/%s: %w", op, bucket, key, err)
}
