package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/pixelproxy/internal/storage"
	"github.com/gabriel-vasile/mimetype"
)

const ObjectURLScheme = "s3"

type objectReader interface {
	Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ObjectStoreFetcher serves s3://bucket/key sources with the same rules as
// HTTPFetcher. The object's stored content type is checked before any
// bytes are read.
type ObjectStoreFetcher struct {
	storage objectReader
	timeout time.Duration
}

func NewObjectStoreFetcher(client objectReader, timeout time.Duration) *ObjectStoreFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &ObjectStoreFetcher{storage: client, timeout: timeout}
}

func (f *ObjectStoreFetcher) Fetch(ctx context.Context, rawURL string) (FetchedImage, error) {
	bucket, key, err := parseObjectURL(rawURL)
	if err != nil {
		return FetchedImage{}, fetchFailed(0, "%v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	info, err := f.storage.Stat(ctx, bucket, key)
	if err != nil {
		return FetchedImage{}, f.classify(ctx, err)
	}
	if !isImageContentType(info.ContentType) {
		return FetchedImage{}, notAnImage(info.ContentType)
	}

	body, err := f.storage.Open(ctx, bucket, key)
	if err != nil {
		return FetchedImage{}, f.classify(ctx, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return FetchedImage{}, f.classify(ctx, err)
	}
	if len(data) == 0 {
		return FetchedImage{}, fetchFailed(0, "empty object %s/%s", bucket, key)
	}

	return FetchedImage{
		Data:         data,
		ContentType:  info.ContentType,
		DetectedType: mimetype.Detect(data).String(),
		Status:       http.StatusOK,
	}, nil
}

func (f *ObjectStoreFetcher) classify(ctx context.Context, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fetchFailed(http.StatusNotFound, "%v", err)
	}
	if timedOut(ctx, err) {
		return fetchTimeout(fmt.Sprintf("object not received within %s", f.timeout))
	}
	return fetchFailed(0, "%v", err)
}

func parseObjectURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", fmt.Errorf("parse object url: %w", err)
	}
	if u.Scheme != ObjectURLScheme {
		return "", "", fmt.Errorf("unsupported object url scheme %q", u.Scheme)
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("object url %q must be s3://bucket/key", rawURL)
	}
	return bucket, key, nil
}
