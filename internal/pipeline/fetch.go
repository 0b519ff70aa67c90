package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultUserAgent    = "pixelproxy/1.0"

	acceptHeader = "image/*,*/*"
)

// FetchedImage is a fully buffered upstream body. DetectedType is sniffed
// from the bytes and is informational only.
type FetchedImage struct {
	Data         []byte
	ContentType  string
	DetectedType string
	Status       int
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchedImage, error)
}

type HTTPFetcherConfig struct {
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// HTTPFetcher retrieves http and https URLs. The timeout bounds the whole
// retrieval, body read included.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &HTTPFetcher{
		client:    cfg.Client,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (FetchedImage, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return FetchedImage{}, fetchFailed(0, "parse url: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return FetchedImage{}, fetchFailed(0, "unsupported url %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return FetchedImage{}, fetchFailed(0, "build request: %v", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchedImage{}, classifyTransportError(ctx, err, f.timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return FetchedImage{}, fetchFailed(resp.StatusCode, "%s", resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isImageContentType(contentType) {
		return FetchedImage{}, notAnImage(contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if timedOut(ctx, err) {
			return FetchedImage{}, fetchTimeout(fmt.Sprintf("body not received within %s", f.timeout))
		}
		return FetchedImage{}, fetchFailed(resp.StatusCode, "read body: %v", err)
	}
	if len(data) == 0 {
		return FetchedImage{}, fetchFailed(resp.StatusCode, "empty body")
	}

	return FetchedImage{
		Data:         data,
		ContentType:  contentType,
		DetectedType: mimetype.Detect(data).String(),
		Status:       resp.StatusCode,
	}, nil
}

// RoutingFetcher picks a fetcher by URL scheme. Objects may be nil when no
// object storage is configured.
type RoutingFetcher struct {
	HTTP    Fetcher
	Objects Fetcher
}

func (f RoutingFetcher) Fetch(ctx context.Context, rawURL string) (FetchedImage, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return FetchedImage{}, fetchFailed(0, "parse url: %v", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if f.HTTP != nil {
			return f.HTTP.Fetch(ctx, rawURL)
		}
	case ObjectURLScheme:
		if f.Objects != nil {
			return f.Objects.Fetch(ctx, rawURL)
		}
	}
	return FetchedImage{}, fetchFailed(0, "unsupported url scheme %q", u.Scheme)
}

// isImageContentType accepts image/* and application/octet-stream, ignoring
// case and parameters.
func isImageContentType(contentType string) bool {
	mediaType := mediaTypeOf(contentType)
	return strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream"
}

func mediaTypeOf(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func classifyTransportError(ctx context.Context, err error, timeout time.Duration) error {
	if timedOut(ctx, err) {
		return fetchTimeout(fmt.Sprintf("no response within %s", timeout))
	}
	return fetchFailed(0, "%v", err)
}

func timedOut(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
