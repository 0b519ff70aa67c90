package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout             = errors.New("upstream fetch timed out")
	ErrUpstreamFetchFailed = errors.New("upstream fetch failed")
	ErrNotAnImage          = errors.New("upstream response is not an image")
	ErrTransformFailed     = errors.New("image transform failed")
)

// FetchError describes a rejected retrieval. Status is the upstream status
// code (0 when no response was received) and ContentType the observed type
// for ErrNotAnImage.
type FetchError struct {
	Kind        error
	Status      int
	ContentType string
	Detail      string
}

func (e *FetchError) Error() string {
	switch {
	case e.Status > 0:
		return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, e.Detail)
	case e.ContentType != "":
		return fmt.Sprintf("%s: content type %q", e.Kind, e.ContentType)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	default:
		return e.Kind.Error()
	}
}

func (e *FetchError) Unwrap() error {
	return e.Kind
}

func fetchFailed(status int, format string, args ...any) *FetchError {
	return &FetchError{Kind: ErrUpstreamFetchFailed, Status: status, Detail: fmt.Sprintf(format, args...)}
}

func fetchTimeout(detail string) *FetchError {
	return &FetchError{Kind: ErrTimeout, Detail: detail}
}

func notAnImage(contentType string) *FetchError {
	return &FetchError{Kind: ErrNotAnImage, ContentType: contentType}
}

// TransformError carries the codec diagnostic for ErrTransformFailed.
type TransformError struct {
	Format string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransformFailed, e.Format, e.Err)
}

func (e *TransformError) Unwrap() []error {
	return []error{ErrTransformFailed, e.Err}
}
