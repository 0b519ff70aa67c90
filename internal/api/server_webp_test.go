//go:build cgo

package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResizeJPEGToWebP(t *testing.T) {
	h := newHarness(t)

	rec := h.get(t, h.resizeURL("/photo.jpg", "&w=100&h=100&format=webp&q=50"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))
	assert.NotZero(t, rec.Body.Len())
}
