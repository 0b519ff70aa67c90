//go:build nogovips || !cgo

package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestStdPNGLevel(t *testing.T) {
	tests := map[int]png.CompressionLevel{
		0: png.NoCompression,
		1: png.BestSpeed,
		3: png.BestSpeed,
		4: png.DefaultCompression,
		6: png.DefaultCompression,
		7: png.BestCompression,
		9: png.BestCompression,
	}
	for level, want := range tests {
		assert.Equal(t, want, stdPNGLevel(level), "level %d", level)
	}
}

func TestStdCodecName(t *testing.T) {
	assert.Equal(t, "go", newCodec().name())
}

func TestDispatcherAcceptsOtherSourceFormats(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))))

	out, err := d.Transform(context.Background(), buf.Bytes(), 5, 5, "png", 80)
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.ContentType)
}

func TestDispatcherAVIFOutput(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{})
	require.NoError(t, err)

	out, err := d.Transform(context.Background(), buildTestPNG(t, 32, 32), 16, 16, "avif", 60)
	require.NoError(t, err)
	assert.Equal(t, "image/avif", out.ContentType)
	assert.NotEmpty(t, out.Data)
}
