//go:build !nogovips && cgo

package pipeline

import (
	"fmt"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

// mozjpeg quant table tuned for photographic content.
const jpegQuantTable = 3

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

type govipsCodec struct{}

func newCodec() imageCodec {
	_ = Startup()
	return govipsCodec{}
}

func (govipsCodec) name() string { return "libvips" }

func (govipsCodec) process(input []byte, width, height int, opts encodeOptions) ([]byte, error) {
	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	if err := img.Thumbnail(width, height, vips.InterestingCentre); err != nil {
		return nil, fmt.Errorf("cover resize: %w", err)
	}

	return exportGovipsImage(img, opts)
}

func exportGovipsImage(img *vips.ImageRef, opts encodeOptions) ([]byte, error) {
	switch opts.format.name {
	case "png":
		params := vips.NewPngExportParams()
		params.Compression = opts.pngLevel
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case "webp":
		params := vips.NewWebpExportParams()
		params.Quality = opts.quality
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	case "avif":
		params := vips.NewAvifExportParams()
		params.Quality = opts.quality
		data, _, err := img.ExportAvif(params)
		if err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
		return data, nil
	default:
		params := vips.NewJpegExportParams()
		params.Quality = opts.quality
		params.Interlace = true
		params.TrellisQuant = true
		params.OvershootDeringing = true
		params.OptimizeScans = true
		params.QuantTable = jpegQuantTable
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	}
}
