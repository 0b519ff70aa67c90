//go:build nogovips || !cgo

package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const avifSpeed = 8

type stdCodec struct{}

func (stdCodec) name() string { return "go" }

func (stdCodec) process(input []byte, width, height int, opts encodeOptions) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, errors.New("source image has invalid dimensions")
	}

	fitted := imaging.Fill(src, width, height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	switch opts.format.name {
	case "png":
		encoder := png.Encoder{CompressionLevel: stdPNGLevel(opts.pngLevel)}
		if err := encoder.Encode(&buf, fitted); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "webp":
		if err := encodeWebP(&buf, fitted, opts.quality); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case "avif":
		if err := avif.Encode(&buf, fitted, avif.Options{
			Quality:      opts.quality,
			QualityAlpha: opts.quality,
			Speed:        avifSpeed,
		}); err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, fitted, &jpeg.Options{Quality: opts.quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// stdPNGLevel folds the 0..9 zlib scale onto the four levels image/png exposes.
func stdPNGLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func newCodec() imageCodec {
	return stdCodec{}
}

func Startup() error {
	return nil
}

func Shutdown() {}
