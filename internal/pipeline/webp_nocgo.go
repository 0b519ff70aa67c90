//go:build !cgo

package pipeline

import (
	"errors"
	"image"
	"io"
)

var errWebPUnavailable = errors.New("webp encoding requires a cgo build")

func encodeWebP(io.Writer, image.Image, int) error {
	return errWebPUnavailable
}
