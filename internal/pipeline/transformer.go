package pipeline

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

// TransformedImage is an encoded output ready to be written to a client.
type TransformedImage struct {
	Data        []byte
	ContentType string
	Format      string
	Width       int
	Height      int
}

type Transformer interface {
	Transform(ctx context.Context, input []byte, width, height int, format string, quality int) (TransformedImage, error)
}

type PNGCompressionPolicy string

const (
	// PNGCompressionQuality maps q linearly onto zlib levels: higher q, more compression.
	PNGCompressionQuality PNGCompressionPolicy = "quality"
	// PNGCompressionInverse maps high q onto low compression effort.
	PNGCompressionInverse PNGCompressionPolicy = "inverse"
)

func ParsePNGCompressionPolicy(raw string) (PNGCompressionPolicy, error) {
	switch p := PNGCompressionPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "", PNGCompressionQuality:
		return PNGCompressionQuality, nil
	case PNGCompressionInverse:
		return p, nil
	default:
		return "", fmt.Errorf("unknown png compression policy %q", raw)
	}
}

// Level returns the 0..9 compression level for quality q.
func (p PNGCompressionPolicy) Level(quality int) int {
	q := float64(quality)
	if p == PNGCompressionInverse {
		q = 100 - q
	}
	return min(9, max(0, int(math.Round(q/10))))
}

type outputFormat struct {
	name        string
	contentType string
}

var outputFormats = map[string]outputFormat{
	domain.FormatJPEG: {name: domain.FormatJPEG, contentType: "image/jpeg"},
	domain.FormatJPG:  {name: domain.FormatJPEG, contentType: "image/jpeg"},
	domain.FormatWebP: {name: domain.FormatWebP, contentType: "image/webp"},
	domain.FormatAVIF: {name: domain.FormatAVIF, contentType: "image/avif"},
	domain.FormatPNG:  {name: domain.FormatPNG, contentType: "image/png"},
}

// resolveFormat is the single place unknown formats fall back to jpeg.
func resolveFormat(format string) outputFormat {
	if f, ok := outputFormats[strings.ToLower(strings.TrimSpace(format))]; ok {
		return f
	}
	return outputFormats[domain.DefaultFormat]
}

// FormatName returns the canonical output format name produced for format.
func FormatName(format string) string {
	return resolveFormat(format).name
}

// ContentTypeFor returns the canonical content type produced for format.
func ContentTypeFor(format string) string {
	return resolveFormat(format).contentType
}

type encodeOptions struct {
	format   outputFormat
	quality  int
	pngLevel int
}

// imageCodec decodes input, cover-fits it to exactly width x height and
// encodes it with opts.
type imageCodec interface {
	name() string
	process(input []byte, width, height int, opts encodeOptions) ([]byte, error)
}

type DispatcherConfig struct {
	PNGCompression string
	MaxConcurrent  int
}

// Dispatcher resolves encode parameters per output format and runs the
// codec with bounded concurrency.
type Dispatcher struct {
	codec     imageCodec
	pngPolicy PNGCompressionPolicy
	sem       chan struct{}
	active    atomic.Int64
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	policy, err := ParsePNGCompressionPolicy(cfg.PNGCompression)
	if err != nil {
		return nil, err
	}
	return newDispatcher(newCodec(), policy, cfg.MaxConcurrent), nil
}

func newDispatcher(codec imageCodec, policy PNGCompressionPolicy, maxConcurrent int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.NumCPU()
	}
	return &Dispatcher{
		codec:     codec,
		pngPolicy: policy,
		sem:       make(chan struct{}, maxConcurrent),
	}
}

// Codec names the active image backend.
func (d *Dispatcher) Codec() string {
	return d.codec.name()
}

// Active reports transforms currently holding a slot.
func (d *Dispatcher) Active() int64 {
	return d.active.Load()
}

func (d *Dispatcher) options(format string, quality int) encodeOptions {
	if quality < 1 || quality > 100 {
		quality = domain.DefaultQuality
	}
	return encodeOptions{
		format:   resolveFormat(format),
		quality:  quality,
		pngLevel: d.pngPolicy.Level(quality),
	}
}

func (d *Dispatcher) Transform(ctx context.Context, input []byte, width, height int, format string, quality int) (out TransformedImage, err error) {
	opts := d.options(format, quality)
	if width <= 0 || height <= 0 {
		return TransformedImage{}, &TransformError{Format: opts.format.name, Err: fmt.Errorf("invalid target size %dx%d", width, height)}
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return TransformedImage{}, &TransformError{Format: opts.format.name, Err: ctx.Err()}
	}
	d.active.Add(1)
	defer func() {
		d.active.Add(-1)
		<-d.sem
	}()

	defer func() {
		if r := recover(); r != nil {
			out = TransformedImage{}
			err = &TransformError{Format: opts.format.name, Err: fmt.Errorf("codec panic: %v", r)}
		}
	}()

	data, err := d.codec.process(input, width, height, opts)
	if err != nil {
		return TransformedImage{}, &TransformError{Format: opts.format.name, Err: err}
	}

	return TransformedImage{
		Data:        data,
		ContentType: opts.format.contentType,
		Format:      opts.format.name,
		Width:       width,
		Height:      height,
	}, nil
}
