package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dunamismax/pixelproxy/internal/pipeline"

// Result reports what a Process call achieved. Durations are filled in for
// the stages that ran, including a failing one.
type Result struct {
	Source            FetchedImage
	Image             TransformedImage
	FetchDuration     time.Duration
	TransformDuration time.Duration
}

// Processor runs the fetch and transform stages for one request.
type Processor struct {
	fetcher     Fetcher
	transformer Transformer
	tracer      trace.Tracer
}

func NewProcessor(fetcher Fetcher, transformer Transformer) *Processor {
	return &Processor{
		fetcher:     fetcher,
		transformer: transformer,
		tracer:      otel.Tracer(tracerName),
	}
}

func (p *Processor) Process(ctx context.Context, req domain.ProcessingRequest) (Result, error) {
	var res Result

	fetchCtx, span := p.tracer.Start(ctx, "fetch", trace.WithAttributes(attribute.String("image.url", req.SourceURL)))
	start := time.Now()
	src, err := p.fetcher.Fetch(fetchCtx, req.SourceURL)
	res.FetchDuration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		span.End()
		return res, fmt.Errorf("fetch stage: %w", err)
	}
	span.SetAttributes(
		attribute.Int("image.bytes", len(src.Data)),
		attribute.String("image.content_type", src.ContentType),
		attribute.String("image.detected_type", src.DetectedType),
	)
	span.End()
	res.Source = src

	transformCtx, span := p.tracer.Start(ctx, "transform", trace.WithAttributes(
		attribute.String("image.format", req.Format),
		attribute.String("image.dimensions", req.Dimensions()),
		attribute.Int("image.quality", req.Quality),
	))
	defer span.End()

	start = time.Now()
	out, err := p.transformer.Transform(transformCtx, src.Data, req.Width, req.Height, req.Format, req.Quality)
	res.TransformDuration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		return res, fmt.Errorf("transform stage: %w", err)
	}
	span.SetAttributes(attribute.Int("image.output_bytes", len(out.Data)))
	res.Image = out

	return res, nil
}
