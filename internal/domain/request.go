package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	FormatJPEG = "jpeg"
	FormatJPG  = "jpg"
	FormatWebP = "webp"
	FormatAVIF = "avif"
	FormatPNG  = "png"

	DefaultFormat  = FormatJPEG
	DefaultQuality = 80
)

var ErrInvalidParameters = errors.New("invalid parameters")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ProcessingRequest is the parsed form of a /resize call.
type ProcessingRequest struct {
	SourceURL string `validate:"required"`
	Width     int    `validate:"gt=0"`
	Height    int    `validate:"gt=0"`
	// Format is kept as requested; unknown values are encoded as jpeg.
	Format  string
	Quality int `validate:"gte=1,lte=100"`
}

// ParseProcessingRequest reads url, w, h, format and q from a query lookup.
// Missing or non-numeric w/h parse as zero so validation rejects them.
func ParseProcessingRequest(get func(string) string) ProcessingRequest {
	req := ProcessingRequest{
		SourceURL: strings.TrimSpace(get("url")),
		Width:     parseInt(get("w")),
		Height:    parseInt(get("h")),
		Format:    strings.ToLower(strings.TrimSpace(get("format"))),
		Quality:   DefaultQuality,
	}
	if req.Format == "" {
		req.Format = DefaultFormat
	}
	if raw := strings.TrimSpace(get("q")); raw != "" {
		if q := parseInt(raw); q != 0 {
			req.Quality = q
		}
	}
	return req
}

func (r ProcessingRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, describeField(fe))
		}
		return fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(fields, ", "))
	}
	return nil
}

// Dimensions renders the requested size as "WxH".
func (r ProcessingRequest) Dimensions() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func describeField(fe validator.FieldError) string {
	name := map[string]string{
		"SourceURL": "url",
		"Width":     "w",
		"Height":    "h",
		"Quality":   "q",
	}[fe.Field()]
	if name == "" {
		name = strings.ToLower(fe.Field())
	}

	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "gt":
		return name + " must be a positive integer"
	case "gte", "lte":
		return name + " must be between 1 and 100"
	default:
		return name + " is invalid"
	}
}

func parseInt(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}
