package domain

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProcessingRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  ProcessingRequest
	}{
		{
			name:  "defaults",
			query: "url=https://example.com/a.jpg&w=100&h=50",
			want:  ProcessingRequest{SourceURL: "https://example.com/a.jpg", Width: 100, Height: 50, Format: "jpeg", Quality: 80},
		},
		{
			name:  "explicit format and quality",
			query: "url=https://example.com/a.jpg&w=10&h=20&format=WEBP&q=50",
			want:  ProcessingRequest{SourceURL: "https://example.com/a.jpg", Width: 10, Height: 20, Format: "webp", Quality: 50},
		},
		{
			name:  "zero quality falls back to default",
			query: "url=x&w=1&h=1&q=0",
			want:  ProcessingRequest{SourceURL: "x", Width: 1, Height: 1, Format: "jpeg", Quality: 80},
		},
		{
			name:  "non numeric dimensions parse as zero",
			query: "url=x&w=abc&h=",
			want:  ProcessingRequest{SourceURL: "x", Format: "jpeg", Quality: 80},
		},
		{
			name:  "unknown format is kept",
			query: "url=x&w=1&h=1&format=bmp",
			want:  ProcessingRequest{SourceURL: "x", Width: 1, Height: 1, Format: "bmp", Quality: 80},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values, err := url.ParseQuery(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ParseProcessingRequest(values.Get))
		})
	}
}

func TestProcessingRequestValidate(t *testing.T) {
	valid := ProcessingRequest{SourceURL: "https://example.com/a.png", Width: 100, Height: 100, Format: "png", Quality: 80}

	tests := []struct {
		name    string
		mutate  func(r *ProcessingRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(*ProcessingRequest) {}},
		{name: "missing url", mutate: func(r *ProcessingRequest) { r.SourceURL = "" }, wantErr: "url is required"},
		{name: "zero width", mutate: func(r *ProcessingRequest) { r.Width = 0 }, wantErr: "w must be a positive integer"},
		{name: "negative height", mutate: func(r *ProcessingRequest) { r.Height = -5 }, wantErr: "h must be a positive integer"},
		{name: "quality too high", mutate: func(r *ProcessingRequest) { r.Quality = 101 }, wantErr: "q must be between 1 and 100"},
		{name: "quality negative", mutate: func(r *ProcessingRequest) { r.Quality = -1 }, wantErr: "q must be between 1 and 100"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			err := req.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidParameters)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestProcessingRequestDimensions(t *testing.T) {
	assert.Equal(t, "640x480", ProcessingRequest{Width: 640, Height: 480}.Dimensions())
}
