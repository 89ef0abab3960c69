package core

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// nativeImageFormats are sent to the vision model without re-encoding.
var nativeImageFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
}

type MediaService struct {
	model VisionModel
}

func NewMediaService(model VisionModel) *MediaService {
	return &MediaService{model: model}
}

// IsImage reports whether a declared content type names an image.
func IsImage(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "image")
}

// Analyze asks the vision model query about the image in data.
func (s *MediaService) Analyze(ctx context.Context, contentType string, data []byte, query string) (string, error) {
	if !IsImage(contentType) {
		return "", ErrUnsupportedMediaType
	}
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	if !nativeImageFormats[format] {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("failed to re-encode %s image: %w", format, err)
		}
		log.Ctx(ctx).Debug().Str("from", format).Msg("Re-encoded image as png")
		data, format = buf.Bytes(), "png"
	}

	analysis, err := s.model.DescribeImage(ctx, format, data, query)
	if err != nil {
		return "", err
	}
	return analysis, nil
}
