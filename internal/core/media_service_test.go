package core_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/rag-chat/internal/core"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func TestAnalyzePNG(t *testing.T) {
	f := newFixture(t)
	data := pngBytes(t)
	var got []byte
	f.model.Vision = func(format string, d []byte, query string) (string, error) {
		got = d
		return "a red dot", nil
	}

	analysis, err := f.media.Analyze(context.Background(), "image/png", data, "What is this?")
	require.NoError(t, err)
	assert.Equal(t, "a red dot", analysis)
	assert.Equal(t, []string{"png"}, f.model.ImageFormats())
	assert.Equal(t, data, got, "native formats are forwarded untouched")
}

func TestAnalyzeReencodesGIF(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(), nil))

	_, err := f.media.Analyze(context.Background(), "image/gif", buf.Bytes(), "What is this?")
	require.NoError(t, err)
	assert.Equal(t, []string{"png"}, f.model.ImageFormats())
}

func TestAnalyzeRejectsNonImage(t *testing.T) {
	f := newFixture(t)
	for _, ct := range []string{"application/pdf", "text/plain", "video/mp4", ""} {
		_, err := f.media.Analyze(context.Background(), ct, pngBytes(t), "q")
		assert.ErrorIs(t, err, core.ErrUnsupportedMediaType, ct)
	}
	assert.Empty(t, f.model.ImageFormats())
}

func TestAnalyzeEmptyQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.media.Analyze(context.Background(), "image/png", pngBytes(t), " ")
	assert.ErrorIs(t, err, core.ErrEmptyQuery)
}

func TestAnalyzeUndecodable(t *testing.T) {
	f := newFixture(t)
	_, err := f.media.Analyze(context.Background(), "image/jpeg", []byte("garbage"), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode image")
	assert.Empty(t, f.model.ImageFormats())
}

func TestAnalyzeModelError(t *testing.T) {
	f := newFixture(t)
	f.model.Vision = func(string, []byte, string) (string, error) {
		return "", errors.New("safety block")
	}
	_, err := f.media.Analyze(context.Background(), "image/png", pngBytes(t), "q")
	assert.ErrorContains(t, err, "safety block")
}
