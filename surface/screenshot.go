package surface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/image/draw"
)

// ScreenshotOptions controls capture format and post-processing.
type ScreenshotOptions struct {
	FullPage bool
	Format   string // "png" (default) or "jpeg"
	Quality  int    // jpeg only
	MaxWidth int    // >0 downscales wider captures, preserving aspect
}

// Screenshot captures the surface. Full-page captures scroll the whole
// document; viewport captures take the visible area only.
func (s *Surface) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	format := proto.PageCaptureScreenshotFormatPng
	req := &proto.PageCaptureScreenshot{Format: format}
	if opts.Format == "jpeg" || opts.Format == "jpg" {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		q := opts.Quality
		if q <= 0 || q > 100 {
			q = 80
		}
		req.Quality = &q
	}

	data, err := s.page.Context(ctx).Screenshot(opts.FullPage, req)
	if err != nil {
		return nil, fmt.Errorf("surface: screenshot: %w", err)
	}

	if opts.MaxWidth > 0 {
		scaled, err := downscalePNG(data, opts.MaxWidth)
		if err != nil {
			// Downscale failure is not worth losing the capture over.
			s.log.Warn("surface: screenshot downscale failed", "error", err)
			return data, nil
		}
		return scaled, nil
	}
	return data, nil
}

// downscalePNG resizes a PNG to at most maxWidth pixels wide using
// Catmull-Rom resampling. Narrower images pass through unchanged.
func downscalePNG(data []byte, maxWidth int) ([]byte, error) {
	img, kind, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	b := img.Bounds()
	if b.Dx() <= maxWidth {
		return data, nil
	}

	h := b.Dy() * maxWidth / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out.Bytes(), nil
}
