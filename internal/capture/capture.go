// Package capture acquires still images for classification.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// MaxImageBytes bounds how much of an upload is read.
const MaxImageBytes = 32 << 20

// MaxImagePixels bounds the decoded size. A small compressed file can
// declare dimensions that would need gigabytes once decoded, so the header
// is checked before any pixel data is allocated.
const MaxImagePixels = 40_000_000

// Source produces one image per call.
type Source interface {
	Acquire(ctx context.Context) (image.Image, error)
}

// Decode reads an encoded image (PNG, JPEG, GIF, BMP, TIFF), applying the EXIF
// orientation tag. Any failure is reported as domain.ErrImageUnavailable.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("capture: read: %w: %v", domain.ErrImageUnavailable, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("capture: decode header: %w: %v", domain.ErrImageUnavailable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("capture: decode: %w: empty image", domain.ErrImageUnavailable)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("capture: decode: %w: %dx%d exceeds %d pixels",
			domain.ErrImageUnavailable, cfg.Width, cfg.Height, MaxImagePixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("capture: decode: %w: %v", domain.ErrImageUnavailable, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("capture: decode: %w: empty image", domain.ErrImageUnavailable)
	}
	return img, nil
}

// EncodePNG encodes img losslessly for archiving.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("capture: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// FileSource reads the image at Path on every Acquire, so an external
// camera process may keep overwriting it.
type FileSource struct {
	Path string
}

// Acquire opens and decodes the file.
func (s FileSource) Acquire(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w: %v", s.Path, domain.ErrImageUnavailable, err)
	}
	defer f.Close()
	return Decode(f)
}

// ReaderSource decodes a single image from an upload body.
type ReaderSource struct {
	R io.Reader
}

// Acquire decodes the body.
func (s ReaderSource) Acquire(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.R == nil {
		return nil, fmt.Errorf("capture: %w: no image body", domain.ErrImageUnavailable)
	}
	return Decode(s.R)
}
