// Package imaging validates fetched images and decodes them into bitmaps.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"mime"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP

	"github.com/glorpus-work/fanfetch/pkg/fetch"
)

var (
	// ErrZeroPixels is returned for images without any pixels.
	ErrZeroPixels = fmt.Errorf("image has zero pixels")
	// ErrUnknownFormat is returned when no registered decoder recognises the data.
	ErrUnknownFormat = fmt.Errorf("unknown image format")
)

// Decoder implements fetch.Decoder for the registered image formats.
type Decoder struct {
	// AcceptNonImages lets payloads that are not images pass Validate; they are
	// then simply not post-processed.
	AcceptNonImages bool
}

var _ fetch.Decoder = (*Decoder)(nil)

// NewDecoder creates a new Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Validate checks that data has a known image header with a non-empty size.
func (d *Decoder) Validate(data []byte, resp *fetch.Response) error {
	if d.AcceptNonImages && !isImage(data, resp) {
		return nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if err == image.ErrFormat {
			return ErrUnknownFormat
		}
		return fmt.Errorf("invalid %s image: %w", format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ErrZeroPixels
	}
	return nil
}

// Qualifies reports whether data is an image by Content-Type or content sniffing.
func (d *Decoder) Qualifies(data []byte, resp *fetch.Response) bool {
	return isImage(data, resp)
}

// Decompress decodes data fully and redraws it into an NRGBA bitmap.
func (d *Decoder) Decompress(ctx context.Context, data []byte, _ *fetch.Response) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, ErrZeroPixels
	}
	if nrgba, ok := src.(*image.NRGBA); ok {
		return nrgba, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst, nil
}

func isImage(data []byte, resp *fetch.Response) bool {
	if resp != nil && resp.Header != nil {
		if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
			if strings.HasPrefix(mt, "image/") {
				return true
			}
		}
	}
	return strings.HasPrefix(http.DetectContentType(data), "image/")
}
