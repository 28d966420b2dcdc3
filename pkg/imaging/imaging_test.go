package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/glorpus-work/fanfetch/pkg/fetch"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 80), B: 200, A: 255})
		}
	}
	return img
}

func encode(t *testing.T, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, testImage())
	case "jpeg":
		err = jpeg.Encode(&buf, testImage(), nil)
	case "gif":
		err = gif.Encode(&buf, testImage(), nil)
	case "bmp":
		err = bmp.Encode(&buf, testImage())
	case "tiff":
		err = tiff.Encode(&buf, testImage(), nil)
	default:
		t.Fatalf("unknown format %s", format)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func response(contentType string) *fetch.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &fetch.Response{StatusCode: http.StatusOK, Header: h, ContentLength: -1}
}

func TestDecoder_Formats(t *testing.T) {
	for _, format := range []string{"png", "jpeg", "gif", "bmp", "tiff"} {
		t.Run(format, func(t *testing.T) {
			data := encode(t, format)
			d := NewDecoder()

			require.NoError(t, d.Validate(data, response("")))
			assert.True(t, d.Qualifies(data, response("")) || format == "tiff")

			img, err := d.Decompress(context.Background(), data, response(""))
			require.NoError(t, err)
			nrgba, ok := img.(*image.NRGBA)
			require.True(t, ok)
			assert.Equal(t, 4, nrgba.Bounds().Dx())
			assert.Equal(t, 3, nrgba.Bounds().Dy())
			assert.Equal(t, image.Point{}, nrgba.Bounds().Min)
		})
	}
}

func TestDecoder_Validate(t *testing.T) {
	// GIF header with a 0x0 logical screen and no color table.
	zero := []byte("GIF89a\x00\x00\x00\x00\x00\x00\x00")

	tests := []struct {
		name    string
		decoder *Decoder
		data    []byte
		resp    *fetch.Response
		wantErr error
	}{
		{name: "valid png", decoder: NewDecoder(), data: encode(t, "png")},
		{name: "text is rejected", decoder: NewDecoder(), data: []byte("hello world"), wantErr: ErrUnknownFormat},
		{name: "zero pixels", decoder: NewDecoder(), data: zero, wantErr: ErrZeroPixels},
		{
			name:    "non image allowed",
			decoder: &Decoder{AcceptNonImages: true},
			data:    []byte(`{"ok":true}`),
			resp:    response("application/json"),
		},
		{
			name:    "broken image still rejected when non images allowed",
			decoder: &Decoder{AcceptNonImages: true},
			data:    []byte("not really a png"),
			resp:    response("image/png"),
			wantErr: ErrUnknownFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decoder.Validate(tt.data, tt.resp)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecoder_Qualifies(t *testing.T) {
	d := NewDecoder()
	assert.True(t, d.Qualifies([]byte("whatever"), response("image/webp")))
	assert.True(t, d.Qualifies(encode(t, "png"), response("application/octet-stream")))
	assert.False(t, d.Qualifies([]byte("plain text"), response("text/plain")))
	assert.False(t, d.Qualifies([]byte("plain text"), nil))
}

func TestDecoder_DecompressCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDecoder().Decompress(ctx, encode(t, "png"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecoder_WithOperation(t *testing.T) {
	data := encode(t, "png")
	op, err := fetch.New(fetch.Request{URL: mustURL(t)}, 0, fetch.Config{
		Transport:        staticTransport{body: data, contentType: "image/png"},
		Decoder:          NewDecoder(),
		DecompressImages: true,
	})
	require.NoError(t, err)

	var got *fetch.Result
	op.AddHandlers(nil, func(res *fetch.Result, err error) {
		require.NoError(t, err)
		got = res
	})
	op.Start(context.Background())

	require.NotNil(t, got)
	require.NotNil(t, got.Image)
	assert.Equal(t, 4, got.Image.Bounds().Dx())
	assert.Equal(t, data, got.Data)
}
