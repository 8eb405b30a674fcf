package snapshot

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testPicture(t *testing.T) PictureReady {
	t.Helper()
	const w, h = 4, 2
	pix := make([]byte, w*3*h)
	// top-left pixel pure red in BGR order, top-down rows
	pix[0], pix[1], pix[2] = 0x00, 0x00, 0xFF
	return PictureReady{
		ID:      uuid.New(),
		Created: time.Date(2024, 3, 1, 14, 5, 9, 0, time.Local),
		Image:   NewBGR(pix, w, h, w*3, true),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatPNG, false},
		{"PNG", FormatPNG, false},
		{"jpg", FormatJPEG, false},
		{" jpeg ", FormatJPEG, false},
		{"bmp", FormatBMP, false},
		{"gif", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestEncode(t *testing.T) {
	pic := testPicture(t)
	decoders := map[string]func(*bytes.Reader) (image.Image, error){
		FormatPNG:  func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
		FormatJPEG: func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) },
		FormatBMP:  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
	}

	for format, decode := range decoders {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, pic.Image, format, 95))

			img, err := decode(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
			if format != FormatJPEG {
				r, g, b, _ := img.At(0, 0).RGBA()
				assert.Equal(t, color.RGBA{R: 0xFF, A: 0xFF}, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xFF})
			}
		})
	}

	assert.Error(t, Encode(&bytes.Buffer{}, pic.Image, "tiff", 0))
}

func TestDefaultFileName(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 7, 3, 0, time.Local)
	assert.Equal(t, "09-07-03.png", DefaultFileName(at, FormatPNG))
	assert.Equal(t, "09-07-03.jpg", DefaultFileName(at, FormatJPEG))
	assert.Equal(t, "09-07-03.bmp", DefaultFileName(at, FormatBMP))
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pictures")
	pic := testPicture(t)

	path, err := Save(dir, pic, "png", 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "14-05-09.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = Save(dir, PictureReady{}, "png", 0)
	assert.Error(t, err, "picture without image")
	_, err = Save(dir, pic, "gif", 0)
	assert.Error(t, err)
}
