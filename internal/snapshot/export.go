package snapshot

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
)

// Export formats
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatBMP  = "bmp"
)

// fileNameLayout is the default picture name: the capture time of day
const fileNameLayout = "15-04-05"

// ParseFormat normalizes an export format name ("jpg" is accepted for jpeg)
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatJPEG, "jpg":
		return FormatJPEG, nil
	case FormatBMP:
		return FormatBMP, nil
	default:
		return "", errors.Errorf("unknown picture format %q (png, jpeg, bmp)", s)
	}
}

// Encode writes img in format. quality applies to jpeg only, 0 keeps the
// encoder default.
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	format, err := ParseFormat(format)
	if err != nil {
		return err
	}
	switch format {
	case FormatJPEG:
		opts := &jpeg.Options{Quality: jpeg.DefaultQuality}
		if quality > 0 {
			opts.Quality = quality
		}
		err = jpeg.Encode(w, img, opts)
	case FormatBMP:
		err = bmp.Encode(w, img)
	default:
		err = png.Encode(w, img)
	}
	return errors.Wrapf(err, "encode %s", format)
}

// DefaultFileName returns "<HH-MM-SS>.<ext>" for a picture taken at t
func DefaultFileName(t time.Time, format string) string {
	ext := format
	if format == FormatJPEG {
		ext = "jpg"
	}
	return t.Format(fileNameLayout) + "." + ext
}

// Save encodes pic into dir under its default file name and returns the
// path. The file appears atomically.
func Save(dir string, pic PictureReady, format string, quality int) (string, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return "", err
	}
	if pic.Image == nil {
		return "", errors.New("picture has no image")
	}

	var buf bytes.Buffer
	if err := Encode(&buf, pic.Image.RGBA(), format, quality); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create picture directory")
	}
	path := filepath.Join(dir, DefaultFileName(pic.Created, format))
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}
