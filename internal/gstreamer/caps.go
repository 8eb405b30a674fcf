package gstreamer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// bitsPerPixel for the packed formats a stride can be derived from
var bitsPerPixel = map[media.PixelFormat]int{
	media.PixelBGR24: 24,
	media.PixelRGB24: 24,
	media.PixelYUY2:  16,
	media.PixelI420:  12,
	media.PixelNV12:  12,
}

// videoCaps renders a format request as a caps string
//
// Zero fields are left out so negotiation stays free on them. MJPG maps to
// image/jpeg, everything else to video/x-raw.
func videoCaps(f media.VideoFormat) string {
	var b strings.Builder
	if f.Pixel == media.PixelMJPEG {
		b.WriteString("image/jpeg")
	} else {
		b.WriteString("video/x-raw")
		if f.Pixel != "" {
			fmt.Fprintf(&b, ",format=%s", f.Pixel)
		}
	}
	if f.Width > 0 && f.Height > 0 {
		fmt.Fprintf(&b, ",width=%d,height=%d", f.Width, f.Height)
	}
	if f.FrameInterval > 0 {
		num, den := framerateFraction(f.FrameInterval)
		fmt.Fprintf(&b, ",framerate=%d/%d", num, den)
	}
	return b.String()
}

// framerateFraction converts an average frame interval into a GStreamer
// fraction
//
// Semantics:
//   - Whole rates: fps/1 (30 → 30/1)
//   - Rates below one: 1/N (0.5 → 1/2)
//   - Fractional rates: millis over 1000, reduced (29.97 → 2997/100)
func framerateFraction(interval time.Duration) (num, den int) {
	fps := float64(time.Second) / float64(interval)
	if fps < 1 {
		return 1, int(math.Round(1 / fps))
	}
	if rounded := math.Round(fps); math.Abs(fps-rounded) < 0.001 {
		return int(rounded), 1
	}
	num, den = int(math.Round(fps*1000)), 1000
	g := gcd(num, den)
	return num / g, den / g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// structureReader is the part of *gst.Structure format parsing needs
type structureReader interface {
	Name() string
	GetValue(key string) (interface{}, error)
}

// formatFromStructure reads width, height, pixel format and frame rate from
// the first structure of a caps
func formatFromStructure(s structureReader) media.VideoFormat {
	f := media.VideoFormat{MediaType: "video"}
	if s.Name() == "image/jpeg" {
		f.Pixel = media.PixelMJPEG
	} else if v, err := s.GetValue("format"); err == nil {
		if str, ok := v.(string); ok {
			f.Pixel = media.PixelFormat(str)
		}
	}
	f.BitCount = bitsPerPixel[f.Pixel]
	f.Width = intField(s, "width")
	f.Height = intField(s, "height")
	return f
}

func intField(s structureReader, key string) int {
	v, err := s.GetValue(key)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case uint32:
		return int(n)
	default:
		return 0
	}
}

// withLayout fills stride and image size for packed formats. GStreamer
// rounds rows up to four bytes and stores them top-down.
func withLayout(f media.VideoFormat) media.VideoFormat {
	if f.BitCount == 0 {
		f.BitCount = bitsPerPixel[f.Pixel]
	}
	if f.Pixel == media.PixelBGR24 || f.Pixel == media.PixelRGB24 {
		f.Stride = (f.Width*f.BitCount/8 + 3) &^ 3
		f.ImageSize = f.Stride * f.Height
	}
	f.TopDown = true
	return f
}
