package media

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Category selects a class of capture devices
type Category int

const (
	// CategoryVideoInput covers cameras, capture cards and document cameras
	CategoryVideoInput Category = iota
	// CategoryAudioInput covers microphones and line inputs
	CategoryAudioInput
)

// String returns a human-readable string representation of the category
func (c Category) String() string {
	switch c {
	case CategoryVideoInput:
		return "video"
	case CategoryAudioInput:
		return "audio"
	default:
		return "unknown"
	}
}

// ParseCategory parses "video" or "audio" (case-insensitive)
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "video-input", "":
		return CategoryVideoInput, nil
	case "audio", "audio-input":
		return CategoryAudioInput, nil
	default:
		return CategoryVideoInput, errors.Errorf("unknown device category %q", s)
	}
}

// Device identifies one physical capture device
//
// Two devices may share a display name (two identical USB cameras), the path
// is what tells them apart.
type Device struct {
	// Name is the display name reported by the platform
	Name string
	// Path is the stable device path (e.g. "/dev/video0")
	Path string
	// Category is the device class the device was enumerated under
	Category Category
}

// String returns "name (path)"
func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Path)
}

// Direction is the direction of a port on a node
type Direction int

const (
	// DirectionInput is a port that consumes a stream
	DirectionInput Direction = iota
	// DirectionOutput is a port that produces a stream
	DirectionOutput
)

// String returns a human-readable string representation of the direction
func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "unknown"
	}
}

// NodeKind classifies pipeline nodes
type NodeKind int

const (
	NodeVideoSource NodeKind = iota
	NodeAudioSource
	NodeDuplicator
	NodeFileWriter
	NodeFrameProbe
	NodeRenderer
)

// String returns a human-readable string representation of the node kind
func (k NodeKind) String() string {
	switch k {
	case NodeVideoSource:
		return "video-source"
	case NodeAudioSource:
		return "audio-source"
	case NodeDuplicator:
		return "duplicator"
	case NodeFileWriter:
		return "file-writer"
	case NodeFrameProbe:
		return "frame-probe"
	case NodeRenderer:
		return "renderer"
	default:
		return "unknown"
	}
}

// PixelFormat names a raw video layout
type PixelFormat string

const (
	// PixelBGR24 is packed 24-bit blue/green/red, the layout raw-video
	// consumers call "RGB24"
	PixelBGR24 PixelFormat = "BGR"
	PixelRGB24 PixelFormat = "RGB"
	PixelYUY2  PixelFormat = "YUY2"
	PixelI420  PixelFormat = "I420"
	PixelNV12  PixelFormat = "NV12"
	PixelMJPEG PixelFormat = "MJPG"
)

// VideoFormat describes the format crossing a connection or requested on a
// stream-configuration capability
//
// Zero fields mean "not specified" when used as a request.
type VideoFormat struct {
	// MediaType is the major type, "video" for every format handled here
	MediaType string
	// Pixel is the sub type
	Pixel PixelFormat
	// BitCount is bits per pixel (24 for BGR24)
	BitCount int
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Stride is the byte length of one row
	Stride int
	// ImageSize is the byte size of one frame
	ImageSize int
	// FrameInterval is the average time per frame
	FrameInterval time.Duration
	// TopDown is true when the first row in memory is the top row. Raw-video
	// bitmaps default to bottom-up.
	TopDown bool
}

// FrameRate returns frames per second derived from FrameInterval
func (f VideoFormat) FrameRate() float64 {
	if f.FrameInterval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(f.FrameInterval)
}

// String returns a compact description such as "BGR 640x480@30.00"
func (f VideoFormat) String() string {
	return fmt.Sprintf("%s %dx%d@%.2f", f.Pixel, f.Width, f.Height, f.FrameRate())
}

// FrameIntervalFor converts a frame rate into the average time per frame
func FrameIntervalFor(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// Profile is a parsed encoding profile applied to a file writer
type Profile struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Container   string        `yaml:"container"`
	Video       EncoderConfig `yaml:"video"`
	Audio       EncoderConfig `yaml:"audio"`
}

// EncoderConfig selects an encoder and its settings
type EncoderConfig struct {
	// Encoder is the runtime encoder name (e.g. "x264enc", "opusenc")
	Encoder string `yaml:"encoder"`
	// BitrateKbps is the target bitrate, 0 keeps the encoder default
	BitrateKbps int `yaml:"bitrate_kbps,omitempty"`
	// Properties are extra encoder properties, applied verbatim
	Properties map[string]string `yaml:"properties,omitempty"`
}
