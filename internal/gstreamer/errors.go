package gstreamer

import (
	"fmt"
	"strings"
)

// ErrorCategory represents the classification of GStreamer bus errors for
// telemetry
type ErrorCategory int

const (
	// ErrCategoryDevice indicates capture device failures (unplugged, busy,
	// permission denied)
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryCodec indicates negotiation and encoder/decoder failures
	ErrCategoryCodec
	// ErrCategoryResource indicates output failures (disk full, unwritable file)
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown

	numCategories
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

var (
	resourceKeywords = []string{
		"no space left",
		"could not write",
		"could not open file",
		"write error",
		"filesink",
		"disk",
	}
	codecKeywords = []string{
		"not negotiated",
		"not-negotiated",
		"negotiation",
		"caps",
		"codec",
		"decode",
		"encode",
		"x264",
		"mux",
		"missing plugin",
		"no element",
	}
	deviceKeywords = []string{
		"v4l2",
		"device",
		"busy",
		"no such file",
		"permission denied",
		"could not read from resource",
		"disconnected",
		"alsa",
		"pulse",
	}
)

// ClassifyError categorizes a bus error from its message and debug string
//
// Resource keywords win over codec keywords, which win over device keywords:
// a filesink failure mentions neither caps nor a device, a negotiation
// failure often names the source element.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// RuntimeError is an asynchronous pipeline failure reported on the bus
type RuntimeError struct {
	Category ErrorCategory
	Source   string
	Message  string
	Debug    string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("pipeline error [%s] from %s: %s", e.Category, e.Source, e.Message)
}
