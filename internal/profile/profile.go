// Package profile loads encoding profiles for the record-to-file writer
//
// A profile file is YAML:
//
//	name: lecture-720p
//	container: mp4mux
//	video:
//	  encoder: x264enc
//	  bitrate_kbps: 2500
//	  properties:
//	    speed-preset: veryfast
//	audio:
//	  encoder: avenc_aac
//	  bitrate_kbps: 128
//
// Loading never fails hard: a missing, unreadable or invalid file yields "no
// profile" and the writer keeps its defaults.
package profile

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Loader reads profiles from the filesystem
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a loader
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log}
}

// Load returns the profile at path, or ok=false when there is none usable
func (l *Loader) Load(path string) (*media.Profile, bool) {
	if path == "" {
		return nil, false
	}
	p, err := Parse(path)
	if err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("profile: unavailable, writer keeps defaults")
		return nil, false
	}
	l.log.Debug().Str("path", path).Str("name", p.Name).Msg("profile: loaded")
	return p, true
}

// Parse reads and validates a profile file
func Parse(path string) (*media.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read profile")
	}

	var p media.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "parse profile")
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that a profile names at least a container and a video
// encoder
func Validate(p *media.Profile) error {
	if p.Container == "" {
		return errors.New("profile: container is required")
	}
	if p.Video.Encoder == "" {
		return errors.New("profile: video encoder is required")
	}
	if p.Video.BitrateKbps < 0 || p.Audio.BitrateKbps < 0 {
		return errors.New("profile: bitrate must not be negative")
	}
	return nil
}
