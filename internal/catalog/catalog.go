// Package catalog resolves capture devices by path or display name
//
// The catalog never caches: every query enumerates the platform again so a
// device plugged in or removed between two builds is seen immediately.
package catalog

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Catalog enumerates and resolves devices through a media.DeviceLister
type Catalog struct {
	lister media.DeviceLister
	log    zerolog.Logger
}

// New creates a catalog over lister
func New(lister media.DeviceLister, log zerolog.Logger) *Catalog {
	return &Catalog{lister: lister, log: log}
}

// Enumerate returns a fresh snapshot of the devices in a category
func (c *Catalog) Enumerate(ctx context.Context, category media.Category) ([]media.Device, error) {
	devices, err := c.lister.Devices(ctx, category)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog: enumerate %s devices", category)
	}
	c.log.Debug().
		Str("category", category.String()).
		Int("count", len(devices)).
		Msg("catalog: devices enumerated")
	return devices, nil
}

// ResolveByPath returns the first device whose path contains path
// (case-insensitive)
//
// Returns media.ErrDeviceNotFound when nothing matches.
func (c *Catalog) ResolveByPath(ctx context.Context, category media.Category, path string) (media.Device, error) {
	devices, err := c.Enumerate(ctx, category)
	if err != nil {
		return media.Device{}, err
	}
	if dev, ok := firstMatch(devices, path, func(d media.Device) string { return d.Path }); ok {
		return dev, nil
	}
	return media.Device{}, errors.Wrapf(media.ErrDeviceNotFound, "catalog: no %s device with path %q", category, path)
}

// ResolveByName returns the first device whose display name contains name
// (case-insensitive)
//
// ok is false when nothing matches, which is not an error: callers treat a
// missing optional device (a microphone) as a degrade path. Enumeration
// failures are still returned.
func (c *Catalog) ResolveByName(ctx context.Context, category media.Category, name string) (dev media.Device, ok bool, err error) {
	devices, err := c.Enumerate(ctx, category)
	if err != nil {
		return media.Device{}, false, err
	}
	dev, ok = firstMatch(devices, name, func(d media.Device) string { return d.Name })
	return dev, ok, nil
}

// firstMatch folds both sides with Unicode case folding so localized names
// (Cyrillic, Greek) match regardless of case
func firstMatch(devices []media.Device, needle string, field func(media.Device) string) (media.Device, bool) {
	fold := cases.Fold()
	want := fold.String(needle)
	for _, d := range devices {
		if strings.Contains(fold.String(field(d)), want) {
			return d, true
		}
	}
	return media.Device{}, false
}
