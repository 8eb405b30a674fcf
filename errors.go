package capturegraph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Error kinds. Match with errors.Is; BuildError and ControlError keep the
// underlying kind reachable through Unwrap.
var (
	ErrDeviceNotFound         = media.ErrDeviceNotFound
	ErrPortNotFound           = media.ErrPortNotFound
	ErrInvalidStateTransition = media.ErrInvalidStateTransition
	ErrCapabilityMissing      = media.ErrCapabilityMissing

	// ErrUnknownVariant is returned for a variant outside the closed set
	ErrUnknownVariant = errors.New("capture graph: unknown variant")
	// ErrSnapshotUnsupported is returned by RequestSnapshot on graphs built
	// without a frame probe
	ErrSnapshotUnsupported = errors.New("capture graph: snapshots need the screenshot variant")
	// ErrClosed is returned by operations on a closed graph
	ErrClosed = errors.New("capture graph: closed")
)

// BuildError aborts an assembly. Every node created before the failing step
// has been released and the runtime pipeline closed.
type BuildError struct {
	Variant Variant
	// Step describes the failing assembly step
	Step string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s graph: %s: %v", e.Variant, e.Step, e.Err)
}

// Unwrap returns the step's error
func (e *BuildError) Unwrap() error { return e.Err }
