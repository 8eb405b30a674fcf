package media

import "github.com/pkg/errors"

// Error kinds shared by the capture graph and its runtimes. Match them with
// errors.Is, wrapped errors keep the kind.
var (
	// ErrDeviceNotFound is returned when a device path yields no match
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPortNotFound is returned when a node has no port of the requested
	// direction at all
	ErrPortNotFound = errors.New("port not found")

	// ErrInvalidStateTransition is returned when a state machine operation is
	// invoked from a state outside its valid-from set
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInvalidGeometry marks negotiated frame geometry outside plausible
	// bounds. It is dropped silently by the snapshot path and never reaches
	// callers.
	ErrInvalidGeometry = errors.New("invalid frame geometry")

	// ErrAlreadyConnected is returned by runtimes when a port that already has
	// a peer is connected again
	ErrAlreadyConnected = errors.New("port already connected")

	// ErrCapabilityMissing is returned when a node lacks a capability a build
	// step requires
	ErrCapabilityMissing = errors.New("capability not supported by node")
)
