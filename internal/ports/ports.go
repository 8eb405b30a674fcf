// Package ports locates a port on a pipeline node by direction and name
//
// Devices expose their ports under vendor-specific and sometimes localized
// names ("Capture", "Запись", "Video Capture"), so matching is a tolerant
// substring scan with a fallback to the first port of the requested
// direction. A wrong name never causes a failure by itself; only a node
// without any port of that direction does.
package ports

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// Find returns the port of node that best matches direction and names
//
// Algorithm:
//  1. Enumerate the node's ports and keep those of the requested direction
//  2. No primary name: return the first of them
//  3. Otherwise return the first whose identifier contains primary, or
//     secondary when secondary is non-empty
//  4. Nothing matched: return the first port of the direction (fallback)
//
// Returns media.ErrPortNotFound only when the node has no port of the
// requested direction at all. Enumeration failures are wrapped and returned.
func Find(node media.Node, dir media.Direction, primary, secondary string) (media.Port, error) {
	if node == nil {
		return nil, errors.New("ports: nil node")
	}

	all, err := node.Ports()
	if err != nil {
		return nil, errors.Wrapf(err, "ports: enumerate %s", node.Name())
	}

	var first media.Port
	for _, p := range all {
		if p.Direction() != dir {
			continue
		}
		if first == nil {
			first = p
			if primary == "" {
				return p, nil
			}
		}
		if matches(p.ID(), primary, secondary) {
			return p, nil
		}
	}

	if first == nil {
		return nil, errors.Wrapf(media.ErrPortNotFound, "ports: %s has no %s port", node.Name(), dir)
	}
	return first, nil
}

// First returns the first port of a direction
func First(node media.Node, dir media.Direction) (media.Port, error) {
	return Find(node, dir, "", "")
}

func matches(id, primary, secondary string) bool {
	if strings.Contains(id, primary) {
		return true
	}
	return secondary != "" && strings.Contains(id, secondary)
}
