package registry

import (
	"github.com/xpanvictor/voxgate/pkg/io/device"
)

// Registry maps a call identifier to the endpoint of its live session.
// There is at most one entry per identifier.
type Registry interface {
	// Register binds id to ep. An existing entry is replaced and returned.
	Register(id string, ep device.Endpoint) (previous device.Endpoint, replaced bool)
	// Lookup returns the endpoint bound to id.
	Lookup(id string) (device.Endpoint, bool)
	// Remove deletes id only while it is still bound to ep, so a session
	// superseded by a reconnect cannot evict its replacement.
	Remove(id string, ep device.Endpoint) bool
	// queries
	IDs() []string
	Len() int
}
