// Package memory provides in-memory implementations of storage ports,
// used in tests and for ephemeral deployments.
package memory

import "github.com/artpar/billgate/ports"

// Store errors, shared with the other adapters through ports.
var (
	ErrNotFound  = ports.ErrNotFound
	ErrDuplicate = ports.ErrDuplicate
	ErrStale     = ports.ErrStale
)
