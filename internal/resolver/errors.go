package resolver

import "errors"

var (
	// ErrUsage is returned when an entry point receives something that is
	// neither a composable node type nor a router state.
	ErrUsage = errors.New("resolver: expects a composable node type or a router state")
	// ErrMissingIdentity is returned when a resolving node has no display name
	// in recursive mode.
	ErrMissingIdentity = errors.New("resolver: each resolving node must have a display name when resolving recursively")
)
