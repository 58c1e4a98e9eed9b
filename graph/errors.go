package graph

import "errors"

// Errors.
var (
	// ErrSessionIDRequired is returned by checkpoint savers when the
	// session id is empty.
	ErrSessionIDRequired = errors.New("session_id is required")
	// ErrRouteNotMapped indicates a conditional edge produced a route
	// value with no declared destination. This is a configuration
	// error, not a recoverable runtime condition.
	ErrRouteNotMapped = errors.New("route not mapped")
)
