// Package core is the orchestration layer.  It opens the endpoints a
// protocol mode needs, checks the remaining ports, wires the command
// router and the event pump to them, and supervises the lot until the
// pump stops.
//
// Architecture layers (bottom → top):
//
//	osc  →  transport  →  router / pump  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete run of the gateway.  It owns every endpoint it
// opens from startup to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
