// Package router maps inbound command names to runtime operations.
//
// The command set is closed: it is assembled once from independent
// tables (editor, session, recording, mixer, system) and mounted
// unchanged on every inbound endpoint.  Each handler runs isolated;
// an error or panic becomes a logged HandlerFault and the endpoint
// moves on to its next command.
package router

import (
	"fmt"
	"sort"

	gerrors "oscgate/internal/errors"
	"oscgate/internal/events"
	"oscgate/internal/metrics"
	"oscgate/internal/runtime"
	"oscgate/internal/transport"
	"oscgate/util"
)

// HandlerFunc handles one command.  args excludes the client id.
type HandlerFunc func(clientID string, args transport.Args) error

// Table maps command names to handlers.
type Table map[string]HandlerFunc

// Router owns the merged command table.
type Router struct {
	handlers Table
	log      *util.Logger
	metrics  *metrics.Collector
}

// New builds the router for rt.  Reply events (ack, version) are
// pushed to sink.
func New(rt runtime.Runtime, sink events.Sink, log *util.Logger, mc *metrics.Collector) *Router {
	if log == nil {
		log = util.NewLogger(0)
	}
	return &Router{
		handlers: Merge(
			editorTable(rt),
			sessionTable(rt, sink),
			recordingTable(rt),
			mixerTable(rt),
			systemTable(rt),
		),
		log:     log,
		metrics: mc,
	}
}

// Merge combines tables into one.  A name defined twice is a
// programming error and panics.
func Merge(tables ...Table) Table {
	out := make(Table)
	for _, t := range tables {
		for name, h := range t {
			if _, dup := out[name]; dup {
				panic(fmt.Sprintf("router: command %s registered twice", name))
			}
			out[name] = h
		}
	}
	return out
}

// Commands returns the registered command names, sorted.
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mount registers every command on ep.
func (r *Router) Mount(ep transport.Inbound) {
	for name, h := range r.handlers {
		name, h := name, h
		ep.Handle(name, func(cmd transport.Command) {
			r.invoke(name, h, cmd) //nolint:errcheck
		})
	}
	r.log.Verbose("router: %d commands mounted on %s", len(r.handlers), ep.Name())
}

// Dispatch runs the handler for cmd directly.  It returns the fault,
// already logged, or nil.  Unknown commands are logged and ignored.
func (r *Router) Dispatch(cmd transport.Command) error {
	h, ok := r.handlers[cmd.Name]
	if !ok {
		r.metrics.CommandUnknown()
		r.log.Verbose("router: ignoring unknown command %s from %s", cmd.Name, cmd.ClientID)
		return nil
	}
	return r.invoke(cmd.Name, h, cmd)
}

func (r *Router) invoke(name string, h HandlerFunc, cmd transport.Command) (fault error) {
	defer func() {
		if p := recover(); p != nil {
			fault = gerrors.Fault(name, cmd.ClientID, fmt.Errorf("panic: %v", p))
		}
		if fault != nil {
			r.metrics.RecordFault(fault.Error())
			r.log.Error("%v (via %s, args %v)", fault, cmd.Endpoint, []interface{}(cmd.Args))
		}
	}()

	r.log.Debug("router: %s from %s %v", name, cmd.ClientID, []interface{}(cmd.Args))
	if err := h(cmd.ClientID, cmd.Args); err != nil {
		return gerrors.Fault(name, cmd.ClientID, err)
	}
	return nil
}

// ── Argument helpers ─────────────────────────────────────────────────

// texts reads n text arguments starting at from.
func texts(args transport.Args, from, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		s, err := args.String(from + i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ints reads n numeric arguments starting at from.
func ints(args transport.Args, from, n int) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		v, err := args.Int(from + i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
