// Package pump drains the outbound event queue into wire calls.
//
// One goroutine pops events in strict FIFO order and translates each
// into a Send on the peer endpoint (or, for passthrough messages, the
// WebSocket endpoint).  A failed send or a bad event is logged and
// skipped.  An Exit event, or cancellation of the context given to
// Run, moves the pump through Draining, where exactly one "/exited"
// notice is attempted, to Stopped.
package pump

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	gerrors "oscgate/internal/errors"
	"oscgate/internal/events"
	"oscgate/internal/metrics"
	"oscgate/internal/transport"
	"oscgate/util"
)

// State is the pump's lifecycle position.
type State int

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options wires a Pump.
type Options struct {
	Queue     *events.Queue
	Peer      transport.Endpoint // primary destination
	WebSocket transport.Endpoint // passthrough destination; nil drops them
	Platform  func() string      // defaults to util.PlatformDescription
	Logger    *util.Logger
	Metrics   *metrics.Collector
}

// Pump is the single consumer of the event queue.
type Pump struct {
	queue    *events.Queue
	peer     transport.Endpoint
	ws       transport.Endpoint
	platform func() string
	log      *util.Logger
	metrics  *metrics.Collector

	mu    sync.Mutex
	state State
	done  chan struct{}
}

// New creates a pump in the Running state.
func New(o Options) *Pump {
	if o.Queue == nil {
		o.Queue = events.NewQueue()
	}
	if o.Platform == nil {
		o.Platform = util.PlatformDescription
	}
	if o.Logger == nil {
		o.Logger = util.NewLogger(0)
	}
	return &Pump{
		queue:    o.Queue,
		peer:     o.Peer,
		ws:       o.WebSocket,
		platform: o.Platform,
		log:      o.Logger,
		metrics:  o.Metrics,
		done:     make(chan struct{}),
	}
}

// Push enqueues e without blocking.
func (p *Pump) Push(e events.Event) { p.queue.Push(e) }

// State returns the current state.
func (p *Pump) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed once the pump is Stopped.
func (p *Pump) Done() <-chan struct{} { return p.done }

func (p *Pump) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.log.Debug("pump: %s", s)
}

// Run processes events until an Exit event arrives or ctx is
// cancelled.  It must be called once.
func (p *Pump) Run(ctx context.Context) {
	defer close(p.done)
	for {
		e, err := p.queue.Pop(ctx)
		if err != nil {
			p.log.Verbose("pump: %v, shutting down", err)
			p.shutdown()
			return
		}
		if _, ok := e.(events.Exit); ok {
			p.shutdown()
			return
		}
		p.process(e)
	}
}

func (p *Pump) shutdown() {
	p.setState(Draining)
	p.send(p.peer, "/exited")
	p.setState(Stopped)
	if n := p.queue.Len(); n > 0 {
		p.log.Verbose("pump: %d queued events discarded", n)
	}
}

// process translates one event, isolating any fault to it.
func (p *Pump) process(e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.fault(e, fmt.Errorf("panic: %v", r))
		}
	}()

	dest, address, args, err := p.translate(e)
	switch {
	case err != nil:
		p.fault(e, err)
	case address == "":
		// nothing to send
	case dest == nil:
		p.log.Verbose("pump: no endpoint for %s, dropping %s", kindOf(e), address)
	default:
		p.send(dest, address, args...)
	}
}

func (p *Pump) fault(e events.Event, err error) {
	f := gerrors.Fault(kindOf(e), "", err)
	p.metrics.RecordFault(f.Error())
	p.log.Error("pump: skipping event: %v", f)
}

// kindOf names e for logs and faults.  A nil event, or a typed nil
// whose Kind panics, is named by its dynamic type.
func kindOf(e events.Event) (kind string) {
	if e == nil {
		return "<nil>"
	}
	defer func() {
		if recover() != nil {
			kind = fmt.Sprintf("%T", e)
		}
	}()
	return string(e.Kind())
}

// send is result based: an unreachable peer is logged, never retried.
func (p *Pump) send(dest transport.Endpoint, address string, args ...interface{}) {
	if dest == nil {
		return
	}
	if err := dest.Send(address, args...); err != nil {
		p.metrics.SendFailed()
		if gerrors.IsPeerUnreachable(err) {
			p.log.Verbose("pump: %s not delivered, peer not listening: %v", address, err)
		} else {
			p.log.Warn("pump: %s not delivered: %v", address, err)
		}
		return
	}
	p.metrics.EventSent()
}

// ── Translation ──────────────────────────────────────────────────────

const placeholder = "Internal error within a fn calling %s without a :val payload"

func missing(field string) error { return fmt.Errorf("required field %s missing", field) }

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func contentOr(v *string, kind string) string {
	if v == nil {
		return fmt.Sprintf(placeholder, kind)
	}
	return *v
}

// translate maps e to its wire call.  An empty address means the event
// produces no traffic.
func (p *Pump) translate(e events.Event) (transport.Endpoint, string, []interface{}, error) {
	switch ev := e.(type) {
	case events.Info:
		return p.peer, "/log/info", []interface{}{ev.Style, ev.Text}, nil

	case events.SyntaxError:
		line := intOr(ev.Line, -1)
		return p.peer, "/syntax_error", []interface{}{
			ev.JobID, html.EscapeString(ev.Description), html.EscapeString(ev.ErrorLine), line, strconv.Itoa(line),
		}, nil

	case events.RuntimeError:
		if ev.Backtrace == nil {
			return nil, "", nil, missing("backtrace")
		}
		return p.peer, "/error", []interface{}{
			ev.JobID,
			html.EscapeString(ev.Description),
			html.EscapeString(strings.Join(ev.Backtrace, "\n")),
			intOr(ev.Line, -1),
		}, nil

	case events.Incoming:
		if ev.Address == "" {
			return nil, "", nil, missing("address")
		}
		return p.peer, "/incoming/osc", []interface{}{ev.Time, ev.ID, ev.Address, ev.Args}, nil

	case events.MultiMessage:
		if ev.Values == nil {
			return nil, "", nil, missing("values")
		}
		args := []interface{}{ev.JobID, strconv.Quote(ev.ThreadName), ev.Runtime, len(ev.Values)}
		for _, v := range ev.Values {
			args = append(args, v.Style, v.Text)
		}
		return p.peer, "/log/multi_message", args, nil

	case events.MidiOutPorts:
		return p.peer, "/midi/out-ports", []interface{}{strings.Join(ev.Ports, "\n")}, nil

	case events.MidiInPorts:
		return p.peer, "/midi/in-ports", []interface{}{strings.Join(ev.Ports, "\n")}, nil

	case events.ReplaceBuffer:
		if ev.BufferID == "" {
			return nil, "", nil, missing("buffer id")
		}
		return p.peer, "/buffer/replace", []interface{}{
			ev.BufferID, contentOr(ev.Content, "replace-buffer"), ev.Line, ev.Index, ev.FirstLine,
		}, nil

	case events.ReplaceBufferIdx:
		return p.peer, "/buffer/replace-idx", []interface{}{
			ev.BufferIdx, contentOr(ev.Content, "replace-buffer-idx"), ev.Line, ev.Index, ev.FirstLine,
		}, nil

	case events.RunBufferIdx:
		return p.peer, "/buffer/run-idx", []interface{}{ev.BufferIdx}, nil

	case events.ReplaceLines:
		if ev.BufferID == "" {
			return nil, "", nil, missing("buffer id")
		}
		start := intOr(ev.StartLine, ev.PointLine)
		finish := intOr(ev.FinishLine, start)
		return p.peer, "/buffer/replace-lines", []interface{}{
			ev.BufferID, contentOr(ev.Content, "replace-line"), start, finish, ev.PointLine, ev.PointIndex,
		}, nil

	case events.Version:
		if ev.LastChecked.IsZero() {
			return nil, "", nil, missing("last checked")
		}
		platform := ev.Platform
		if platform == "" {
			platform = p.platform()
		}
		lc := ev.LastChecked
		return p.peer, "/version", []interface{}{
			ev.Version, ev.VersionNum, ev.LatestVersion, ev.LatestVersionNum,
			lc.Day(), int(lc.Month()), lc.Year(), platform,
		}, nil

	case events.AllJobsCompleted:
		return p.peer, "/runs/all-completed", nil, nil

	case events.Job:
		return nil, "", nil, nil

	case events.Ack:
		return p.peer, "/ack", []interface{}{ev.ID}, nil

	case events.Passthrough:
		if ev.Path == "" {
			return nil, "", nil, missing("path")
		}
		return p.ws, ev.Path, ev.Body, nil

	default:
		p.metrics.EventDropped()
		p.log.Warn("pump: ignoring event of unknown kind %q", kindOf(e))
		return nil, "", nil, nil
	}
}
