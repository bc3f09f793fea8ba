// Package metrics provides lightweight, lock-free counters for the
// gateway's inbound commands and outbound events.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one gateway process.
type Collector struct {
	clientsActive   atomic.Int64
	clientsTotal    atomic.Int64
	commandsHandled atomic.Int64
	commandsUnknown atomic.Int64
	handlerFaults   atomic.Int64
	eventsSent      atomic.Int64
	eventsDropped   atomic.Int64
	sendFailures    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastFault    time.Time
	lastFaultMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Client connections ───────────────────────────────────────────────

// ClientConnected increments both the active and total counters.
func (c *Collector) ClientConnected() {
	if c == nil {
		return
	}
	c.clientsActive.Add(1)
	c.clientsTotal.Add(1)
}

// ClientDisconnected decrements the active client counter.
func (c *Collector) ClientDisconnected() {
	if c == nil {
		return
	}
	c.clientsActive.Add(-1)
}

// ActiveClients returns the number of connected stream or WebSocket
// clients.
func (c *Collector) ActiveClients() int64 {
	if c == nil {
		return 0
	}
	return c.clientsActive.Load()
}

// TotalClients returns the lifetime client count.
func (c *Collector) TotalClients() int64 {
	if c == nil {
		return 0
	}
	return c.clientsTotal.Load()
}

// ── Inbound commands ─────────────────────────────────────────────────

// CommandHandled records one command dispatched to its handler.
func (c *Collector) CommandHandled() {
	if c == nil {
		return
	}
	c.commandsHandled.Add(1)
}

// CommandUnknown records a command with no registered handler.
func (c *Collector) CommandUnknown() {
	if c == nil {
		return
	}
	c.commandsUnknown.Add(1)
}

// CommandsHandled returns the number of dispatched commands.
func (c *Collector) CommandsHandled() int64 {
	if c == nil {
		return 0
	}
	return c.commandsHandled.Load()
}

// CommandsUnknown returns the number of ignored commands.
func (c *Collector) CommandsUnknown() int64 {
	if c == nil {
		return 0
	}
	return c.commandsUnknown.Load()
}

// ── Faults ───────────────────────────────────────────────────────────

// RecordFault increments the fault counter and stores the message.
func (c *Collector) RecordFault(msg string) {
	if c == nil {
		return
	}
	c.handlerFaults.Add(1)
	c.mu.Lock()
	c.lastFault = time.Now()
	c.lastFaultMsg = msg
	c.mu.Unlock()
}

// FaultCount returns the number of isolated handler or translation
// faults.
func (c *Collector) FaultCount() int64 {
	if c == nil {
		return 0
	}
	return c.handlerFaults.Load()
}

// ── Outbound events ──────────────────────────────────────────────────

// EventSent records one event translated into a wire call.
func (c *Collector) EventSent() {
	if c == nil {
		return
	}
	c.eventsSent.Add(1)
}

// EventDropped records an event of unknown kind.
func (c *Collector) EventDropped() {
	if c == nil {
		return
	}
	c.eventsDropped.Add(1)
}

// SendFailed records a send abandoned because the peer was unreachable.
func (c *Collector) SendFailed() {
	if c == nil {
		return
	}
	c.sendFailures.Add(1)
}

// EventsSent returns the number of events sent.
func (c *Collector) EventsSent() int64 {
	if c == nil {
		return 0
	}
	return c.eventsSent.Load()
}

// EventsDropped returns the number of dropped events.
func (c *Collector) EventsDropped() int64 {
	if c == nil {
		return 0
	}
	return c.eventsDropped.Load()
}

// SendFailures returns the number of failed sends.
func (c *Collector) SendFailures() int64 {
	if c == nil {
		return 0
	}
	return c.sendFailures.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	ClientsActive    int64  `json:"clients_active"`
	ClientsTotal     int64  `json:"clients_total"`
	CommandsHandled  int64  `json:"commands_handled"`
	CommandsUnknown  int64  `json:"commands_unknown"`
	HandlerFaults    int64  `json:"handler_faults"`
	EventsSent       int64  `json:"events_sent"`
	EventsDropped    int64  `json:"events_dropped"`
	SendFailures     int64  `json:"send_failures"`
	LastFault        string `json:"last_fault,omitempty"`
	LastFaultMessage string `json:"last_fault_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		ClientsActive:   c.clientsActive.Load(),
		ClientsTotal:    c.clientsTotal.Load(),
		CommandsHandled: c.commandsHandled.Load(),
		CommandsUnknown: c.commandsUnknown.Load(),
		HandlerFaults:   c.handlerFaults.Load(),
		EventsSent:      c.eventsSent.Load(),
		EventsDropped:   c.eventsDropped.Load(),
		SendFailures:    c.sendFailures.Load(),
	}
	if !c.lastFault.IsZero() {
		s.LastFault = c.lastFault.Format(time.RFC3339)
		s.LastFaultMessage = c.lastFaultMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
