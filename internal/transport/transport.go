// Package transport provides the gateway's network endpoints.  An
// endpoint owns one socket (or listener) and moves OSC commands in and
// out of it; what the commands mean is the router's job.
//
// Every variant can Send.  Server variants additionally implement
// Inbound: handlers registered with Handle run on one dispatch
// goroutine per endpoint, so commands from one endpoint are handled
// serially in arrival order while separate endpoints proceed
// independently.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"oscgate/config"
	"oscgate/internal/metrics"
	"oscgate/internal/osc"
	"oscgate/internal/retry"
	"oscgate/util"
)

// Endpoint names, used in logs and TransportErrors.
const (
	NameTCPClient       = "tcp-client"
	NameTCPServer       = "tcp-server"
	NameUDPClient       = "udp-client"
	NameUDPServer       = "udp-server"
	NameWebSocketServer = "websocket-server"
)

// Endpoint is a network resource that can carry commands to the peer.
type Endpoint interface {
	// Name identifies the endpoint variant in logs.
	Name() string

	// Send delivers one command.  A *errors.TransportError is routine:
	// the peer may simply not be listening.
	Send(address string, args ...interface{}) error

	// Close releases the socket.  It is safe to call more than once.
	Close() error
}

// Inbound is an endpoint that also receives commands.
type Inbound interface {
	Endpoint

	// Handle registers fn for every received command named address.
	// A later registration for the same address replaces the earlier.
	Handle(address string, fn HandlerFunc)

	// Serve runs the read and dispatch loops until ctx is cancelled or
	// the endpoint is closed.
	Serve(ctx context.Context) error
}

// HandlerFunc processes one inbound command.
type HandlerFunc func(cmd Command)

// Command is one decoded inbound message.
type Command struct {
	Name     string // OSC address, e.g. "/run-code"
	ClientID string
	Args     Args   // arguments after the client id
	Endpoint string // receiving endpoint name
}

// NewCommand builds a Command from a decoded message.  The first
// argument, whatever its type, is the client id and is removed from
// Args; numeric ids are rendered as text.  fallbackID (the endpoint's
// own notion of the connection) is used when the message has no
// arguments or the first one is empty or nil.
func NewCommand(endpoint, fallbackID string, m osc.Message) Command {
	cmd := Command{Name: m.Address, ClientID: fallbackID, Endpoint: endpoint}
	args := Args(m.Args)
	if len(args) > 0 {
		if id, err := args.String(0); err == nil && id != "" {
			cmd.ClientID = id
		}
		args = args[1:]
	}
	cmd.Args = args
	return cmd
}

// Options carries the collaborators shared by every endpoint.
type Options struct {
	Host        string
	DialTimeout time.Duration
	InboxSize   int
	Breaker     *retry.Breaker // TCP client only; nil builds a default
	Logger      *util.Logger
	Metrics     *metrics.Collector
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = config.DefaultHost
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = config.DefaultDialTimeout
	}
	if o.InboxSize <= 0 {
		o.InboxSize = config.DefaultInboxSize
	}
	if o.Logger == nil {
		o.Logger = util.NewLogger(0)
	}
	return o
}

// ── Dispatch ─────────────────────────────────────────────────────────

// dispatcher serializes handler execution for one endpoint.  Socket
// readers call enqueue; a single goroutine in run drains the inbox.
type dispatcher struct {
	endpoint string
	log      *util.Logger
	metrics  *metrics.Collector

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	inbox    chan Command
}

func newDispatcher(endpoint string, o Options) *dispatcher {
	return &dispatcher{
		endpoint: endpoint,
		log:      o.Logger,
		metrics:  o.Metrics,
		handlers: make(map[string]HandlerFunc),
		inbox:    make(chan Command, o.InboxSize),
	}
}

// Handle implements Inbound.
func (d *dispatcher) Handle(address string, fn HandlerFunc) {
	d.mu.Lock()
	d.handlers[address] = fn
	d.mu.Unlock()
}

// enqueue hands cmd to the dispatch goroutine, waiting while the inbox
// is full.  It reports false if ctx ended first.
func (d *dispatcher) enqueue(ctx context.Context, cmd Command) bool {
	select {
	case d.inbox <- cmd:
		return true
	case <-ctx.Done():
		return false
	}
}

// deliver decodes an OSC packet and enqueues every message in it.
func (d *dispatcher) deliver(ctx context.Context, packet []byte, fallbackID string) {
	msgs, err := osc.Decode(packet)
	if err != nil {
		d.log.Warn("%s: dropping malformed packet from %s: %v", d.endpoint, fallbackID, err)
		return
	}
	for _, m := range msgs {
		if !d.enqueue(ctx, NewCommand(d.endpoint, fallbackID, m)) {
			return
		}
	}
}

func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.inbox:
			d.dispatch(cmd)
		}
	}
}

func (d *dispatcher) dispatch(cmd Command) {
	d.mu.RLock()
	fn := d.handlers[cmd.Name]
	d.mu.RUnlock()

	if fn == nil {
		d.metrics.CommandUnknown()
		d.log.Verbose("%s: ignoring unknown command %s from %s", d.endpoint, cmd.Name, cmd.ClientID)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordFault(fmt.Sprintf("%s: %v", cmd.Name, r))
			d.log.Error("%s: handler for %s panicked: %v", d.endpoint, cmd.Name, r)
		}
	}()
	d.metrics.CommandHandled()
	fn(cmd)
}

// ── Shutdown helper ──────────────────────────────────────────────────

// closer makes Close idempotent and remembers the first result.
type closer struct {
	once sync.Once
	err  error
	done chan struct{}
}

func newCloser() *closer { return &closer{done: make(chan struct{})} }

func (c *closer) close(fn func() error) error {
	c.once.Do(func() {
		close(c.done)
		c.err = fn()
	})
	return c.err
}

func (c *closer) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
