package transport

import (
	"context"
	"sync"

	gerrors "oscgate/internal/errors"
	"oscgate/internal/osc"
)

// Sent is one call recorded by a Mem endpoint.
type Sent struct {
	Address string
	Args    []interface{}
}

// Mem is an in-process Inbound endpoint.  Sends are recorded instead
// of written to a socket, and Inject feeds commands to the dispatcher
// as if they had arrived off the wire.
type Mem struct {
	*dispatcher
	name string
	c    *closer

	mu   sync.Mutex
	sent []Sent
	fail error
}

// NewMem creates a Mem endpoint reporting itself as name.
func NewMem(name string, o Options) *Mem {
	o = o.withDefaults()
	return &Mem{dispatcher: newDispatcher(name, o), name: name, c: newCloser()}
}

// Name implements Endpoint.
func (m *Mem) Name() string { return m.name }

// Send implements Endpoint.
func (m *Mem) Send(address string, args ...interface{}) error {
	if m.c.closed() {
		return gerrors.Transport("send", m.name, "", gerrors.ErrClosed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Sent{Address: address, Args: args})
	if m.fail != nil {
		return gerrors.Transport("send", m.name, "", m.fail)
	}
	return nil
}

// FailSends makes every later Send record the call and then fail with
// err, as an unreachable peer would.  nil restores normal sends.
func (m *Mem) FailSends(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Sent returns a copy of every call recorded so far.
func (m *Mem) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// Inject queues address with args for dispatch.  The first string
// argument is the client id, exactly as for a received packet.
func (m *Mem) Inject(ctx context.Context, address string, args ...interface{}) bool {
	return m.enqueue(ctx, NewCommand(m.name, m.name, osc.Message{Address: address, Args: args}))
}

// Serve implements Inbound.
func (m *Mem) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	m.run(ctx)
	return nil
}

// Close implements Endpoint.
func (m *Mem) Close() error {
	return m.c.close(func() error { return nil })
}
