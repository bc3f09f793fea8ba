package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	gerrors "oscgate/internal/errors"
	"oscgate/internal/metrics"
	"oscgate/internal/osc"
	"oscgate/internal/retry"
	"oscgate/util"
)

// ── Client ───────────────────────────────────────────────────────────

// TCPClient sends length-prefixed OSC packets over one stream to the
// peer.  The connection is dialled lazily on the first Send and again
// after any write failure; a circuit breaker stops every event from
// paying the dial timeout while the peer is down.
type TCPClient struct {
	addr    string
	timeout time.Duration
	breaker *retry.Breaker
	log     *util.Logger
	c       *closer

	mu   sync.Mutex
	conn net.Conn
}

// NewTCPClient prepares a client for host:port without connecting.
func NewTCPClient(port int, o Options) (*TCPClient, error) {
	o = o.withDefaults()
	addr := util.FormatAddr(o.Host, port)
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return nil, gerrors.Bind("tcp", port, err)
	}
	b := o.Breaker
	if b == nil {
		log := o.Logger
		b = retry.NewBreaker(&retry.BreakerConfig{
			OnStateChange: func(from, to retry.State) {
				log.Verbose("%s: peer %s breaker %s -> %s", NameTCPClient, addr, from, to)
			},
		})
	}
	return &TCPClient{
		addr:    addr,
		timeout: o.DialTimeout,
		breaker: b,
		log:     o.Logger,
		c:       newCloser(),
	}, nil
}

// Name implements Endpoint.
func (t *TCPClient) Name() string { return NameTCPClient }

// Send implements Endpoint.
func (t *TCPClient) Send(address string, args ...interface{}) error {
	packet, err := osc.Encode(address, args...)
	if err != nil {
		return gerrors.Transport("encode", NameTCPClient, t.addr, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.c.closed() {
		return gerrors.Transport("send", NameTCPClient, t.addr, gerrors.ErrClosed)
	}
	if t.conn == nil {
		if err := t.breaker.Do(t.dial); err != nil {
			return gerrors.Transport("dial", NameTCPClient, t.addr, err)
		}
	}
	if err := osc.WriteFrame(t.conn, packet); err != nil {
		t.conn.Close() //nolint:errcheck
		t.conn = nil
		return gerrors.Transport("send", NameTCPClient, t.addr, err)
	}
	t.log.Debug("%s: -> %s %v", NameTCPClient, address, args)
	return nil
}

// dial runs under t.mu.
func (t *TCPClient) dial() error {
	d := net.Dialer{Timeout: t.timeout}
	conn, err := d.Dial("tcp", t.addr)
	if err != nil {
		return err
	}
	t.log.Verbose("%s: connected to %s", NameTCPClient, t.addr)
	t.conn = conn
	return nil
}

// Close implements Endpoint.
func (t *TCPClient) Close() error {
	return t.c.close(func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.conn == nil {
			return nil
		}
		err := t.conn.Close()
		t.conn = nil
		return err
	})
}

// ── Server ───────────────────────────────────────────────────────────

// TCPServer accepts stream connections and reads length-prefixed OSC
// packets from each.  All connections feed the same dispatcher.  Send
// writes to every open connection.
type TCPServer struct {
	*dispatcher
	ln      net.Listener
	log     *util.Logger
	metrics *metrics.Collector
	c       *closer

	mu    sync.Mutex
	conns map[net.Conn]*sync.Mutex // value guards writes
}

// OpenTCPServer listens on host:port.
func OpenTCPServer(port int, o Options) (*TCPServer, error) {
	o = o.withDefaults()
	ln, err := net.Listen("tcp", util.FormatAddr(o.Host, port))
	if err != nil {
		return nil, gerrors.Bind("tcp", port, err)
	}
	o.Logger.Verbose("%s: listening on %s", NameTCPServer, ln.Addr())
	return &TCPServer{
		dispatcher: newDispatcher(NameTCPServer, o),
		ln:         ln,
		log:        o.Logger,
		metrics:    o.Metrics,
		c:          newCloser(),
		conns:      make(map[net.Conn]*sync.Mutex),
	}, nil
}

// Name implements Endpoint.
func (s *TCPServer) Name() string { return NameTCPServer }

// Addr returns the listening address.
func (s *TCPServer) Addr() net.Addr { return s.ln.Addr() }

// Serve implements Inbound.
func (s *TCPServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.Close() //nolint:errcheck
		return nil
	})
	g.Go(func() error {
		defer cancel()
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				if s.c.closed() || util.IsHarmless(err) {
					return nil
				}
				return fmt.Errorf("%s accept: %w", NameTCPServer, err)
			}
			if !s.track(conn) {
				conn.Close() //nolint:errcheck
				return nil
			}
			g.Go(func() error {
				s.readConn(ctx, conn)
				return nil
			})
		}
	})
	return g.Wait()
}

func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c.closed() {
		return false
	}
	s.conns[conn] = &sync.Mutex{}
	s.metrics.ClientConnected()
	s.log.Verbose("%s: connection from %s", NameTCPServer, conn.RemoteAddr())
	return true
}

func (s *TCPServer) forget(conn net.Conn) {
	s.mu.Lock()
	_, ok := s.conns[conn]
	delete(s.conns, conn)
	s.mu.Unlock()
	if ok {
		s.metrics.ClientDisconnected()
	}
	conn.Close() //nolint:errcheck
}

func (s *TCPServer) readConn(ctx context.Context, conn net.Conn) {
	defer s.forget(conn)
	remote := conn.RemoteAddr().String()
	for {
		packet, err := osc.ReadFrame(conn)
		if err != nil {
			if !util.IsHarmless(err) && !s.c.closed() {
				s.log.Warn("%s: %s: %v", NameTCPServer, remote, err)
			}
			return
		}
		s.deliver(ctx, packet, remote)
	}
}

// Send implements Endpoint.
func (s *TCPServer) Send(address string, args ...interface{}) error {
	packet, err := osc.Encode(address, args...)
	if err != nil {
		return gerrors.Transport("encode", NameTCPServer, "", err)
	}

	s.mu.Lock()
	targets := make(map[net.Conn]*sync.Mutex, len(s.conns))
	for c, wmu := range s.conns {
		targets[c] = wmu
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return gerrors.Transport("send", NameTCPServer, "", gerrors.ErrNotConnected)
	}
	var errs []error
	for c, wmu := range targets {
		wmu.Lock()
		err := osc.WriteFrame(c, packet)
		wmu.Unlock()
		if err != nil {
			errs = append(errs, gerrors.Transport("send", NameTCPServer, c.RemoteAddr().String(), err))
		}
	}
	return gerrors.Join(errs...)
}

// Close implements Endpoint.  Open connections are closed too.
func (s *TCPServer) Close() error {
	return s.c.close(func() error {
		err := s.ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.Close() //nolint:errcheck
		}
		s.mu.Unlock()
		return err
	})
}
