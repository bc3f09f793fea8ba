package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	gerrors "oscgate/internal/errors"
	"oscgate/internal/osc"
	"oscgate/util"
)

// ── Client ───────────────────────────────────────────────────────────

// UDPClient sends OSC datagrams to a fixed peer address.
type UDPClient struct {
	conn *net.UDPConn
	addr string
	log  *util.Logger
	c    *closer
}

// OpenUDPClient creates a connected UDP socket towards host:port.
func OpenUDPClient(port int, o Options) (*UDPClient, error) {
	o = o.withDefaults()
	addr := util.FormatAddr(o.Host, port)
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, gerrors.Bind("udp", port, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, gerrors.Bind("udp", port, err)
	}
	o.Logger.Verbose("%s: sending to %s", NameUDPClient, addr)
	return &UDPClient{conn: conn, addr: addr, log: o.Logger, c: newCloser()}, nil
}

// Name implements Endpoint.
func (u *UDPClient) Name() string { return NameUDPClient }

// Send implements Endpoint.
func (u *UDPClient) Send(address string, args ...interface{}) error {
	if u.c.closed() {
		return gerrors.Transport("send", NameUDPClient, u.addr, gerrors.ErrClosed)
	}
	packet, err := osc.Encode(address, args...)
	if err != nil {
		return gerrors.Transport("encode", NameUDPClient, u.addr, err)
	}
	if _, err := u.conn.Write(packet); err != nil {
		return gerrors.Transport("send", NameUDPClient, u.addr, err)
	}
	u.log.Debug("%s: -> %s %v", NameUDPClient, address, args)
	return nil
}

// Close implements Endpoint.
func (u *UDPClient) Close() error {
	return u.c.close(u.conn.Close)
}

// ── Server ───────────────────────────────────────────────────────────

// UDPServer receives OSC datagrams on one port.  Send replies to the
// address the most recent datagram came from.
type UDPServer struct {
	*dispatcher
	conn *net.UDPConn
	log  *util.Logger
	c    *closer

	mu   sync.Mutex
	last *net.UDPAddr
}

// OpenUDPServer binds host:port.
func OpenUDPServer(port int, o Options) (*UDPServer, error) {
	o = o.withDefaults()
	laddr, err := net.ResolveUDPAddr("udp", util.FormatAddr(o.Host, port))
	if err != nil {
		return nil, gerrors.Bind("udp", port, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, gerrors.Bind("udp", port, err)
	}
	o.Logger.Verbose("%s: listening on %s", NameUDPServer, conn.LocalAddr())
	return &UDPServer{
		dispatcher: newDispatcher(NameUDPServer, o),
		conn:       conn,
		log:        o.Logger,
		c:          newCloser(),
	}, nil
}

// Name implements Endpoint.
func (s *UDPServer) Name() string { return NameUDPServer }

// Addr returns the bound address.
func (s *UDPServer) Addr() net.Addr { return s.conn.LocalAddr() }

// Serve implements Inbound.
func (s *UDPServer) Serve(ctx context.Context) error {
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
		return s.readLoop(ctx)
	})
	return g.Wait()
}

func (s *UDPServer) readLoop(ctx context.Context) error {
	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.c.closed() || util.IsHarmless(err) {
				return nil
			}
			return fmt.Errorf("%s read: %w", NameUDPServer, err)
		}
		s.mu.Lock()
		s.last = from
		s.mu.Unlock()

		s.deliver(ctx, buf[:n], from.String())
	}
}

// Send implements Endpoint.
func (s *UDPServer) Send(address string, args ...interface{}) error {
	s.mu.Lock()
	to := s.last
	s.mu.Unlock()
	if to == nil {
		return gerrors.Transport("send", NameUDPServer, "", gerrors.ErrNotConnected)
	}
	packet, err := osc.Encode(address, args...)
	if err != nil {
		return gerrors.Transport("encode", NameUDPServer, to.String(), err)
	}
	if _, err := s.conn.WriteToUDP(packet, to); err != nil {
		return gerrors.Transport("send", NameUDPServer, to.String(), err)
	}
	return nil
}

// Close implements Endpoint.
func (s *UDPServer) Close() error {
	return s.c.close(s.conn.Close)
}
