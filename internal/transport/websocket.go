package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	gerrors "oscgate/internal/errors"
	"oscgate/internal/metrics"
	"oscgate/internal/osc"
	"oscgate/util"
)

// Frame is the JSON text message exchanged with browser peers.
type Frame struct {
	Address string        `json:"address"`
	Args    []interface{} `json:"args"`
}

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{ //nolint:gochecknoglobals
	ReadBufferSize:  util.DefaultBufSize,
	WriteBufferSize: util.DefaultBufSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClient struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex // serializes writes
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// WebSocketServer is the message-framed, full-duplex endpoint.  Each
// connection reads JSON frames (or binary OSC packets) into the shared
// dispatcher; Send broadcasts a JSON frame to every connected client.
type WebSocketServer struct {
	*dispatcher
	ln      net.Listener
	srv     *http.Server
	log     *util.Logger
	metrics *metrics.Collector
	c       *closer

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// OpenWebSocketServer binds host:port.  Connections are accepted once
// Serve runs.
func OpenWebSocketServer(port int, o Options) (*WebSocketServer, error) {
	o = o.withDefaults()
	ln, err := net.Listen("tcp", util.FormatAddr(o.Host, port))
	if err != nil {
		return nil, gerrors.Bind("tcp", port, err)
	}
	s := &WebSocketServer{
		dispatcher: newDispatcher(NameWebSocketServer, o),
		ln:         ln,
		log:        o.Logger,
		metrics:    o.Metrics,
		c:          newCloser(),
		clients:    make(map[string]*wsClient),
	}
	s.srv = &http.Server{ReadHeaderTimeout: 10 * time.Second}
	o.Logger.Verbose("%s: listening on %s", NameWebSocketServer, ln.Addr())
	return s, nil
}

// Name implements Endpoint.
func (s *WebSocketServer) Name() string { return NameWebSocketServer }

// Addr returns the listening address.
func (s *WebSocketServer) Addr() net.Addr { return s.ln.Addr() }

// Clients returns the number of connected clients.
func (s *WebSocketServer) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Serve implements Inbound.
func (s *WebSocketServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	s.srv.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.accept(ctx, w, r)
	})

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
		err := s.srv.Serve(s.ln)
		if errors.Is(err, http.ErrServerClosed) || s.c.closed() || util.IsHarmless(err) {
			return nil
		}
		return fmt.Errorf("%s serve: %w", NameWebSocketServer, err)
	})
	return g.Wait()
}

func (s *WebSocketServer) accept(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("%s: upgrade from %s: %v", NameWebSocketServer, r.RemoteAddr, err)
		return
	}
	c := &wsClient{id: uuid.NewString(), ws: ws}

	s.mu.Lock()
	if s.c.closed() {
		s.mu.Unlock()
		ws.Close() //nolint:errcheck
		return
	}
	s.clients[c.id] = c
	s.mu.Unlock()
	s.metrics.ClientConnected()
	s.log.Verbose("%s: client %s connected from %s", NameWebSocketServer, c.id, r.RemoteAddr)

	defer s.drop(c)
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!util.IsHarmless(err) && !s.c.closed() {
				s.log.Warn("%s: client %s: %v", NameWebSocketServer, c.id, err)
			}
			return
		}
		switch kind {
		case websocket.TextMessage:
			m, err := DecodeFrame(data)
			if err != nil {
				s.log.Warn("%s: dropping malformed frame from %s: %v", NameWebSocketServer, c.id, err)
				continue
			}
			if !s.enqueue(ctx, NewCommand(NameWebSocketServer, c.id, m)) {
				return
			}
		case websocket.BinaryMessage:
			s.deliver(ctx, data, c.id)
		}
	}
}

func (s *WebSocketServer) drop(c *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()
	if ok {
		s.metrics.ClientDisconnected()
		s.log.Verbose("%s: client %s disconnected", NameWebSocketServer, c.id)
	}
	c.ws.Close() //nolint:errcheck
}

// Send implements Endpoint.
func (s *WebSocketServer) Send(address string, args ...interface{}) error {
	data, err := EncodeFrame(address, args...)
	if err != nil {
		return gerrors.Transport("encode", NameWebSocketServer, "", err)
	}

	s.mu.RLock()
	targets := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return gerrors.Transport("send", NameWebSocketServer, "", gerrors.ErrNotConnected)
	}
	var errs []error
	for _, c := range targets {
		if err := c.write(data); err != nil {
			errs = append(errs, gerrors.Transport("send", NameWebSocketServer, c.id, err))
			s.drop(c)
		}
	}
	return gerrors.Join(errs...)
}

// Close implements Endpoint.  Connected clients are disconnected.
func (s *WebSocketServer) Close() error {
	return s.c.close(func() error {
		err := s.srv.Close()
		if cerr := s.ln.Close(); err == nil && !util.IsHarmless(cerr) {
			err = cerr
		}
		s.mu.Lock()
		for _, c := range s.clients {
			c.ws.Close() //nolint:errcheck
		}
		s.mu.Unlock()
		return err
	})
}

// ── Frame codec ──────────────────────────────────────────────────────

// EncodeFrame renders address and args as a JSON frame.
func EncodeFrame(address string, args ...interface{}) ([]byte, error) {
	f := Frame{Address: address, Args: make([]interface{}, len(args))}
	for i, a := range args {
		v, err := osc.Normalize(a)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		f.Args[i] = v
	}
	return json.Marshal(f)
}

// DecodeFrame parses a JSON frame.  Integral numbers become int32 and
// the rest float32, matching what an OSC packet would carry.
func DecodeFrame(data []byte) (osc.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f Frame
	if err := dec.Decode(&f); err != nil {
		return osc.Message{}, err
	}
	if f.Address == "" {
		return osc.Message{}, fmt.Errorf("frame has no address")
	}
	args := make([]interface{}, 0, len(f.Args))
	for _, a := range f.Args {
		switch v := a.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				args = append(args, int32(n))
			} else if x, err := v.Float64(); err == nil {
				args = append(args, float32(x))
			} else {
				args = append(args, v.String())
			}
		case string, bool:
			args = append(args, v)
		case nil:
			args = append(args, nil)
		default:
			// nested arrays and objects are passed on as JSON text
			raw, _ := json.Marshal(v)
			args = append(args, string(raw))
		}
	}
	return osc.Message{Address: f.Address, Args: args}, nil
}
