package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"oscgate/config"
	"oscgate/internal/events"
	"oscgate/internal/metrics"
	"oscgate/internal/probe"
	"oscgate/internal/pump"
	"oscgate/internal/router"
	"oscgate/internal/runtime"
	"oscgate/internal/transport"
	"oscgate/util"
)

// Gateway is the Mode that runs the OSC gateway.
type Gateway struct {
	Config  *config.Config // Resolve must have been called
	Factory Factory
	Prober  *probe.Prober
	Queue   *events.Queue
	Runtime runtime.Runtime // nil selects a Local runtime on Queue
	Version runtime.Version
	Logger  *util.Logger
	Metrics *metrics.Collector

	opened []transport.Endpoint
}

func (g *Gateway) defaults() {
	if g.Logger == nil {
		g.Logger = util.NewLogger(0)
	}
	if g.Metrics == nil {
		g.Metrics = metrics.New()
	}
	if g.Queue == nil {
		g.Queue = events.NewQueue()
	}
	if g.Prober == nil {
		g.Prober = probe.New(g.Config.Host, g.Logger)
	}
	if g.Factory == nil {
		g.Factory = NetFactory{Options: transport.Options{
			Host:        g.Config.Host,
			DialTimeout: g.Config.DialTimeout,
			Logger:      g.Logger,
			Metrics:     g.Metrics,
		}}
	}
	if g.Runtime == nil {
		g.Runtime = runtime.NewLocal(g.Queue, g.Logger, runtime.LocalOptions{
			Version: g.Version,
			Latest:  g.Version,
		})
	}
}

func (g *Gateway) open(kind Kind, port int) (transport.Endpoint, error) {
	ep, err := g.Factory.Open(kind, port)
	if err != nil {
		return nil, err
	}
	g.opened = append(g.opened, ep)
	g.Logger.Verbose("opened %s on port %d", ep.Name(), port)
	return ep, nil
}

func (g *Gateway) closeAll() {
	for i := len(g.opened) - 1; i >= 0; i-- {
		if err := g.opened[i].Close(); err != nil {
			g.Logger.Debug("closing %s: %v", g.opened[i].Name(), err)
		}
	}
	g.opened = nil
}

// Run starts the gateway and blocks until the pump stops, either on an
// Exit event or because ctx was cancelled.  A port that cannot be
// acquired ends the run with an error after one notice to the peer.
func (g *Gateway) Run(ctx context.Context) error {
	g.defaults()
	defer g.closeAll()

	cfg, ports, log := g.Config, g.Config.Ports, g.Logger
	log.Info("starting in %s mode", cfg.Mode)

	// 1. peer
	var peerKind Kind
	var peerPort int
	switch cfg.Mode {
	case config.ModeStream:
		peerKind, peerPort = KindTCPClient, ports.GUI
	case config.ModeMessageFramed:
		peerKind, peerPort = KindWebSocketServer, ports.WebSocket
	default:
		peerKind, peerPort = KindUDPClient, ports.GUI
	}
	peer, err := g.open(peerKind, peerPort)
	if err != nil {
		log.Error("could not open %s on port %d: %v", peerKind, peerPort, err)
		return fmt.Errorf("open peer endpoint: %w", err)
	}

	// 2. preflight
	if err := g.Prober.EnsureAll(ports.ProbeTargets(cfg.Mode), peer); err != nil {
		return err
	}

	// 3. primary
	var primary transport.Endpoint
	switch cfg.Mode {
	case config.ModeStream:
		primary, err = g.open(KindTCPServer, ports.Server)
	case config.ModeMessageFramed:
		primary = peer
	default:
		primary, err = g.open(KindUDPServer, ports.Server)
	}
	if err != nil {
		log.Error("could not open server port %d: %v", ports.Server, err)
		probe.Notify(log, peer, fmt.Sprintf("Failed to open server port %d, is scsynth already running?", ports.Server))
		return fmt.Errorf("open server endpoint: %w", err)
	}

	// 4. secondary WebSocket
	ws := peer
	if cfg.Mode != config.ModeMessageFramed {
		if ws, err = g.open(KindWebSocketServer, ports.WebSocket); err != nil {
			log.Error("could not open websocket port %d: %v", ports.WebSocket, err)
			probe.Notify(log, peer, fmt.Sprintf("Failed to open websocket port %d", ports.WebSocket))
			return fmt.Errorf("open websocket endpoint: %w", err)
		}
	}

	// 5. routing
	inbound, err := distinctInbound(primary, ws)
	if err != nil {
		return err
	}
	r := router.New(g.Runtime, g.Queue, log, g.Metrics)
	for _, ep := range inbound {
		r.Mount(ep)
	}

	p := pump.New(pump.Options{
		Queue:     g.Queue,
		Peer:      peer,
		WebSocket: ws,
		Logger:    log,
		Metrics:   g.Metrics,
	})

	// 6. supervise
	err = g.supervise(ctx, inbound, p)
	log.Verbose("metrics: %s", g.Metrics.JSON())
	if err != nil {
		log.Error("endpoint failed: %v", err)
		return err
	}
	log.Info("stopped")
	return nil
}

// supervise runs the endpoint loops and the pump.  The loops outlive
// ctx so the pump's shutdown notice can still go out; they stop once
// the pump has stopped.  A failing loop stops the pump.
func (g *Gateway) supervise(ctx context.Context, inbound []transport.Inbound, p *pump.Pump) error {
	loopCtx, stopLoops := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoops()
	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()

	grp, gctx := errgroup.WithContext(loopCtx)
	for _, ep := range inbound {
		ep := ep
		grp.Go(func() error { return ep.Serve(gctx) })
	}
	grp.Go(func() error {
		<-gctx.Done()
		stopPump()
		return nil
	})
	grp.Go(func() error {
		p.Run(pumpCtx)
		stopLoops()
		return nil
	})
	return grp.Wait()
}

// distinctInbound returns the receiving side of each endpoint once.
func distinctInbound(eps ...transport.Endpoint) ([]transport.Inbound, error) {
	var out []transport.Inbound
	seen := make(map[transport.Endpoint]bool)
	for _, ep := range eps {
		if seen[ep] {
			continue
		}
		seen[ep] = true
		in, ok := ep.(transport.Inbound)
		if !ok {
			return nil, fmt.Errorf("%s cannot receive commands", ep.Name())
		}
		out = append(out, in)
	}
	return out, nil
}
