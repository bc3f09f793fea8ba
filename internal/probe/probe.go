// Package probe checks that the gateway's ports are free before it
// commits to a transport.
package probe

import (
	"fmt"
	"net"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"oscgate/config"
	gerrors "oscgate/internal/errors"
	"oscgate/internal/transport"
	"oscgate/util"
)

// BootErrorAddress is the notice sent to the peer when startup fails.
const BootErrorAddress = "/exited-with-boot-error"

// Prober binds throwaway listeners on Host.
type Prober struct {
	Host   string
	Logger *util.Logger
}

// New returns a Prober for host (config.DefaultHost when empty).
func New(host string, log *util.Logger) *Prober {
	if host == "" {
		host = config.DefaultHost
	}
	if log == nil {
		log = util.NewLogger(0)
	}
	return &Prober{Host: host, Logger: log}
}

// CheckPort reports whether port can be bound on network ("udp" or
// "tcp").  The listener is released before returning.
func (p *Prober) CheckPort(network string, port int) bool {
	return p.bind(network, port) == nil
}

// Check is CheckPort on udp.
func (p *Prober) Check(port int) bool { return p.CheckPort("udp", port) }

func (p *Prober) bind(network string, port int) error {
	addr := util.FormatAddr(p.Host, port)
	switch network {
	case "tcp":
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		return ln.Close()
	case "udp", "":
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			return err
		}
		return pc.Close()
	default:
		return fmt.Errorf("unsupported network %q", network)
	}
}

// EnsurePort fails with a *errors.BindError when target's port is
// taken.  Before returning it makes one attempt to tell peer why; an
// unreachable peer is tolerated.
func (p *Prober) EnsurePort(target config.ProbeTarget, peer transport.Endpoint) error {
	err := p.bind(target.Network, target.Port)
	if err == nil {
		p.Logger.Debug("port %d/%s (%s) is free", target.Port, target.Network, target.Name)
		return nil
	}

	p.Logger.Error("Port %d unavailable (%s/%s): %v", target.Port, target.Name, target.Network, err)
	if who := Holder(target.Network, target.Port); who != "" {
		p.Logger.Info("port %d is held by %s", target.Port, who)
	}
	Notify(p.Logger, peer, fmt.Sprintf("Port unavailable: %d, is Sonic Pi already running?", target.Port))
	return gerrors.Bind(target.Network, target.Port, err)
}

// EnsureAll runs EnsurePort over targets in order and stops at the
// first failure.
func (p *Prober) EnsureAll(targets []config.ProbeTarget, peer transport.Endpoint) error {
	for _, t := range targets {
		if err := p.EnsurePort(t, peer); err != nil {
			return err
		}
	}
	return nil
}

// Notify sends one boot-error notice to peer.  Delivery failures are
// logged and otherwise ignored.
func Notify(log *util.Logger, peer transport.Endpoint, msg string) {
	if peer == nil {
		return
	}
	if err := peer.Send(BootErrorAddress, msg); err != nil {
		log.Verbose("boot error notice not delivered: %v", err)
	}
}

// Holder describes the local process bound to port on network, e.g.
// "scsynth (pid 4242)".  It returns "" when the connection table cannot
// be read or nobody is found.
func Holder(network string, port int) string {
	kind := "udp"
	if network == "tcp" {
		kind = "tcp"
	}
	conns, err := gnet.Connections(kind)
	if err != nil {
		return ""
	}
	for _, c := range conns {
		if int(c.Laddr.Port) != port || c.Pid == 0 {
			continue
		}
		if kind == "tcp" && c.Status != "LISTEN" {
			continue
		}
		return describe(c.Pid)
	}
	return ""
}

func describe(pid int32) string {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return fmt.Sprintf("pid %d", pid)
	}
	name, err := proc.Name()
	if err != nil || name == "" {
		return fmt.Sprintf("pid %d", pid)
	}
	return fmt.Sprintf("%s (pid %d)", name, pid)
}
