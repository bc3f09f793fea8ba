// Package config defines the gateway configuration: the protocol mode,
// the resolved port set, and process-level options.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	gerrors "oscgate/internal/errors"
)

// ── Protocol mode ────────────────────────────────────────────────────

// ProtocolMode selects the wire transport used to talk to the peer.
type ProtocolMode int

const (
	// ModeDatagram exchanges OSC over UDP (the default).
	ModeDatagram ProtocolMode = iota
	// ModeStream exchanges OSC over TCP.
	ModeStream
	// ModeMessageFramed exchanges JSON frames over one WebSocket, which
	// carries both directions.
	ModeMessageFramed
)

func (m ProtocolMode) String() string {
	switch m {
	case ModeDatagram:
		return "udp"
	case ModeStream:
		return "tcp"
	case ModeMessageFramed:
		return "websockets"
	default:
		return "unknown"
	}
}

// ParseProtocolMode accepts the CLI selectors (-t, -u, -w) and the mode
// names.  ok is false for anything else.
func ParseProtocolMode(s string) (mode ProtocolMode, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "-t", "t", "tcp", "stream":
		return ModeStream, true
	case "-u", "u", "udp", "datagram":
		return ModeDatagram, true
	case "-w", "w", "ws", "websocket", "websockets":
		return ModeMessageFramed, true
	default:
		return ModeDatagram, false
	}
}

// ── Port set ─────────────────────────────────────────────────────────

// PortSet holds every port the gateway and its collaborators use.
type PortSet struct {
	Server      int // gateway listens for the peer
	GUI         int // peer listens for the gateway
	Scsynth     int
	ScsynthSend int
	OSCCues     int
	Erlang      int
	OSCMidiOut  int
	OSCMidiIn   int
	WebSocket   int
}

// PortNames lists the port overrides in positional order.
var PortNames = []string{ //nolint:gochecknoglobals
	"server", "gui", "scsynth", "scsynth-send", "osc-cues",
	"erlang", "osc-midi-out", "osc-midi-in", "websocket",
}

// DefaultPorts returns the documented defaults.
func DefaultPorts() PortSet {
	return PortSet{
		Server:      DefaultServerPort,
		GUI:         DefaultGUIPort,
		Scsynth:     DefaultScsynthPort,
		ScsynthSend: DefaultScsynthPort,
		OSCCues:     DefaultOSCCuesPort,
		Erlang:      DefaultErlangPort,
		OSCMidiOut:  DefaultOSCMidiOutPort,
		OSCMidiIn:   DefaultOSCMidiInPort,
		WebSocket:   DefaultWebSocketPort,
	}
}

// NamedPort pairs a port with its role.
type NamedPort struct {
	Name string
	Port int
}

// Named returns the ports in positional order.
func (p PortSet) Named() []NamedPort {
	return []NamedPort{
		{"server", p.Server},
		{"gui", p.GUI},
		{"scsynth", p.Scsynth},
		{"scsynth-send", p.ScsynthSend},
		{"osc-cues", p.OSCCues},
		{"erlang", p.Erlang},
		{"osc-midi-out", p.OSCMidiOut},
		{"osc-midi-in", p.OSCMidiIn},
		{"websocket", p.WebSocket},
	}
}

// ProbeTarget is one preflight availability check.
type ProbeTarget struct {
	Name    string
	Network string // "udp" or "tcp"
	Port    int
}

// ProbeTargets returns the ports that must be free before the gateway
// commits to mode.  The GUI port belongs to the peer and is never
// probed.  In message-framed mode the peer endpoint already holds the
// WebSocket port and there is no separate server socket, so neither is
// probed.  Equal ports are still checked independently.
func (p PortSet) ProbeTargets(mode ProtocolMode) []ProbeTarget {
	var out []ProbeTarget
	switch mode {
	case ModeStream:
		out = append(out, ProbeTarget{"server", "tcp", p.Server})
	case ModeDatagram:
		out = append(out, ProbeTarget{"server", "udp", p.Server})
	}
	out = append(out,
		ProbeTarget{"scsynth", "udp", p.Scsynth},
		ProbeTarget{"scsynth-send", "udp", p.ScsynthSend},
		ProbeTarget{"osc-cues", "udp", p.OSCCues},
		ProbeTarget{"erlang", "udp", p.Erlang},
		ProbeTarget{"osc-midi-out", "udp", p.OSCMidiOut},
		ProbeTarget{"osc-midi-in", "udp", p.OSCMidiIn},
	)
	if mode != ModeMessageFramed {
		out = append(out, ProbeTarget{"websocket", "tcp", p.WebSocket})
	}
	return out
}

// ResolvePorts applies positional overrides on top of the defaults.
// Missing, non-numeric, or out-of-range values fall back to the default
// for that position; each fallback is reported as a ConfigError so the
// caller can log it, but none is fatal.
func ResolvePorts(overrides []string) (PortSet, []*gerrors.ConfigError) {
	ports := DefaultPorts()
	var problems []*gerrors.ConfigError

	get := func(i, def int) int {
		if i >= len(overrides) || strings.TrimSpace(overrides[i]) == "" {
			return def
		}
		raw := strings.TrimSpace(overrides[i])
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 65535 {
			problems = append(problems, &gerrors.ConfigError{
				Field:   PortNames[i] + "-port",
				Value:   raw,
				Message: "not a port in 1-65535",
				Hint:    fmt.Sprintf("using %d", def),
			})
			return def
		}
		return n
	}

	ports.Server = get(0, ports.Server)
	ports.GUI = get(1, ports.GUI)
	ports.Scsynth = get(2, ports.Scsynth)
	ports.ScsynthSend = get(3, ports.Scsynth)
	ports.OSCCues = get(4, ports.OSCCues)
	ports.Erlang = get(5, ports.Erlang)
	ports.OSCMidiOut = get(6, ports.OSCMidiOut)
	ports.OSCMidiIn = get(7, ports.OSCMidiIn)
	ports.WebSocket = get(8, ports.WebSocket)

	return ports, problems
}

// ── Config ───────────────────────────────────────────────────────────

// Config holds every tuneable for one gateway process.
type Config struct {
	Mode          ProtocolMode
	PortOverrides []string // raw positional overrides, see PortNames
	Ports         PortSet  // filled by Resolve

	Host        string
	DialTimeout time.Duration

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	LogFile string
}

// Resolve fills Ports and normalizes the remaining fields.  The
// returned problems describe values that were replaced by defaults.
func (c *Config) Resolve() []*gerrors.ConfigError {
	ports, problems := ResolvePorts(c.PortOverrides)
	c.Ports = ports

	if strings.TrimSpace(c.Host) == "" {
		c.Host = DefaultHost
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Verbose < 0 {
		c.Verbose = 0
	}
	return problems
}
