package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultServerPort is where the gateway listens for the peer.
	DefaultServerPort = 4557

	// DefaultGUIPort is where the peer listens for the gateway.
	DefaultGUIPort = 4558

	// DefaultScsynthPort is the synth engine's listen port.  The
	// synth-engine send port defaults to the same value.
	DefaultScsynthPort = 4556

	// DefaultOSCCuesPort receives external messages turned into cues.
	DefaultOSCCuesPort = 4560

	// DefaultErlangPort is the auxiliary scheduler/router port.
	DefaultErlangPort = 4561

	// DefaultWebSocketPort serves the message-framed endpoint.
	DefaultWebSocketPort = 4562

	// DefaultOSCMidiOutPort relays outgoing MIDI as OSC.
	DefaultOSCMidiOutPort = 4563

	// DefaultOSCMidiInPort receives incoming MIDI as OSC.
	DefaultOSCMidiInPort = 4564

	// DefaultHost is the address every endpoint binds or dials.
	DefaultHost = "127.0.0.1"

	// DefaultDialTimeout bounds the stream client's connect attempt so
	// an absent peer is detected quickly.
	DefaultDialTimeout = 500 * time.Millisecond

	// DefaultPeerFailures is how many consecutive failed dials trip the
	// stream client's circuit breaker.
	DefaultPeerFailures = 3

	// DefaultPeerRetry is how long a tripped breaker rejects dials.
	DefaultPeerRetry = 2 * time.Second

	// DefaultInboxSize bounds each endpoint's queue of decoded, not yet
	// dispatched inbound commands.
	DefaultInboxSize = 256
)
