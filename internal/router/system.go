package router

import (
	"oscgate/internal/runtime"
	"oscgate/internal/transport"
)

// systemTable covers update checking, MIDI and the cue server.  Silent
// and open flags are true only when the argument equals 1.
func systemTable(rt runtime.Runtime) Table {
	return Table{
		"/enable-update-checking":  func(string, transport.Args) error { return rt.UpdateChecker().Enable() },
		"/disable-update-checking": func(string, transport.Args) error { return rt.UpdateChecker().Disable() },
		"/check-for-updates-now":   func(string, transport.Args) error { return rt.UpdateChecker().CheckNow() },

		"/midi-start": func(_ string, args transport.Args) error { return rt.MidiSystemStart(args.Flag(0)) },
		"/midi-stop":  func(_ string, args transport.Args) error { return rt.MidiSystemStop(args.Flag(0)) },
		"/midi-reset": func(_ string, args transport.Args) error { return rt.MidiSystemReset(args.Flag(0)) },

		"/osc-port-start": func(_ string, args transport.Args) error {
			return rt.CueServerRestart(args.Flag(1), args.Flag(0))
		},
		"/osc-port-stop": func(_ string, args transport.Args) error {
			return rt.CueServerStop(args.Flag(0))
		},
	}
}
