package router

import (
	"oscgate/internal/runtime"
	"oscgate/internal/transport"
)

func recordingTable(rt runtime.Runtime) Table {
	return Table{
		"/start-recording":  func(string, transport.Args) error { return rt.RecordingStart() },
		"/stop-recording":   func(string, transport.Args) error { return rt.RecordingStop() },
		"/delete-recording": func(string, transport.Args) error { return rt.RecordingDelete() },
		"/save-recording": func(_ string, args transport.Args) error {
			filename, err := args.String(0)
			if err != nil {
				return err
			}
			return rt.RecordingSave(filename)
		},
	}
}

// mixerTable resolves rt.Mixer() per call so a runtime may swap its
// mixer.
func mixerTable(rt runtime.Runtime) Table {
	return Table{
		"/mixer-invert-stereo":   func(string, transport.Args) error { return rt.Mixer().InvertStereo() },
		"/mixer-standard-stereo": func(string, transport.Args) error { return rt.Mixer().StandardStereo() },
		"/mixer-stereo-mode":     func(string, transport.Args) error { return rt.Mixer().StereoMode() },
		"/mixer-mono-mode":       func(string, transport.Args) error { return rt.Mixer().MonoMode() },
		"/mixer-hpf-disable":     func(string, transport.Args) error { return rt.Mixer().HPFDisable() },
		"/mixer-lpf-disable":     func(string, transport.Args) error { return rt.Mixer().LPFDisable() },

		"/mixer-hpf-enable": func(_ string, args transport.Args) error {
			freq, err := args.Float(0)
			if err != nil {
				return err
			}
			return rt.Mixer().HPFEnable(freq)
		},

		"/mixer-lpf-enable": func(_ string, args transport.Args) error {
			freq, err := args.Float(0)
			if err != nil {
				return err
			}
			return rt.Mixer().LPFEnable(freq)
		},

		"/mixer-amp": func(_ string, args transport.Args) error {
			amp, err := args.Float(0)
			if err != nil {
				return err
			}
			return rt.Mixer().Volume(amp, true, args.Flag(1))
		},
	}
}
