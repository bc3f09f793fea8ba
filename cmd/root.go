// Package cmd wires up the CLI flags and starts the gateway.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"oscgate/config"
	"oscgate/internal/core"
	"oscgate/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X oscgate/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the gateway until it stops.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout)
}

type cliOptions struct {
	showVersion bool
	showHelp    bool
	dryRun      bool
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	cfg, opts, fs, err := parse(args)
	if err != nil {
		return err
	}
	if opts.showHelp {
		printUsage(fs)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(out, "oscgate %s\n", version)
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if cfg.LogFile != "" {
		logger.SetFile(util.LogFile{Path: cfg.LogFile})
	}
	defer logger.Close() //nolint:errcheck

	mode, err := core.Build(cfg, logger, version)
	if err != nil {
		return err
	}
	if opts.dryRun {
		printPlan(out, cfg)
		return nil
	}
	return mode.Run(ctx)
}

// parse layers flags and positional ports over the environment.
func parse(args []string) (*config.Config, cliOptions, *flag.FlagSet, error) {
	cfg := &config.Config{}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, cliOptions{}, nil, fmt.Errorf("environment: %w", err)
	}
	envVerbose := cfg.Verbose

	var opts cliOptions
	fs := flag.NewFlagSet("oscgate", flag.ContinueOnError)

	// ── protocol ─────────────────────────────────────────────────
	var useTCP, useUDP, useWS bool
	fs.BoolVarP(&useTCP, "tcp", "t", false, "Talk to the peer over TCP")
	fs.BoolVarP(&useUDP, "udp", "u", false, "Talk to the peer over UDP (default)")
	fs.BoolVarP(&useWS, "websockets", "w", false, "Talk to the peer over one WebSocket")

	// ── network ──────────────────────────────────────────────────
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Address to bind and dial")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also log to this file, rotated by size")

	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print the resolved ports and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return nil, opts, fs, err
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = envVerbose
	}

	selected := 0
	for _, sel := range []struct {
		on   bool
		mode config.ProtocolMode
	}{{useTCP, config.ModeStream}, {useUDP, config.ModeDatagram}, {useWS, config.ModeMessageFramed}} {
		if sel.on {
			selected++
			cfg.Mode = sel.mode
		}
	}
	if selected > 1 {
		return nil, opts, fs, fmt.Errorf("choose one of -t, -u or -w")
	}

	// ── positional ports ─────────────────────────────────────────
	for i, arg := range fs.Args() {
		if i >= len(config.PortNames) {
			break
		}
		for len(cfg.PortOverrides) <= i {
			cfg.PortOverrides = append(cfg.PortOverrides, "")
		}
		cfg.PortOverrides[i] = arg
	}
	return cfg, opts, fs, nil
}

func printPlan(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "mode: %s\nhost: %s\n", cfg.Mode, cfg.Host)
	for _, p := range cfg.Ports.Named() {
		fmt.Fprintf(w, "%-13s %d\n", p.Name, p.Port)
	}
	fmt.Fprintln(w, "probe:")
	for _, t := range cfg.Ports.ProbeTargets(cfg.Mode) {
		fmt.Fprintf(w, "  %d/%s (%s)\n", t.Port, t.Network, t.Name)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `oscgate – OSC gateway v%s

Bridges a GUI or browser peer to the runtime over TCP, UDP or WebSockets.

Usage:
  oscgate [-t|-u|-w] [server gui scsynth scsynth-send osc-cues erlang osc-midi-out osc-midi-in websocket]

Missing or invalid ports fall back to the defaults
(4557 4558 4556 4556 4560 4561 4563 4564 4562).

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  OSCGATE_PROTOCOL, OSCGATE_HOST, OSCGATE_VERBOSE, OSCGATE_LOG_FILE,
  OSCGATE_<NAME>_PORT (e.g. %s)

Examples:
  oscgate                                     UDP on the default ports
  oscgate -t 5557 5558                        TCP, custom server and GUI ports
  oscgate -w --dry-run                        Show the WebSocket plan
`, config.EnvPortVar("osc-cues"))
}
