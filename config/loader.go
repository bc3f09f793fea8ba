package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags and positional ports  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the OSCGATE_ prefix:
//
//	OSCGATE_PROTOCOL        tcp | udp | websockets
//	OSCGATE_HOST            bind/dial address
//	OSCGATE_VERBOSE         0-3
//	OSCGATE_LOG_FILE        rotating log file path
//	OSCGATE_<NAME>_PORT     one per PortNames entry, e.g.
//	                        OSCGATE_SERVER_PORT, OSCGATE_SCSYNTH_SEND_PORT

const envPrefix = "OSCGATE_"

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value; unparseable values are ignored
// like any other malformed configuration.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) error {
	k := koanf.New(".")
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return fmt.Errorf("load env vars: %w", err)
	}

	if mode, ok := ParseProtocolMode(k.String("protocol")); ok {
		cfg.Mode = mode
	}
	if v := k.String("host"); v != "" {
		cfg.Host = v
	}
	if v := k.String("log_file"); v != "" {
		cfg.LogFile = v
	}
	if n, err := strconv.Atoi(k.String("verbose")); err == nil && n > 0 {
		cfg.Verbose = n
	}

	for i, name := range PortNames {
		v := k.String(envPortKey(name))
		if v == "" {
			continue
		}
		for len(cfg.PortOverrides) <= i {
			cfg.PortOverrides = append(cfg.PortOverrides, "")
		}
		cfg.PortOverrides[i] = v
	}
	return nil
}

// EnvPortVar returns the environment variable that overrides the named
// port, e.g. "OSCGATE_OSC_CUES_PORT".
func EnvPortVar(name string) string {
	return envPrefix + strings.ToUpper(envPortKey(name))
}

func envPortKey(name string) string {
	return strings.ReplaceAll(name, "-", "_") + "_port"
}
