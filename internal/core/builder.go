package core

import (
	"strconv"
	"strings"

	"oscgate/config"
	"oscgate/internal/metrics"
	"oscgate/internal/runtime"
	"oscgate/util"
)

// Build constructs the gateway for cfg.  Configuration problems are
// logged and replaced by defaults; they are never fatal.
func Build(cfg *config.Config, logger *util.Logger, version string) (Mode, error) {
	for _, p := range cfg.Resolve() {
		logger.Debug("%v", p)
	}
	return &Gateway{
		Config:  cfg,
		Version: runtime.Version{Name: version, Num: VersionNum(version)},
		Logger:  logger,
		Metrics: metrics.New(),
	}, nil
}

// VersionNum folds "major.minor.patch" into one comparable number, e.g.
// "4.5.1" is 451.  Missing or non-numeric parts count as zero.
func VersionNum(v string) int {
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	n := 0
	for i := 0; i < 3; i++ {
		n *= 10
		if i < len(parts) {
			d, _ := strconv.Atoi(strings.TrimSpace(parts[i]))
			n += d
		}
	}
	return n
}
