package util

import (
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

var (
	platformOnce sync.Once
	platformDesc string
)

// PlatformDescription describes the host for version reports, e.g.
// "linux ubuntu 22.04 x86_64".  It falls back to GOOS/GOARCH when the
// host cannot be inspected.  The result is computed once.
func PlatformDescription() string {
	platformOnce.Do(func() {
		platformDesc = runtime.GOOS + " " + runtime.GOARCH
		info, err := host.Info()
		if err != nil || info == nil {
			return
		}
		parts := make([]string, 0, 4)
		for _, p := range []string{info.OS, info.Platform, info.PlatformVersion, info.KernelArch} {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) > 0 {
			platformDesc = strings.Join(parts, " ")
		}
	})
	return platformDesc
}
