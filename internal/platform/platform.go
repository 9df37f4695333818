// Package platform describes the machine halcyon runs on. The values are
// what the device registers itself with on the hub.
package platform

import (
	"os"
	"runtime"
)

// Info is static metadata about the local machine. Detect never fails:
// anything it cannot read is filled from the Go runtime instead.
type Info struct {
	Nodename string
	Sysname  string
	Release  string
	Version  string
	Machine  string
}

// Detect collects Info for the running machine.
func Detect() Info {
	info := uname()

	if info.Nodename == "" {
		info.Nodename, _ = os.Hostname()
	}

	if info.Sysname == "" {
		info.Sysname = runtime.GOOS
	}

	if info.Machine == "" {
		info.Machine = runtime.GOARCH
	}

	return info
}
