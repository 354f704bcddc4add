//go:build !windows
// +build !windows

package stage

import "os"

// openDeviceRead opens name read-only (openDeviceWrite: write-only) and
// returns nil, false
// if the device does not exist on this platform, so callers can fall back
// to a synthetic implementation instead of failing outright.
func openDeviceRead(name string) (*os.File, bool) {
	f, err := os.Open(name)
	if err != nil {
		return nil, false
	}
	return f, true
}

func openDeviceWrite(name string) (*os.File, bool) {
	f, err := os.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return nil, false
	}
	return f, true
}

const (
	devNull    = "/dev/null"
	devZero    = "/dev/zero"
	devFull    = "/dev/full"
	devURandom = "/dev/urandom"
)
