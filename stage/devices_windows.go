//go:build windows
// +build windows

package stage

import (
	"crypto/rand"
	"io"
	"os"
)

// Windows has no /dev/zero, /dev/full, or /dev/urandom, so Vent's source
// and PRNG's source fall back to a background goroutine feeding one end of
// an os.Pipe, closed automatically once the reader goes away (Read/Write
// on the far end then simply errors, same as an unplugged pipe elsewhere
// in this package).
func openDeviceRead(name string) (*os.File, bool) {
	switch name {
	case devNull:
		f, err := os.Open(os.DevNull)
		if err != nil {
			return nil, false
		}
		return f, true
	case devZero:
		return pipeFrom(zeroReader{})
	case devURandom:
		return pipeFrom(rand.Reader)
	default:
		return nil, false
	}
}

func openDeviceWrite(name string) (*os.File, bool) {
	if name != devNull {
		return nil, false
	}
	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return nil, false
	}
	return f, true
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func pipeFrom(r io.Reader) (*os.File, bool) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, false
	}
	go func() {
		io.Copy(pw, r)
		pw.Close()
	}()
	return pr, true
}

const (
	devNull    = "/dev/null"
	devZero    = "/dev/zero"
	devFull    = "/dev/full"
	devURandom = "/dev/urandom"
)
