package stage

import "os"

// plugFitting backs Plug: an always-open-and-empty source served off
// /dev/null, or an always-full sink served off /dev/full, both with no
// pipe and no background goroutine.
type plugFitting struct {
	noopFitting
	orient orientation
}

func (p *plugFitting) bind(d Direction) error { return p.orient.bindAs("plug", d) }

func (p *plugFitting) readyFD(d Direction) (*os.File, bool) {
	switch d {
	case DirOutput: // acting as a source feeding a peer's input: reads as EOF
		if f, ok := openDeviceRead(devNull); ok {
			return f, true
		}
	case DirInput: // acting as a sink: every write fails, like a full disk
		if f, ok := openDeviceWrite(devFull); ok {
			return f, true
		}
		// No full device on this platform: a pipe whose read end is
		// already closed behaves the same from the writer's side (EPIPE
		// instead of ENOSPC, still a write error on every write).
		if r, w, err := os.Pipe(); err == nil {
			r.Close()
			return w, true
		}
	}
	return nil, false
}

// Plug returns a fitting that yields immediate end-of-file when read as a
// source, or fails every write when used as a sink, like an always-full
// device.
func Plug() *Stage {
	return New(KindPlug)
}
