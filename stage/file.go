package stage

import "os"

// fileFitting is the endpoint behind the path and raw-handle link forms: a
// Hose whose far side is a file (or a handle the caller already owns)
// instead of a pipe the caller holds. As a source it opens the path for
// reading; as a sink it creates/truncates the path for writing.
type fileFitting struct {
	noopFitting
	orient orientation

	path   string
	handle *os.File
}

func (f *fileFitting) bind(d Direction) error { return f.orient.bindAs("file", d) }

func (f *fileFitting) readyFD(d Direction) (*os.File, bool) {
	if f.handle != nil {
		return f.handle, true
	}
	switch d {
	case DirOutput: // serving a peer's input: read the file
		g, err := os.Open(f.path)
		if err != nil {
			return nil, false
		}
		return g, true
	case DirInput: // swallowing a peer's output: (over)write the file
		g, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
		if err != nil {
			return nil, false
		}
		return g, true
	}
	return nil, false
}

// File returns a Hose-shaped endpoint for the named path: linked as a
// peer's input it feeds the file's bytes; linked as a peer's output or
// stderr it collects into the file, creating or truncating it.
func File(path string) *Stage {
	s := New(KindHose)
	s.fitting = &fileFitting{path: path}
	return s
}

// FileHandle wraps an already-open descriptor the caller owns as an
// endpoint, for either direction. The handle is donated: once the linked
// peer has forked, the library closes its copy like any other plumbed
// descriptor.
func FileHandle(f *os.File) *Stage {
	s := New(KindHose)
	s.fitting = &fileFitting{handle: f}
	return s
}
