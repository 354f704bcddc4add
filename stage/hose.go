package stage

import (
	"bufio"
	"io"
	"os"

	"github.com/creack/pty"
)

// HoseOption configures a Hose at construction time.
type HoseOption func(*hoseFitting)

// WithGushing makes the Hose a source: the caller writes into Handle() and
// those bytes flow to whatever peer the Hose feeds. The default orientation
// is sucking (the Hose is a sink; the caller reads Handle() for whatever a
// peer writes to it).
func WithGushing() HoseOption {
	return func(h *hoseFitting) { h.gushing = true }
}

// WithPTY backs the Hose with a pseudo-terminal (via creack/pty) instead of
// a plain OS pipe, so the linked peer sees a terminal device: useful for
// external programs that behave differently when their stdio isn't a tty.
func WithPTY() HoseOption {
	return func(h *hoseFitting) { h.usePTY = true }
}

// hoseFitting backs Hose: a plain os.Pipe (or a PTY pair) opened eagerly at
// construction time, one end kept for the caller's direct use, the other
// handed to the linked peer as a ready descriptor. No background goroutine
// is needed; the data simply flows through the OS.
type hoseFitting struct {
	noopFitting

	gushing bool
	usePTY  bool
	orient  orientation

	handle *os.File // the caller's own end
	ready  *os.File // the end handed to the linked peer

	reader *bufio.Reader // wraps handle for GetLine on a sucking hose
}

func (h *hoseFitting) open() error {
	if h.usePTY {
		master, slave, err := pty.Open()
		if err != nil {
			return resourceErrorf("pty.Open", err)
		}
		h.handle = master
		h.ready = slave
		return nil
	}

	r, w, err := os.Pipe()
	if err != nil {
		return resourceErrorf("os.Pipe", err)
	}
	if h.gushing {
		h.handle = w
		h.ready = r
	} else {
		h.handle = r
		h.ready = w
	}
	return nil
}

func (h *hoseFitting) bind(d Direction) error { return h.orient.bindAs("hose", d) }

func (h *hoseFitting) readyFD(d Direction) (*os.File, bool) {
	if h.gushing && d == DirOutput {
		return h.ready, true
	}
	if !h.gushing && d == DirInput {
		return h.ready, true
	}
	return nil, false
}

// getLine reads the next line from a sucking hose's handle, terminator
// included, blocking until the peer writes one or closes. It lazily starts
// the pipeline feeding the hose, so the peer is actually producing.
func (h *hoseFitting) getLine(s *Stage) (string, bool, error) {
	if h.gushing {
		return "", false, configErrorf("GetLine: %s is gushing; its handle is write-only", s.Name())
	}
	if err := s.Execute(nil); err != nil {
		return "", false, err
	}
	if h.reader == nil {
		h.reader = bufio.NewReader(h.handle)
	}
	line, err := h.reader.ReadString('\n')
	if line != "" {
		return line, true, nil
	}
	if err == nil || err == io.EOF {
		return "", false, nil
	}
	return "", false, err
}

// Handle returns the caller's own end of the Hose: a writer when gushing,
// a reader when sucking.
func (s *Stage) Handle() (*os.File, error) {
	h, ok := s.fitting.(*hoseFitting)
	if !ok {
		return nil, configErrorf("Handle: %s is not a Hose", s.Name())
	}
	return h.handle, nil
}

// Print writes text into a gushing Hose's handle, flowing it to the linked
// peer's input. It lazily starts the pipeline the hose feeds, so the peer
// is actually consuming.
func (s *Stage) Print(text string) error {
	h, ok := s.fitting.(*hoseFitting)
	if !ok {
		return configErrorf("Print: %s is not a Hose", s.Name())
	}
	if !h.gushing {
		return configErrorf("Print: %s is sucking; its handle is read-only", s.Name())
	}
	if err := s.Execute(nil); err != nil {
		return err
	}
	_, err := h.handle.WriteString(text)
	return err
}

// Close closes the Hose's handle. On a gushing hose the linked peer sees
// end-of-file on its input; on a sucking hose the peer's next write fails
// with a broken pipe.
func (s *Stage) Close() error {
	h, ok := s.fitting.(*hoseFitting)
	if !ok {
		return configErrorf("Close: %s is not a Hose", s.Name())
	}
	return h.handle.Close()
}

// Hose returns a fitting exposing a raw OS handle for the caller to read or
// write directly, plumbed to whatever peer it's linked to.
func Hose(opts ...HoseOption) *Stage {
	s := New(KindHose)
	h := s.fitting.(*hoseFitting)
	for _, opt := range opts {
		opt(h)
	}
	// The handle's orientation is fixed by construction: a gushing hose
	// serves a peer's input from its output slot, a sucking hose drinks a
	// peer's output through its input slot.
	if h.gushing {
		h.orient = orientation{dir: DirOutput, set: true}
	} else {
		h.orient = orientation{dir: DirInput, set: true}
	}
	if err := h.open(); err != nil {
		s.setConfigError(err)
		return s
	}
	s.recomputeReady()
	return s
}
