package stage

import (
	"bytes"
	"os"

	"github.com/gopipeline/plumbline/internal/tracing"
)

// BucketOption configures a Bucket at construction time.
type BucketOption func(*bucketFitting)

// WithContents seeds a Bucket for pouring: it will act as a source,
// feeding contents to whatever peer reads from it.
func WithContents(contents []byte) BucketOption {
	return func(b *bucketFitting) {
		b.pour = true
		b.bound = true
		b.contents = append([]byte(nil), contents...)
	}
}

// WithCollectMax caps how many bytes a filling Bucket retains. Once the
// cap is reached and more input is pending, the Bucket records the
// truncation, emits a warning naming the upstream command, and closes its
// read end, so the producer sees a broken pipe rather than blocking.
func WithCollectMax(max int) BucketOption {
	return func(b *bucketFitting) { b.collectMax = max }
}

// bucketFitting backs Bucket: an in-memory buffer that either pours
// pre-seeded contents out as a source, or fills itself from whatever a peer
// writes in as a sink. Unlike Plug/Vent it always needs a real pipe and a
// background goroutine to spool through.
type bucketFitting struct {
	pour       bool
	bound      bool
	contents   []byte
	collectMax int
	truncated  bool

	buf       bytes.Buffer
	lineIdx   int
	lines     []string
	linesDone bool

	done chan struct{}
	err  error
}

func (b *bucketFitting) readyFD(Direction) (*os.File, bool) { return nil, false }

// bind fixes the bucket's orientation the first time either slot is
// linked: output-side means pouring, input-side means filling. A bucket
// already committed to one orientation rejects the other.
func (b *bucketFitting) bind(d Direction) error {
	switch d {
	case DirOutput:
		if b.bound && !b.pour {
			return configErrorf("bucket is filling; cannot also pour")
		}
		b.pour = true
		b.bound = true
		return nil
	case DirInput:
		if b.bound && b.pour {
			return configErrorf("bucket is pouring; cannot also fill")
		}
		b.bound = true
		return nil
	default:
		return configErrorf("bucket has no stderr slot")
	}
}

func (b *bucketFitting) configured() error {
	if b.pour && len(b.contents) == 0 {
		return configErrorf("pouring bucket is empty")
	}
	return nil
}

func (b *bucketFitting) activeSlots() []Direction {
	if b.pour {
		return []Direction{DirOutput}
	}
	return []Direction{DirInput}
}

func (b *bucketFitting) start(s *Stage) error {
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		defer s.closeOwned()

		if b.pour {
			s.mu.Lock()
			f := s.fd[DirOutput]
			s.mu.Unlock()
			if f == nil {
				return
			}
			_, b.err = f.Write(b.contents)
			return
		}

		s.mu.Lock()
		f := s.fd[DirInput]
		s.mu.Unlock()
		if f == nil {
			return
		}

		if b.collectMax <= 0 {
			_, b.err = b.buf.ReadFrom(f)
			return
		}

		if err := b.fillCapped(s, f); err != nil {
			b.err = err
		}
	}()
	return nil
}

// fillCapped reads at most collectMax bytes, then probes for one more: if
// the producer still has data, the bucket is truncated and its read end is
// closed (by the deferred closeOwned), which breaks the producer's pipe
// rather than leaving it blocked on a sink nobody drains.
func (b *bucketFitting) fillCapped(s *Stage, f *os.File) error {
	buf := make([]byte, 4096)
	for b.buf.Len() < b.collectMax {
		want := b.collectMax - b.buf.Len()
		if want > len(buf) {
			want = len(buf)
		}
		n, err := f.Read(buf[:want])
		b.buf.Write(buf[:n])
		if err != nil {
			return nil // EOF before the cap: nothing truncated
		}
	}

	var probe [1]byte
	if n, _ := f.Read(probe[:]); n > 0 {
		b.truncated = true
		b.warnTruncated(s)
	}
	return nil
}

func (b *bucketFitting) warnTruncated(s *Stage) {
	upstream := "unknown"
	if up := s.peerAt(DirInput); up != nil {
		upstream = up.commandLine()
	}
	tracing.Warnf("bucket(filling): not spooling more than %d bytes from `%s`",
		b.collectMax, upstream)
}

func (b *bucketFitting) wait(*Stage) error {
	if b.done != nil {
		<-b.done
	}
	return b.err
}

// Bucket returns a fitting that either pours pre-seeded contents (when
// WithContents is given) or fills itself from whatever is written to it.
func Bucket(opts ...BucketOption) *Stage {
	s := New(KindBucket)
	b := s.fitting.(*bucketFitting)
	for _, opt := range opts {
		opt(b)
	}
	s.recomputeReady()
	return s
}

// SetCollectMax caps how many bytes a filling Bucket retains, equivalent
// to constructing it with WithCollectMax. It fails once the bucket has
// started collecting.
func (s *Stage) SetCollectMax(max int) error {
	b, ok := s.fitting.(*bucketFitting)
	if !ok {
		return configErrorf("SetCollectMax: %s is not a Bucket", s.Name())
	}
	if s.Running() || s.Done() {
		return configErrorf("SetCollectMax: %s has already started", s.Name())
	}
	b.collectMax = max
	return nil
}

// Truncated reports whether a filling Bucket hit its collect cap and
// discarded the producer's excess.
func (s *Stage) Truncated() bool {
	b, ok := s.fitting.(*bucketFitting)
	if !ok {
		return false
	}
	return b.truncated
}

// ensureObserved forces the bucket (and everything upstream of it) to run
// to completion before its contents are inspected: execution is deferred
// to the first observing call.
func (s *Stage) ensureObserved() error {
	if err := s.Execute(nil); err != nil {
		return err
	}
	return s.Wait()
}

// Contents returns a filling Bucket's accumulated bytes, first running the
// pipeline that feeds it to completion.
func (s *Stage) Contents() ([]byte, error) {
	if err := s.ensureObserved(); err != nil {
		return nil, err
	}
	b, ok := s.fitting.(*bucketFitting)
	if !ok {
		return nil, configErrorf("Contents: %s is not a Bucket", s.Name())
	}
	return b.buf.Bytes(), nil
}

// GetLine returns the next line, terminator included, and true, or
// "", false once exhausted. On a Bucket it walks the buffered contents
// (concatenating every returned line reconstructs Contents); on a sucking
// Hose it reads the next line from the handle, blocking until the peer
// writes one or closes.
func (s *Stage) GetLine() (string, bool, error) {
	if h, ok := s.fitting.(*hoseFitting); ok {
		return h.getLine(s)
	}
	if err := s.ensureObserved(); err != nil {
		return "", false, err
	}
	b, ok := s.fitting.(*bucketFitting)
	if !ok {
		return "", false, configErrorf("GetLine: %s is not a Bucket", s.Name())
	}
	if !b.linesDone {
		data := b.buf.Bytes()
		for len(data) > 0 {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				b.lines = append(b.lines, string(data))
				break
			}
			b.lines = append(b.lines, string(data[:i+1]))
			data = data[i+1:]
		}
		b.linesDone = true
	}
	if b.lineIdx >= len(b.lines) {
		return "", false, nil
	}
	line := b.lines[b.lineIdx]
	b.lineIdx++
	return line, true, nil
}
