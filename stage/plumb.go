package stage

import (
	"os"

	"go.uber.org/zap"

	"github.com/gopipeline/plumbline/internal/tracing"
)

// hostDefault is the descriptor an unlinked slot falls back to: the
// process's own stdin/stdout/stderr, inherited the way a plain shell
// command would if nothing had been redirected.
func (s *Stage) hostDefault(d Direction) *os.File {
	switch d {
	case DirInput:
		return os.Stdin
	case DirOutput:
		return os.Stdout
	case DirStderr:
		return os.Stderr
	default:
		return nil
	}
}

// setFD pre-sets fd[d], the half of the plumbing protocol where a peer that
// materializes first hands this stage its end of a freshly created pipe
// before this stage itself has started executing.
func (s *Stage) setFD(d Direction, f *os.File) {
	s.mu.Lock()
	s.fd[d] = f
	s.ownedFD[d] = true
	s.mu.Unlock()
}

// materializeSlot resolves slot d to a real descriptor:
//
//  1. If a peer already pre-set fd[d] via setFD (because it materialized
//     its own, opposite slot first), use that descriptor as-is.
//  2. Else if the peer linked at d declares a ready-made descriptor for
//     its own opposite slot (a Plug, Vent, Hose, or PRNG source), bind
//     directly to it: no pipe is created.
//  3. Else create a real OS pipe, keep the end appropriate to d, and hand
//     the peer its end via setFD so that when the peer later materializes
//     this same edge from its own side, it finds the descriptor already
//     waiting for it.
func (s *Stage) materializeSlot(d Direction) (*os.File, error) {
	s.mu.Lock()
	if f := s.fd[d]; f != nil {
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()

	peer := s.peerAt(d)
	if peer == nil {
		f := s.hostDefault(d)
		s.mu.Lock()
		s.fd[d] = f
		s.ownedFD[d] = false
		s.mu.Unlock()
		return f, nil
	}

	opp := d.opposite()

	if peer.fitting != nil {
		if rf, ok := peer.fitting.readyFD(opp); ok {
			tracing.Descriptor("bound ready descriptor",
				zap.String("stage", s.Name()), zap.Stringer("slot", d),
				zap.String("peer", peer.Name()))
			s.mu.Lock()
			s.fd[d] = rf
			s.ownedFD[d] = true
			s.mu.Unlock()
			return rf, nil
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, resourceErrorf("os.Pipe", err)
	}
	var mine, theirs *os.File
	if d == DirInput {
		mine, theirs = r, w
	} else {
		mine, theirs = w, r
	}

	tracing.Descriptor("created pipe",
		zap.String("stage", s.Name()), zap.Stringer("slot", d),
		zap.String("peer", peer.Name()))

	s.mu.Lock()
	s.fd[d] = mine
	s.ownedFD[d] = true
	s.mu.Unlock()
	peer.setFD(opp, theirs)
	return mine, nil
}

// closeForked closes every descriptor this stage owns, called once its
// real child process has started: the kernel has already duplicated these
// fds into the child, and holding the parent's copy open would prevent the
// child's peers from ever observing end-of-file.
func (s *Stage) closeForked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := Direction(0); d < 3; d++ {
		if s.ownedFD[d] && s.fd[d] != nil {
			s.fd[d].Close()
		}
	}
}
