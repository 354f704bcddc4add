package stage

import (
	"context"
	"io"
	"os"
	"strings"
	"weak"
)

// link installs the forward/owning edge s.fwd[d] = peer, and the
// corresponding non-owning back-reference on peer at the opposite slot:
// if a slot on stage A holds a reference to stage B, B's opposite slot
// refers back to A. This holds regardless of which side's method was
// called — Input(Output(S)) and Output(Input(S)) are equivalent — which is
// what lets peerAt read a consistent view from either stage.
//
// Before anything is mutated, both sides' fittings veto links that would
// violate their orientation rule (a pouring bucket cannot also fill, a
// gushing hose cannot be read, and so on).
func (s *Stage) link(d Direction, peer *Stage) error {
	if peer == nil {
		return configErrorf("%s: peer is nil", d)
	}
	if peer == s {
		return configErrorf("%s: a stage cannot link to itself", d)
	}

	if s.fitting != nil {
		if err := s.fitting.bind(d); err != nil {
			return err
		}
	}
	opp := d.opposite()
	if peer.fitting != nil {
		if err := peer.fitting.bind(opp); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.fwd[d] = peer
	s.mu.Unlock()

	peer.mu.Lock()
	peer.back[opp] = weak.Make(s)
	peer.mu.Unlock()

	s.recomputeReady()
	peer.recomputeReady()
	return nil
}

// peerAt resolves the stage currently linked at slot d, whichever side
// installed the link: the forward/owning reference if this stage made the
// call itself, otherwise the peer's back-reference if some other stage
// linked into this slot.
func (s *Stage) peerAt(d Direction) *Stage {
	s.mu.Lock()
	fwd := s.fwd[d]
	back := s.back[d]
	s.mu.Unlock()

	if fwd != nil {
		return fwd
	}
	return back.Value()
}

// endpoint turns the polymorphic argument of Input/Output/Stderr into a
// peer stage: an existing *Stage is used as-is, a string is a file path
// (or an embedded command line in the "cmd… |" / "| cmd…" shortcut forms),
// an *os.File is wrapped as a raw-handle endpoint, and a CodeFunc becomes
// a fresh in-process stage.
func (s *Stage) endpoint(d Direction, v interface{}) (*Stage, error) {
	switch p := v.(type) {
	case *Stage:
		return p, nil
	case string:
		return s.endpointFromString(d, p)
	case *os.File:
		return FileHandle(p), nil
	case CodeFunc:
		return New(KindInProcessCode, WithCode(p)), nil
	case func(context.Context, Env, io.Reader, io.Writer) error:
		return New(KindInProcessCode, WithCode(p)), nil
	default:
		return nil, configErrorf("%s: cannot link a %T", d, v)
	}
}

func (s *Stage) endpointFromString(d Direction, v string) (*Stage, error) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil, configErrorf("%s: empty path", d)
	}

	switch d {
	case DirInput:
		// "cmd… |" feeds this stage from a freshly allocated command.
		if rest, ok := strings.CutSuffix(trimmed, "|"); ok {
			return Command(strings.TrimSpace(rest)), nil
		}
	case DirOutput, DirStderr:
		// "| cmd…" pipes this stage into a freshly allocated command.
		if rest, ok := strings.CutPrefix(trimmed, "|"); ok {
			return Command(strings.TrimSpace(rest)), nil
		}
	}
	return File(v), nil
}

func (s *Stage) linkAny(d Direction, v interface{}) error {
	peer, err := s.endpoint(d, v)
	if err != nil {
		s.setConfigError(err)
		return err
	}
	if err := s.link(d, peer); err != nil {
		s.setConfigError(err)
		return err
	}
	return nil
}

// Input links the stage's input slot to v: an upstream peer stage, a file
// path (or "cmd… |" command-line shortcut), an open handle, or a callable
// that becomes an in-process stage.
func (s *Stage) Input(v interface{}) error { return s.linkAny(DirInput, v) }

// Output links the stage's output slot to v, the consumer of the bytes
// this stage produces: a peer stage, a file path (or "| cmd…" shortcut),
// an open handle, or a callable.
func (s *Stage) Output(v interface{}) error { return s.linkAny(DirOutput, v) }

// Stderr links the stage's stderr slot to v. Stderr is plumbed as an
// ordinary input edge to whatever peer it's linked to: it forms its own
// independent mini-pipeline rather than ever being merged into the output
// chain.
func (s *Stage) Stderr(v interface{}) error { return s.linkAny(DirStderr, v) }

// InputPeer, OutputPeer, and StderrPeer are the read accessors for each
// slot's current peer (nil if unset).
func (s *Stage) InputPeer() *Stage  { return s.peerAt(DirInput) }
func (s *Stage) OutputPeer() *Stage { return s.peerAt(DirOutput) }
func (s *Stage) StderrPeer() *Stage { return s.peerAt(DirStderr) }

// Terminus walks the output chain starting at s and returns the stage with
// no further output peer: the stage whose bytes are the pipeline's final
// product. A forking stage at the end of the chain gets its default
// collecting Bucket linked in, so the terminus of a bare command chain is
// the Bucket its output will land in.
func (s *Stage) Terminus() *Stage {
	cur := s
	for {
		if next := cur.peerAt(DirOutput); next != nil {
			cur = next
			continue
		}
		if cur.needsFork() || cur.kind == KindInProcessCode {
			b := Bucket()
			if err := cur.link(DirOutput, b); err == nil {
				return b
			}
		}
		return cur
	}
}
