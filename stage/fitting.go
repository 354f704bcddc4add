package stage

import "os"

// fitting is the internal vtable the Design Notes describe: a single
// dispatch point the executor and plumbing protocol use instead of a
// switch on Kind for every fitting-specific behavior.
type fitting interface {
	// readyFD returns a ready-made descriptor serving the fitting's slot
	// d (the direction opposite whatever peer is asking), and whether one
	// exists without needing a pipe. Plug, Vent, Hose, file endpoints,
	// and PRNG's source direction answer true here; Bucket and PRNG's
	// sink direction always answer false, since they need a real pipe to
	// actively spool.
	readyFD(d Direction) (*os.File, bool)

	// bind records that slot d on the fitting's stage is being linked to
	// a peer, and rejects the link if it would violate the fitting's
	// orientation rule: each fitting has at most one active data-carrying
	// direction, and binding the other direction while the first is bound
	// is a configuration error.
	bind(d Direction) error

	// configured reports whether the fitting's current configuration is
	// consistent enough to run (e.g. a pouring Bucket must have
	// contents). A non-nil result puts the stage in StatusError.
	configured() error

	// start runs once plumb.go has resolved fd[d] for every slot this
	// fitting actually uses. Pure ready-fd fittings need nothing further;
	// Bucket and PRNG-as-sink launch their spooling goroutine or gpg
	// subprocess here.
	start(s *Stage) error

	// wait blocks until any background work start launched has finished,
	// and returns its result. It is idempotent.
	wait(s *Stage) error

	// activeSlots lists the slots this fitting must materialize for
	// itself before start runs. A pure ready-fd fitting (Plug, Vent,
	// Hose, PRNG's source direction) answers nil: it never holds a
	// descriptor of its own, it only ever answers readyFD when some
	// other, actively executing peer asks. Bucket and PRNG's sink
	// direction answer with the one slot they actively spool through.
	activeSlots() []Direction
}

// noopFitting is embedded by fittings with no background work to join, no
// descriptor of their own to materialize, and no configuration that could
// be inconsistent.
type noopFitting struct{}

func (noopFitting) start(*Stage) error       { return nil }
func (noopFitting) wait(*Stage) error        { return nil }
func (noopFitting) activeSlots() []Direction { return nil }
func (noopFitting) configured() error        { return nil }

// orientation tracks which data-carrying direction a fitting has committed
// to. The first bind wins; binding the opposite direction afterwards is
// rejected.
type orientation struct {
	dir Direction
	set bool
}

func (o *orientation) bindAs(name string, d Direction) error {
	if d == DirStderr {
		return configErrorf("%s has no stderr slot", name)
	}
	if o.set && o.dir != d {
		return configErrorf("%s is already bound at its %s slot; cannot also bind %s", name, o.dir, d)
	}
	o.dir = d
	o.set = true
	return nil
}

// closeOwned closes every fd this stage owns (not a bare host passthrough),
// used once a non-forking stage's background work has finished.
func (s *Stage) closeOwned() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := Direction(0); d < 3; d++ {
		if s.ownedFD[d] && s.fd[d] != nil {
			s.fd[d].Close()
			s.fd[d] = nil
		}
	}
}
