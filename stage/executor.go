package stage

import (
	"context"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gopipeline/plumbline/internal/arena"
	"github.com/gopipeline/plumbline/internal/resolve"
	"github.com/gopipeline/plumbline/internal/tracing"
)

// Execute walks the pipeline graph starting at s, forking/launching every
// stage that needs to run, lazily: nothing happens until some stage is
// asked to execute, and every stage runs at most once.
func (s *Stage) Execute(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	status := s.status
	s.mu.Unlock()

	switch status {
	case StatusRunning, StatusDone, StatusLost:
		return nil
	case StatusError:
		return s.Error()
	}

	if in := s.peerAt(DirInput); in != nil && !in.Running() && !in.Done() {
		// Recurse into the not-yet-running upstream stage and return; its
		// own downstream cascade (below) reaches s in turn.
		return in.Execute(ctx)
	}

	return s.startSelf(ctx)
}

// applyDefaultEdges fills in the conventional endpoints for a forking or
// in-process stage whose input/output slots were never linked and never
// pre-set by a peer: input reads end-of-file from a Plug, output collects
// into a Bucket. An unlinked stderr falls through to the host's own stderr
// in materializeSlot.
func (s *Stage) applyDefaultEdges() {
	switch s.kind {
	case KindExternalProgram, KindInProcessCode:
	default:
		return
	}

	if s.peerAt(DirInput) == nil {
		s.mu.Lock()
		preset := s.fd[DirInput] != nil
		s.mu.Unlock()
		if !preset {
			_ = s.link(DirInput, Plug())
		}
	}
	if s.peerAt(DirOutput) == nil {
		s.mu.Lock()
		preset := s.fd[DirOutput] != nil
		s.mu.Unlock()
		if !preset {
			_ = s.link(DirOutput, Bucket())
		}
	}
}

func (s *Stage) startSelf(ctx context.Context) error {
	s.applyDefaultEdges()

	for _, d := range s.materializeSlots() {
		if _, err := s.materializeSlot(d); err != nil {
			s.setConfigError(err)
			return err
		}
	}

	if s.preFork != nil {
		if err := s.preFork(s); err != nil {
			s.closeOwned()
			s.setConfigError(err)
			return err
		}
	}

	var err error
	switch s.kind {
	case KindExternalProgram:
		err = s.runExternal(ctx)
	case KindInProcessCode:
		err = s.runInProcess(ctx)
	default:
		err = s.runFitting()
	}
	if err != nil {
		s.setConfigError(err)
		return err
	}

	s.mu.Lock()
	if s.status != StatusError {
		s.status = StatusRunning
	}
	s.mu.Unlock()

	tracing.Fork("stage started", zap.String("stage", s.Name()), zap.Stringer("kind", s.kind))

	for _, d := range [2]Direction{DirOutput, DirStderr} {
		if peer := s.peerAt(d); peer != nil && !peer.Running() && !peer.Done() {
			if err := peer.Execute(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// materializeSlots lists the slots s must resolve a real descriptor for
// itself before running: every slot for an ExternalProgram and for
// InProcessCode (whose stderr descriptor is closed unused, since its
// CodeFunc has no stderr parameter), and whatever a fitting's own
// activeSlots reports. Fittings with a ready-made descriptor
// never materialize anything of their own; they only ever answer a peer's
// readyFD query.
func (s *Stage) materializeSlots() []Direction {
	switch s.kind {
	case KindExternalProgram, KindInProcessCode:
		return []Direction{DirInput, DirOutput, DirStderr}
	default:
		if s.fitting == nil {
			return nil
		}
		return s.fitting.activeSlots()
	}
}

func (s *Stage) runExternal(ctx context.Context) error {
	path, err := resolve.Program(s.program)
	if err != nil {
		return resourceErrorf("resolve program", err)
	}

	cmd := exec.CommandContext(ctx, path, s.args...)
	cmd.Args[0] = s.program
	cmd.Dir = s.cwd
	if len(s.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	s.mu.Lock()
	cmd.Stdin = s.fd[DirInput]
	cmd.Stdout = s.fd[DirOutput]
	cmd.Stderr = s.fd[DirStderr]
	s.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return resourceErrorf("start "+s.program, err)
	}
	s.closeForked()

	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.hasPID = true
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	arena.Register(s.pid, s)

	// A single-member errgroup joining the goroutine that reaps this
	// child, so Reap and the arena never race against (*exec.Cmd)'s own
	// internal bookkeeping.
	var eg errgroup.Group
	eg.Go(cmd.Wait)

	go func() {
		waitErr := eg.Wait()
		s.mu.Lock()
		s.waitErr = waitErr
		if cmd.ProcessState != nil {
			s.rc, s.sigNum, s.signal = decodeProcessState(cmd.ProcessState)
			s.hasRC = true
		}
		s.mu.Unlock()
		arena.Unregister(s.pid)
		close(s.doneCh)
	}()
	return nil
}

func (s *Stage) runInProcess(ctx context.Context) error {
	if s.code == nil {
		return configErrorf("in-process stage %s has no code", s.Name())
	}

	s.mu.Lock()
	stdin := s.fd[DirInput]
	stdout := s.fd[DirOutput]
	env := Env{Dir: s.cwd}
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.doneCh)
		// CodeFunc has no stderr parameter; if some peer is linked to this
		// stage's stderr slot anyway, its descriptor was materialized
		// before we got here. Close it immediately so that peer sees
		// end-of-file right away instead of blocking forever.
		s.closeOneOwned(DirStderr)

		err := s.code(ctx, env, stdin, stdout)

		s.closeOneOwned(DirInput)
		s.closeOneOwned(DirOutput)

		s.mu.Lock()
		s.waitErr = err
		s.rc = 0
		s.hasRC = true
		if err != nil {
			s.rc = 1
		}
		s.mu.Unlock()
	}()
	return nil
}

func (s *Stage) runFitting() error {
	if s.fitting == nil {
		return configErrorf("fitting stage %s has no fitting implementation", s.Name())
	}
	if err := s.fitting.start(s); err != nil {
		return err
	}
	s.doneCh = make(chan struct{})
	go func() {
		defer close(s.doneCh)
		err := s.fitting.wait(s)
		s.mu.Lock()
		s.waitErr = err
		s.rc = 0
		s.hasRC = true
		if err != nil && err != io.EOF {
			s.rc = 1
		}
		s.mu.Unlock()
	}()
	return nil
}

// closeOneOwned closes fd[d] if this stage owns it, used by runInProcess to
// release descriptors as soon as the goroutine is done with them rather
// than waiting for the whole-stage closeOwned sweep.
func (s *Stage) closeOneOwned(d Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownedFD[d] && s.fd[d] != nil {
		s.fd[d].Close()
		s.fd[d] = nil
	}
}

// Wait blocks until the stage itself (not its whole downstream chain) has
// finished running, executing it first if nothing has started it yet.
func (s *Stage) Wait() error {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()

	if status == StatusReady {
		if err := s.Execute(context.Background()); err != nil {
			return err
		}
	} else if status == StatusError {
		return s.Error()
	}

	s.waitOne.Do(func() {
		s.mu.Lock()
		done := s.doneCh
		s.mu.Unlock()
		if done != nil {
			<-done
		}
		s.mu.Lock()
		if s.status != StatusError {
			s.status = StatusDone
		}
		s.mu.Unlock()
	})

	s.mu.Lock()
	err := s.waitErr
	s.mu.Unlock()
	return err
}

// Reap non-blockingly joins up to max finished external-program children
// (0 for unlimited), returning how many were reaped. Because each
// ExternalProgram stage's own goroutine already calls (*exec.Cmd).Wait()
// as soon as its child exits, a running program is reaped well before a
// caller would need to poll for it, so StatusLost is not reachable
// through this path.
func Reap(max int) int {
	return arena.Reap(max)
}
