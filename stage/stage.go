package stage

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/gopipeline/plumbline/internal/arena"
	"github.com/gopipeline/plumbline/shellword"
)

// Stage is a node in the pipeline graph: either a real fork+exec'd external
// program, an in-process callable bridged by a goroutine, or one of the
// fitting kinds. A Stage is not safe to share across goroutines while it is
// still being configured (SetProgram, Input, etc.); once Execute has been
// called, only the read-only accessors and Wait are expected to be called
// concurrently.
type Stage struct {
	id   uuid.UUID
	kind Kind

	mu sync.Mutex

	program string
	args    []string
	code    CodeFunc
	env     map[string]string
	cwd     string
	preFork func(*Stage) error

	fitting fitting

	// fwd holds the owning reference installed by whichever Input/Output/
	// Stderr call was made on THIS stage; back holds the non-owning
	// back-reference installed by a peer's call that targeted this stage.
	// peerAt reads through both.
	fwd  [3]*Stage
	back [3]weak.Pointer[Stage]

	// fd holds each slot's materialized child-side descriptor once
	// plumb.go has resolved it; ownedFD marks entries this stage must
	// close itself (i.e. not the process-wide os.Stdin/Stdout/Stderr
	// singleton it may have defaulted to).
	fd      [3]*os.File
	ownedFD [3]bool

	status Status
	// cfgErr records sticky faults (bad links, failed resource setup);
	// readyErr records why the stage's configuration is not yet
	// executable, recomputed on every mutator so the stage flips between
	// Error and Ready as the minimum configuration comes and goes.
	cfgErr   error
	readyErr error

	pid     int
	hasPID  bool
	rc      int
	hasRC   bool
	signal  bool
	sigNum  int
	waitErr error

	cmd     *exec.Cmd
	doneCh  chan struct{}
	waitOne sync.Once
}

// New creates a Stage of the given kind. It starts Ready if its options
// amount to an executable configuration, or Error until the missing pieces
// are supplied (a program for an external stage, code for an in-process
// one).
func New(kind Kind, opts ...Option) *Stage {
	s := &Stage{
		id:     arena.NewID(),
		kind:   kind,
		status: StatusReady,
		rc:     -1,
	}
	switch kind {
	case KindPlug:
		s.fitting = &plugFitting{}
	case KindVent:
		s.fitting = &ventFitting{}
	case KindBucket:
		s.fitting = &bucketFitting{}
	case KindHose:
		s.fitting = &hoseFitting{}
	case KindPRNG:
		s.fitting = &prngFitting{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recomputeReady()
	return s
}

// SetProgram sets the executable an ExternalProgram stage runs, flipping
// the stage from Error to Ready once a program is present.
func (s *Stage) SetProgram(name string) error {
	return s.reconfigure(func() { s.program = name })
}

// SetArgs replaces the argv entries passed after the program name.
func (s *Stage) SetArgs(args ...string) error {
	return s.reconfigure(func() { s.args = append([]string(nil), args...) })
}

// SetCode sets the callable an InProcessCode stage runs.
func (s *Stage) SetCode(f CodeFunc) error {
	return s.reconfigure(func() { s.code = f })
}

// SetCwd sets the stage's working directory; the empty string restores the
// default of inheriting the parent's.
func (s *Stage) SetCwd(dir string) error {
	return s.reconfigure(func() { s.cwd = dir })
}

// SetEnv adds one environment variable on top of the ambient process
// environment for this stage's child.
func (s *Stage) SetEnv(key, value string) error {
	return s.reconfigure(func() {
		if s.env == nil {
			s.env = map[string]string{}
		}
		s.env[key] = value
	})
}

func (s *Stage) reconfigure(apply func()) error {
	s.mu.Lock()
	switch s.status {
	case StatusRunning, StatusDone, StatusLost:
		s.mu.Unlock()
		return configErrorf("cannot reconfigure a %s stage", s.StageStatus())
	}
	apply()
	s.recomputeReadyLocked()
	s.mu.Unlock()
	return nil
}

// recomputeReady re-derives the Error/Ready split from the stage's current
// configuration. Sticky faults (cfgErr) always win; otherwise the stage is
// Ready exactly when it is executable: an external stage with a program,
// an in-process stage with code, or a fitting whose configuration is
// consistent.
func (s *Stage) recomputeReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeReadyLocked()
}

func (s *Stage) recomputeReadyLocked() {
	switch s.status {
	case StatusRunning, StatusDone, StatusLost:
		return
	}
	if s.cfgErr != nil {
		s.status = StatusError
		return
	}

	s.readyErr = nil
	switch s.kind {
	case KindExternalProgram:
		if s.program == "" {
			s.readyErr = configErrorf("external-program stage has no program")
		}
	case KindInProcessCode:
		if s.code == nil {
			s.readyErr = configErrorf("in-process stage has no code")
		}
	default:
		if s.fitting != nil {
			s.readyErr = s.fitting.configured()
		}
	}

	if s.readyErr != nil {
		s.status = StatusError
	} else {
		s.status = StatusReady
	}
}

// Name identifies the stage for logging and failure messages: the quoted
// command line for an ExternalProgram, "kind#shortid" otherwise, with the
// child's pid appended once one exists.
func (s *Stage) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := fmt.Sprintf("%s#%s", s.kind, s.id.String()[:8])
	if s.kind == KindExternalProgram && s.program != "" {
		base = s.commandLineLocked()
	}
	if s.hasPID {
		return fmt.Sprintf("%s[%d]", base, s.pid)
	}
	return base
}

// commandLine is the stage's program and arguments as one shell-quoted
// line, or its Name for stages with no command.
func (s *Stage) commandLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == KindExternalProgram && s.program != "" {
		return s.commandLineLocked()
	}
	return fmt.Sprintf("%s#%s", s.kind, s.id.String()[:8])
}

func (s *Stage) commandLineLocked() string {
	line, err := shellword.Quote(append([]string{s.program}, s.args...))
	if err != nil {
		return s.program
	}
	return line
}

func (s *Stage) ID() uuid.UUID { return s.id }

// StageStatus reports the stage's current lifecycle position.
func (s *Stage) StageStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Stage) Ready() bool   { return s.StageStatus() == StatusReady }
func (s *Stage) Running() bool { return s.StageStatus() == StatusRunning }
func (s *Stage) Done() bool {
	switch s.StageStatus() {
	case StatusDone, StatusLost:
		return true
	default:
		return false
	}
}

// Ok reports whether the stage finished with exit code 0 and without being
// killed by a signal, forcing execution and completion first.
func (s *Stage) Ok() bool {
	if err := s.Wait(); err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasRC && s.rc == 0 && !s.signal
}

// RC returns the stage's exit code, waiting for completion first. It
// returns -1 for a stage killed by a signal (fittings and in-process code
// that finish cleanly report 0).
func (s *Stage) RC() int {
	_ = s.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signal {
		return -1
	}
	return s.rc
}

// PID returns the external program's process id, or 0 for stages that never
// forked a real child.
func (s *Stage) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasPID {
		return 0
	}
	return s.pid
}

// Error returns the fault recorded against this stage. A stage in Error
// reports its configuration or resource fault immediately; otherwise Error
// is an observer like Ok and Contents — it runs the stage to completion
// and reports a ChildFailure if the child exited non-zero or died on a
// signal, or nil for a clean exit.
func (s *Stage) Error() error {
	s.mu.Lock()
	status := s.status
	cfgErr := s.cfgErr
	readyErr := s.readyErr
	s.mu.Unlock()

	switch status {
	case StatusError:
		if cfgErr != nil {
			return cfgErr
		}
		return readyErr
	case StatusReady, StatusRunning:
		if err := s.ensureObserved(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signal {
		return &ChildFailure{Name: s.commandLineLocked(), RC: s.rc, Signal: true, SigNum: s.sigNum}
	}
	if s.hasRC && s.rc != 0 {
		return &ChildFailure{Name: s.commandLineLocked(), RC: s.rc, ExitNum: s.rc}
	}
	return nil
}

// ErrorMessage is Error().Error(), or "" if there is no error.
func (s *Stage) ErrorMessage() string {
	if err := s.Error(); err != nil {
		return err.Error()
	}
	return ""
}

func (s *Stage) setConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfgErr = err
	switch s.status {
	case StatusRunning, StatusDone, StatusLost:
	default:
		s.status = StatusError
	}
}

func (s *Stage) needsFork() bool {
	return s.kind == KindExternalProgram
}

// TryReap implements arena.Reapable: it reports, without blocking, whether
// the goroutine joining the stage's child has finished. It is only ever
// registered for ExternalProgram stages, after doneCh is set (see
// executor.go). It does not change the stage's status; Wait does that.
func (s *Stage) TryReap() bool {
	select {
	case <-s.doneCh:
		return true
	default:
		return false
	}
}
