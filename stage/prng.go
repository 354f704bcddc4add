package stage

import (
	"os"
	"os/exec"

	"github.com/gopipeline/plumbline/internal/resolve"
)

// PRNGOption configures a PRNG at construction time.
type PRNGOption func(*prngFitting)

// WithRecipient sets the GPG recipient the PRNG-as-sink encrypts to,
// equivalent to gpg's -r flag. Setting a recipient (or WithEncryptCommand)
// switches the PRNG into sink orientation.
func WithRecipient(recipient string) PRNGOption {
	return func(p *prngFitting) {
		p.sink = true
		p.recipient = recipient
	}
}

// WithEncryptCommand overrides the default "gpg --encrypt" invocation used
// by a sink PRNG, for callers who want a different cipher or key backend.
func WithEncryptCommand(argv ...string) PRNGOption {
	return func(p *prngFitting) {
		p.sink = true
		p.argv = append([]string(nil), argv...)
	}
}

// prngFitting backs PRNG: an entropy source read straight off /dev/urandom
// (a ready fd, like Plug/Vent), or a sink that pipes whatever it receives
// through a gpg subprocess for encryption.
type prngFitting struct {
	sink      bool
	recipient string
	argv      []string
	orient    orientation

	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *prngFitting) bind(d Direction) error { return p.orient.bindAs("prng", d) }

func (p *prngFitting) configured() error { return nil }

func (p *prngFitting) readyFD(d Direction) (*os.File, bool) {
	if p.sink {
		return nil, false
	}
	if d == DirOutput {
		if f, ok := openDeviceRead(devURandom); ok {
			return f, true
		}
	}
	return nil, false
}

func (p *prngFitting) activeSlots() []Direction {
	if p.sink {
		return []Direction{DirInput}
	}
	return nil
}

func (p *prngFitting) encryptArgv() []string {
	if len(p.argv) > 0 {
		return p.argv
	}
	argv := []string{"gpg", "--batch", "--yes", "--encrypt"}
	if p.recipient != "" {
		argv = append(argv, "--recipient", p.recipient)
	}
	return argv
}

func (p *prngFitting) start(s *Stage) error {
	if !p.sink {
		return nil
	}

	s.mu.Lock()
	f := s.fd[DirInput]
	s.mu.Unlock()
	if f == nil {
		return configErrorf("PRNG sink: input slot was not materialized")
	}

	argv := p.encryptArgv()
	path, err := resolve.Program(argv[0])
	if err != nil {
		return resourceErrorf("resolve PRNG encrypt command", err)
	}

	p.cmd = exec.Command(path, argv[1:]...)
	p.cmd.Stdin = f
	p.cmd.Stdout = os.Stdout
	p.cmd.Stderr = os.Stderr

	if err := p.cmd.Start(); err != nil {
		return resourceErrorf("start PRNG encrypt command", err)
	}
	s.closeOwned()

	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.err = p.cmd.Wait()
	}()
	return nil
}

func (p *prngFitting) wait(*Stage) error {
	if p.done != nil {
		<-p.done
	}
	return p.err
}

// PRNG returns a fitting reading raw entropy as a source, or piping
// whatever it receives through a GPG-encrypting subprocess as a sink.
func PRNG(opts ...PRNGOption) *Stage {
	s := New(KindPRNG)
	p := s.fitting.(*prngFitting)
	for _, opt := range opts {
		opt(p)
	}
	if p.sink {
		p.orient = orientation{dir: DirInput, set: true}
	} else {
		p.orient = orientation{dir: DirOutput, set: true}
	}
	s.recomputeReady()
	return s
}
