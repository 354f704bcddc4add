package stage

import (
	"context"
	"fmt"
	"io"
)

// Linear is a convenience wrapper over the Stage graph for the common case
// the graph exists to generalize: a straight chain of external commands
// with no fittings, expressed as Stage.Input links plus a Bucket
// collector.
type Linear struct {
	stages []*Stage
	dir    string
	stdin  io.Reader
}

// LinearOption configures a Linear pipeline at construction time.
type LinearOption func(*Linear)

// WithLinearDir sets the working directory every command in the chain
// runs in.
func WithLinearDir(dir string) LinearOption {
	return func(l *Linear) { l.dir = dir }
}

// WithLinearStdin assigns the first command's stdin.
func WithLinearStdin(r io.Reader) LinearOption {
	return func(l *Linear) { l.stdin = r }
}

// NewLinear builds a Linear pipeline of argv-style commands, run in the
// order given: commands[0] | commands[1] | ... Each entry is the program
// name followed by its arguments, the same shape cmd/plumb's own argv
// parsing produces.
func NewLinear(commands [][]string, opts ...LinearOption) *Linear {
	l := &Linear{}
	for _, opt := range opts {
		opt(l)
	}

	for _, argv := range commands {
		if len(argv) == 0 {
			continue
		}
		sopts := []Option{WithProgram(argv[0]), WithArgs(argv[1:]...)}
		if l.dir != "" {
			sopts = append(sopts, WithCwd(l.dir))
		}
		l.stages = append(l.stages, New(KindExternalProgram, sopts...))
	}

	for i := 1; i < len(l.stages); i++ {
		_ = l.stages[i].Input(l.stages[i-1])
	}

	if l.stdin != nil && len(l.stages) > 0 {
		feed := Hose(WithGushing())
		_ = l.stages[0].Input(feed)
		go func() {
			handle, err := feed.Handle()
			if err != nil {
				return
			}
			io.Copy(handle, l.stdin)
			handle.Close()
		}()
	}

	return l
}

// firstFailure reports the name and error of the first stage (in chain
// order) that did not finish successfully; the earliest failing stage
// wins.
func (l *Linear) firstFailure() error {
	for _, s := range l.stages {
		if !s.Ok() {
			if err := s.Error(); err != nil {
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			return fmt.Errorf("%s: %w", s.Name(), &ChildFailure{
				Name: s.Name(), RC: s.RC(),
			})
		}
	}
	return nil
}

// Output runs the pipeline to completion and returns the final command's
// stdout.
func (l *Linear) Output(ctx context.Context) ([]byte, error) {
	if len(l.stages) == 0 {
		return nil, nil
	}
	last := l.stages[len(l.stages)-1]
	collector := Bucket()
	if err := last.Output(collector); err != nil {
		return nil, err
	}

	if err := last.Execute(ctx); err != nil {
		return nil, err
	}
	out, err := collector.Contents()
	if err != nil {
		return out, err
	}
	return out, l.firstFailure()
}

// Run starts and waits for every command in the pipeline, discarding the
// final stage's stdout.
func (l *Linear) Run(ctx context.Context) error {
	if len(l.stages) == 0 {
		return nil
	}
	last := l.stages[len(l.stages)-1]
	if err := last.Execute(ctx); err != nil {
		return err
	}
	if err := last.Wait(); err != nil {
		return err
	}
	return l.firstFailure()
}
