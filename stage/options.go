package stage

import "github.com/gopipeline/plumbline/shellword"

// Option configures a Stage at construction time.
type Option func(*Stage)

// WithProgram sets the executable an ExternalProgram stage runs. The name
// is resolved against PATH at Execute time, not here.
func WithProgram(name string) Option {
	return func(s *Stage) { s.program = name }
}

// WithArgs sets the argv entries passed after the program name.
func WithArgs(args ...string) Option {
	return func(s *Stage) { s.args = append([]string(nil), args...) }
}

// WithCode sets the callable an InProcessCode stage runs on its bridging
// goroutine.
func WithCode(f CodeFunc) Option {
	return func(s *Stage) { s.code = f }
}

// WithEnv sets an additional environment variable for an ExternalProgram
// stage's child, on top of the ambient process environment. InProcessCode
// stages do not see these variables.
func WithEnv(key, value string) Option {
	return func(s *Stage) {
		if s.env == nil {
			s.env = map[string]string{}
		}
		s.env[key] = value
	}
}

// WithCwd sets the stage's working directory: the directory an external
// program runs in, and the Env.Dir handed to an in-process CodeFunc.
func WithCwd(dir string) Option {
	return func(s *Stage) { s.cwd = dir }
}

// WithInput links the stage's input slot at construction time, equivalent
// to calling Input(v) immediately after New. It accepts the same forms
// Input does: a peer stage, a file path or command-line shortcut, an open
// handle, or a callable.
func WithInput(v interface{}) Option {
	return func(s *Stage) { _ = s.Input(v) }
}

// WithOutput links the stage's output slot at construction time.
func WithOutput(v interface{}) Option {
	return func(s *Stage) { _ = s.Output(v) }
}

// WithStderr links the stage's stderr slot at construction time.
func WithStderr(v interface{}) Option {
	return func(s *Stage) { _ = s.Stderr(v) }
}

// WithPreFork registers a hook run just before the stage launches its
// child (or starts its goroutine), after the pipeline graph is final and
// its descriptors have been materialized.
func WithPreFork(f func(*Stage) error) Option {
	return func(s *Stage) { s.preFork = f }
}

// Command builds an ExternalProgram stage. Called with a single argument
// it treats that argument as a shell-word-encoded command line and splits
// it; called with more, the first argument is the program and the rest are
// its argv.
func Command(line string, args ...string) *Stage {
	if len(args) > 0 {
		return New(KindExternalProgram, WithProgram(line), WithArgs(args...))
	}

	words, err := shellword.Unquote(line)
	if err != nil {
		s := New(KindExternalProgram)
		s.setConfigError(configErrorf("command: %v", err))
		return s
	}
	if len(words) == 0 {
		s := New(KindExternalProgram)
		s.setConfigError(configErrorf("command: empty command line"))
		return s
	}
	return New(KindExternalProgram, WithProgram(words[0]), WithArgs(words[1:]...))
}
