// Package resolve finds external-program executables via safeexec rather
// than exec.Cmd's own PATH search, because on Windows the latter also
// consults the current directory, a risk if a pipeline's working directory
// is attacker controlled (e.g. an untrusted checkout containing a file
// literally named like the program being run).
package resolve

import (
	"path/filepath"
	"sync"

	"github.com/cli/safeexec"
)

type memoEntry struct {
	path string
	err  error
}

var (
	mu   sync.Mutex
	memo = map[string]memoEntry{}
)

// Program resolves name to an absolute executable path, memoizing the
// result per name for the lifetime of the process (the environment that
// determines PATH resolution is not expected to change mid-run).
func Program(name string) (string, error) {
	if filepath.IsAbs(name) || filepath.Base(name) != name {
		// Already a path (relative or absolute); let exec.Command use it
		// as-is.
		return name, nil
	}

	mu.Lock()
	defer mu.Unlock()

	if e, ok := memo[name]; ok {
		return e.path, e.err
	}

	p, err := safeexec.LookPath(name)
	if err == nil {
		p, err = filepath.Abs(p)
	}
	memo[name] = memoEntry{path: p, err: err}
	return p, err
}
