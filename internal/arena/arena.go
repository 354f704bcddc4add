// Package arena holds the process-wide pid to stage table that the
// executor's Reap uses, plus the trace-id allocator every stage gets at
// construction time. It is safe for concurrent use: a program built on
// this library always has multiple goroutines in flight, one per fitting
// or in-process stage.
package arena

import (
	"sync"

	"github.com/google/uuid"
)

// Reapable is the minimal surface the arena needs from a running stage to
// service Reap without importing package stage (which imports arena).
type Reapable interface {
	// TryReap performs a non-blocking check for whether the child this
	// value represents has exited. It returns true if it has.
	TryReap() bool
}

var (
	mu      sync.Mutex
	running = map[int]Reapable{} // pid -> stage
)

// Register records that pid belongs to the given reapable stage.
func Register(pid int, r Reapable) {
	mu.Lock()
	defer mu.Unlock()
	running[pid] = r
}

// Unregister removes pid from the running table once its stage is Done.
func Unregister(pid int) {
	mu.Lock()
	defer mu.Unlock()
	delete(running, pid)
}

// Reap drains the running table by invoking TryReap on each entry, up to
// max times (or without limit if max <= 0). It never blocks.
func Reap(max int) int {
	mu.Lock()
	pids := make([]int, 0, len(running))
	for pid := range running {
		pids = append(pids, pid)
	}
	mu.Unlock()

	reaped := 0
	for _, pid := range pids {
		if max > 0 && reaped >= max {
			break
		}
		mu.Lock()
		r, ok := running[pid]
		mu.Unlock()
		if !ok {
			continue
		}
		if r.TryReap() {
			Unregister(pid)
			reaped++
		}
	}
	return reaped
}

// NewID returns a fresh trace id for a newly created stage.
func NewID() uuid.UUID {
	return uuid.New()
}
