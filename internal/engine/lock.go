package engine

import (
	"sync"
	"sync/atomic"
)

// pathLocks hands out non-blocking per-path locks so two concurrent index
// requests for the same file cannot interleave their writes. Lock entries
// are never removed; the set of distinct paths is bounded by the indexed
// tree.
type pathLocks struct {
	locks sync.Map // path -> *atomic.Int32, 0 = unlocked
}

// tryAcquire attempts to lock the path without blocking.
func (p *pathLocks) tryAcquire(path string) bool {
	v, _ := p.locks.LoadOrStore(path, new(atomic.Int32))
	return v.(*atomic.Int32).CompareAndSwap(0, 1)
}

// release unlocks the path. Must only be called after a successful
// tryAcquire for the same path.
func (p *pathLocks) release(path string) {
	if v, ok := p.locks.Load(path); ok {
		v.(*atomic.Int32).Store(0)
	}
}
