package filters

import "sync"

// results is the pair of buffers every filter keeps: pending holds what the client has not
// polled yet, all holds everything ever produced.
type results[T any] struct {
	mu      sync.Mutex
	pending []T
	all     []T
}

// addInitialResults seeds the history without marking the items as new.
func (r *results[T]) addInitialResults(items []T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.all = append(r.all, items...)
}

func (r *results[T]) addResults(items []T) {
	if len(items) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, items...)
	r.all = append(r.all, items...)
}

func (r *results[T]) changesAndClear() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	changes := r.pending
	r.pending = nil
	if changes == nil {
		return []T{}
	}
	return changes
}

func (r *results[T]) allResults() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, len(r.all))
	copy(out, r.all)
	return out
}

func (r *results[T]) ChangesAndClear() any {
	return r.changesAndClear()
}

func (r *results[T]) AllResults() any {
	return r.allResults()
}
