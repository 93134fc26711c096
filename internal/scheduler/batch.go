package scheduler

import "iter"

// Batches groups seq into consecutive slices of at most size elements, in
// the order seq yields them. The final batch may be shorter. Each yielded
// slice is freshly allocated and may be retained by the caller.
func Batches[T any](seq iter.Seq[T], size int) iter.Seq[[]T] {
	if size < 1 {
		size = 1
	}
	return func(yield func([]T) bool) {
		batch := make([]T, 0, size)
		for item := range seq {
			batch = append(batch, item)
			if len(batch) == size {
				if !yield(batch) {
					return
				}
				batch = make([]T, 0, size)
			}
		}
		if len(batch) > 0 {
			yield(batch)
		}
	}
}
