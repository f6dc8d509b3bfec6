package app

import "quiz-session-service/internal/store"

// project decodes every snapshot from in onto a new channel that always holds the
// latest value. The output closes when in closes.
func project[T any](in <-chan store.Snapshot, decode func(store.Snapshot) T) <-chan T {
	out := make(chan T, 1)
	go func() {
		defer close(out)
		for snap := range in {
			offerLatest(out, decode(snap))
		}
	}()
	return out
}

// offerLatest sends v without blocking, dropping the oldest pending value when the
// buffer is full. ch must have a single sender.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
