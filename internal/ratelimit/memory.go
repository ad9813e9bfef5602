package ratelimit

import (
	"context"
	"sync"
	"time"
)

// maxTrackedSubjects bounds the window map before stale entries are pruned.
const maxTrackedSubjects = 4096

// spendWindow counts spend attempts by one subject within one second.
type spendWindow struct {
	second int64
	taken  int
}

// memoryBackend is the in-process fallback backend.
type memoryBackend struct {
	mu      sync.Mutex
	windows map[string]spendWindow
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{windows: make(map[string]spendWindow)}
}

// Take consumes one attempt from the subject's current window.
func (b *memoryBackend) Take(_ context.Context, subject string, limit int, now time.Time) (Decision, error) {
	if limit <= 0 || subject == "" {
		return Decision{Allowed: true}, nil
	}
	sec := now.Unix()
	retryAt := time.Unix(sec+1, 0).UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.windows[subject]
	if w.second != sec {
		w = spendWindow{second: sec}
	}
	if w.taken >= limit {
		return Decision{Allowed: false, RetryAt: retryAt}, nil
	}
	w.taken++
	b.windows[subject] = w
	if len(b.windows) > maxTrackedSubjects {
		b.prune(sec)
	}
	return Decision{Allowed: true, Remaining: limit - w.taken, RetryAt: retryAt}, nil
}

// prune drops windows from past seconds. Caller holds the lock.
func (b *memoryBackend) prune(sec int64) {
	for subject, w := range b.windows {
		if w.second != sec {
			delete(b.windows, subject)
		}
	}
}
