// Package shuffle implements the Fisher-Yates permutation used when a test is
// served: question order and per-question option order are randomized on the
// served copy only.
package shuffle

import (
	"math/rand"
	"sync"
)

// Source yields uniform random ints in [0, n). *math/rand.Rand satisfies it;
// tests inject deterministic sources.
type Source interface {
	Intn(n int) int
}

// Permute shuffles s in place with Fisher-Yates: index i walks from len(s)-1
// down to 1, swapping with a uniformly chosen index in [0, i]. Every
// permutation is equally likely given a uniform Source. Sequences of length
// 0 or 1 are no-ops.
func Permute[T any](src Source, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// lockedSource wraps a rand.Rand with a mutex. math/rand.Rand is not safe for
// concurrent use and serving happens on concurrent requests.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedSource) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// NewLockedSource returns a concurrency-safe Source seeded with seed.
func NewLockedSource(seed int64) Source {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}
