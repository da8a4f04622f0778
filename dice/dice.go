// Package dice provides the uniform random rolls used for tie-breaks and
// risk resolution.
package dice

import (
	"math/rand"
	"sync"
	"time"
)

// D6 is the die used by every room rule.
const D6 = 6

// Roller returns a uniform integer in [1, sides].
type Roller interface {
	Roll(sides int) int
}

// RandRoller is safe for concurrent use.
type RandRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(seed int64) *RandRoller {
	return &RandRoller{rng: rand.New(rand.NewSource(seed))}
}

// NewDefault seeds from the wall clock.
func NewDefault() *RandRoller {
	return New(time.Now().UnixNano())
}

func (r *RandRoller) Roll(sides int) int {
	if sides < 1 {
		return 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(sides) + 1
}

// Sequence replays fixed values in order and then repeats the last one.
// It is meant for tests that need a known outcome.
type Sequence struct {
	mu     sync.Mutex
	values []int
	next   int
}

func NewSequence(values ...int) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Roll(sides int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 1
	}
	idx := s.next
	if idx >= len(s.values) {
		idx = len(s.values) - 1
	} else {
		s.next++
	}
	v := s.values[idx]
	if v < 1 {
		return 1
	}
	if v > sides {
		return sides
	}
	return v
}
