// Package derangement assigns every member of a roster a gift recipient
// other than themselves.
package derangement

import (
	"fmt"
	"math/rand/v2"
)

// DefaultMaxAttempts bounds the rejection loop. The expected number of
// attempts is about e, so hitting this means the RandomSource is broken.
const DefaultMaxAttempts = 10000

// RandomSource supplies uniform integers in [0, n).
// *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// GlobalSource returns a RandomSource backed by the math/rand/v2 top-level
// generator. Safe for concurrent use.
func GlobalSource() RandomSource { return globalSource{} }

// Generator produces derangements by rejection sampling.
type Generator struct {
	rng         RandomSource
	maxAttempts int
}

// New creates a Generator. A nil rng uses GlobalSource.
// The rng must be safe for concurrent use if the Generator is shared.
func New(rng RandomSource) *Generator {
	if rng == nil {
		rng = GlobalSource()
	}
	return &Generator{rng: rng, maxAttempts: DefaultMaxAttempts}
}

// WithMaxAttempts returns a copy of g with a different attempt bound.
func (g *Generator) WithMaxAttempts(n int) *Generator {
	cp := *g
	cp.maxAttempts = n
	return &cp
}

// ExhaustedError is returned when no derangement was found within the
// attempt bound.
type ExhaustedError struct {
	Attempts int
	N        int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no derangement of %d names after %d attempts", e.N, e.Attempts)
}

// Generate maps each name to a different name such that the mapping is a
// permutation with no fixed points. It also returns the number of shuffles
// used. names must hold at least two distinct entries.
func (g *Generator) Generate(names []string) (map[string]string, int, error) {
	n := len(names)
	if n < 2 {
		return nil, 0, fmt.Errorf("need at least 2 names, got %d", n)
	}
	seen := make(map[string]struct{}, n)
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, 0, fmt.Errorf("duplicate name %q", name)
		}
		seen[name] = struct{}{}
	}

	shuffled := make([]string, n)
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		copy(shuffled, names)
		g.shuffle(shuffled)
		if hasFixedPoint(names, shuffled) {
			continue
		}
		assignment := make(map[string]string, n)
		for i, name := range names {
			assignment[name] = shuffled[i]
		}
		return assignment, attempt, nil
	}
	return nil, g.maxAttempts, &ExhaustedError{Attempts: g.maxAttempts, N: n}
}

// shuffle is an in-place Fisher-Yates shuffle.
func (g *Generator) shuffle(s []string) {
	for i := len(s) - 1; i > 0; i-- {
		j := g.rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

func hasFixedPoint(original, shuffled []string) bool {
	for i := range original {
		if original[i] == shuffled[i] {
			return true
		}
	}
	return false
}
