// Package idgen draws random numeric identifiers that are not yet taken.
//
// Candidates are sampled uniformly from an inclusive Range and checked
// against one or more Exists predicates (one per storage domain the number
// must be unique across). The check is only a pre-filter: two callers can
// draw the same free number at the same time, so storage must still enforce
// uniqueness and callers must handle the resulting collision.
package idgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/sakif/cardauth/internal/apperror"
)

const (
	// MaxAttempts bounds single-number generation.
	MaxAttempts = 1000
	// BatchAttemptFactor bounds batch generation at n*BatchAttemptFactor draws.
	BatchAttemptFactor = 10
)

// Range is an inclusive interval of candidate numbers.
type Range struct {
	Min  int64
	Max  int64
	Name string // used in error messages
}

var (
	// CardNumberRange covers every 16-digit number.
	CardNumberRange = Range{Min: 1_000_000_000_000_000, Max: 9_999_999_999_999_999, Name: "card number"}
	// BusinessCodeRange covers every 6-digit number.
	BusinessCodeRange = Range{Min: 100_000, Max: 999_999, Name: "business code"}
)

// Size returns the number of values in r.
func (r Range) Size() int64 {
	return r.Max - r.Min + 1
}

// Exists reports whether candidate is already used in some domain.
type Exists func(ctx context.Context, candidate int64) (bool, error)

// Generator is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator seeded from the runtime's random source.
func New() *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeeded returns a deterministic Generator. Tests use this to force
// repeated draws.
func NewSeeded(seed1, seed2 uint64) *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

func (g *Generator) draw(r Range) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return r.Min + g.rnd.Int64N(r.Size())
}

// Unique returns a number from r for which every predicate reports false.
// It gives up with apperror.ErrCapacityExhausted after MaxAttempts draws.
func (g *Generator) Unique(ctx context.Context, r Range, exists ...Exists) (int64, error) {
	if r.Max < r.Min {
		return 0, fmt.Errorf("idgen: empty range [%d, %d]", r.Min, r.Max)
	}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		candidate := g.draw(r)
		taken, err := anyExists(ctx, candidate, exists)
		if err != nil {
			return 0, err
		}
		if !taken {
			return candidate, nil
		}
	}

	return 0, apperror.CapacityExhausted(r.Name, MaxAttempts)
}

// Batch returns up to n distinct numbers from r that no predicate reports
// as taken. At most n*BatchAttemptFactor candidates are drawn; a short
// result is not an error, callers compare len(result) with n.
func (g *Generator) Batch(ctx context.Context, r Range, n int, exists ...Exists) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	if r.Max < r.Min {
		return nil, fmt.Errorf("idgen: empty range [%d, %d]", r.Min, r.Max)
	}

	out := make([]int64, 0, n)
	used := make(map[int64]struct{}, n)
	maxAttempts := n * BatchAttemptFactor

	for attempt := 0; attempt < maxAttempts && len(out) < n; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		candidate := g.draw(r)
		if _, dup := used[candidate]; dup {
			continue
		}
		taken, err := anyExists(ctx, candidate, exists)
		if err != nil {
			return out, err
		}
		if taken {
			continue
		}
		used[candidate] = struct{}{}
		out = append(out, candidate)
	}

	return out, nil
}

func anyExists(ctx context.Context, candidate int64, exists []Exists) (bool, error) {
	for _, fn := range exists {
		taken, err := fn(ctx, candidate)
		if err != nil {
			return false, fmt.Errorf("idgen: checking %d: %w", candidate, err)
		}
		if taken {
			return true, nil
		}
	}
	return false, nil
}
