// Package collect implements the collective reduction used by map
// accumulation workers. A Group of fixed size runs one all-reduce per map
// kind: every participant contributes its local map exactly once, blocks
// until all ranks have contributed, and then receives the same fully merged
// map. Any participant failing - by aborting explicitly, contributing a
// mismatched map, or having its context cancelled while blocked - fails the
// whole reduction, and every participant receives a ReduceError naming the
// failed rank.
package collect

import (
	"context"
	"fmt"
	"sync"

	"github.com/star/scanmap/internal/skymap"
)

// ReduceError reports a failed collective reduction and the rank whose
// failure caused it.
type ReduceError struct {
	Rank int
	Err  error
}

func (e *ReduceError) Error() string {
	return fmt.Sprintf("reduction failed at worker %d: %v", e.Rank, e.Err)
}

func (e *ReduceError) Unwrap() error { return e.Err }

// Group coordinates the workers participating in a reduction. A group
// carries one hit-map round and one Stokes-map round; a pipeline that needs
// further reductions creates a new group.
type Group struct {
	n int

	abortOnce sync.Once
	aborted   chan struct{}
	abortErr  *ReduceError

	hits   hitsRound
	stokes stokesRound
}

// NewGroup creates a reduction group for n workers, ranks 0 through n-1.
func NewGroup(n int) (*Group, error) {
	if n < 1 {
		return nil, fmt.Errorf("group size must be positive, got %d", n)
	}
	return &Group{
		n:       n,
		aborted: make(chan struct{}),
		hits:    hitsRound{seen: make([]bool, n), done: make(chan struct{})},
		stokes:  stokesRound{seen: make([]bool, n), done: make(chan struct{})},
	}, nil
}

// Size returns the number of participating workers.
func (g *Group) Size() int { return g.n }

// Abort fails the reduction on behalf of the given rank. The first abort
// wins; later ones are ignored. All blocked and future participants receive
// the resulting ReduceError.
func (g *Group) Abort(rank int, err error) {
	g.abortOnce.Do(func() {
		g.abortErr = &ReduceError{Rank: rank, Err: err}
		close(g.aborted)
	})
}

// Err returns the abort error, nil while the group is healthy.
func (g *Group) Err() error {
	select {
	case <-g.aborted:
		return g.abortErr
	default:
		return nil
	}
}

// hitsRound and stokesRound hold one reduction each. The merged map is
// built incrementally under the round lock; the last arrival closes done,
// publishing the completed map to every waiter.
type hitsRound struct {
	mu      sync.Mutex
	seen    []bool
	arrived int
	merged  *skymap.HitMap
	done    chan struct{}
}

type stokesRound struct {
	mu      sync.Mutex
	seen    []bool
	arrived int
	merged  *skymap.StokesMap
	done    chan struct{}
}

// AllReduceHits contributes this rank's local hit map and blocks until all
// ranks have contributed, returning the merged map. All ranks receive the
// same map value, which must be treated as read-only. The local map is not
// modified. If the reduction fails the returned error is a *ReduceError.
func (g *Group) AllReduceHits(ctx context.Context, rank int, local *skymap.HitMap) (*skymap.HitMap, error) {
	if rank < 0 || rank >= g.n {
		return nil, fmt.Errorf("rank %d out of range [0, %d)", rank, g.n)
	}
	if local == nil {
		return nil, fmt.Errorf("rank %d contributed a nil map", rank)
	}
	if err := g.Err(); err != nil {
		return nil, err
	}

	r := &g.hits
	r.mu.Lock()
	if r.seen[rank] {
		r.mu.Unlock()
		g.Abort(rank, fmt.Errorf("rank %d contributed twice", rank))
		return nil, g.abortErr
	}
	r.seen[rank] = true
	if r.merged == nil {
		m, err := skymap.NewHitMap(local.NPix(), local.SubmapSize())
		if err != nil {
			r.mu.Unlock()
			g.Abort(rank, err)
			return nil, g.abortErr
		}
		r.merged = m
	}
	if err := r.merged.Merge(local); err != nil {
		r.mu.Unlock()
		g.Abort(rank, err)
		return nil, g.abortErr
	}
	r.arrived++
	if r.arrived == g.n {
		close(r.done)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return r.merged, nil
	case <-g.aborted:
		// A completed round wins over an abort that raced in later.
		select {
		case <-r.done:
			return r.merged, nil
		default:
		}
		return nil, g.abortErr
	case <-ctx.Done():
		select {
		case <-r.done:
			return r.merged, nil
		default:
		}
		g.Abort(rank, ctx.Err())
		return nil, g.abortErr
	}
}

// AllReduceStokes contributes this rank's local Stokes map and blocks until
// all ranks have contributed, returning the merged map. Semantics match
// AllReduceHits.
func (g *Group) AllReduceStokes(ctx context.Context, rank int, local *skymap.StokesMap) (*skymap.StokesMap, error) {
	if rank < 0 || rank >= g.n {
		return nil, fmt.Errorf("rank %d out of range [0, %d)", rank, g.n)
	}
	if local == nil {
		return nil, fmt.Errorf("rank %d contributed a nil map", rank)
	}
	if err := g.Err(); err != nil {
		return nil, err
	}

	r := &g.stokes
	r.mu.Lock()
	if r.seen[rank] {
		r.mu.Unlock()
		g.Abort(rank, fmt.Errorf("rank %d contributed twice", rank))
		return nil, g.abortErr
	}
	r.seen[rank] = true
	if r.merged == nil {
		m, err := skymap.NewStokesMap(local.NPix(), local.SubmapSize())
		if err != nil {
			r.mu.Unlock()
			g.Abort(rank, err)
			return nil, g.abortErr
		}
		r.merged = m
	}
	if err := r.merged.Merge(local); err != nil {
		r.mu.Unlock()
		g.Abort(rank, err)
		return nil, g.abortErr
	}
	r.arrived++
	if r.arrived == g.n {
		close(r.done)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return r.merged, nil
	case <-g.aborted:
		// A completed round wins over an abort that raced in later.
		select {
		case <-r.done:
			return r.merged, nil
		default:
		}
		return nil, g.abortErr
	case <-ctx.Done():
		select {
		case <-r.done:
			return r.merged, nil
		default:
		}
		g.Abort(rank, ctx.Err())
		return nil, g.abortErr
	}
}
