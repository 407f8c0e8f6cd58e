package driver

import (
	"context"
	"fmt"
	"sync"
)

// gatherer is a reusable all-gather barrier for a fixed set of ranks. No
// rank returns from a round until every rank has contributed to it.
type gatherer struct {
	mu    sync.Mutex
	n     int
	round *gatherRound
}

type gatherRound struct {
	parts   [][]Packed
	arrived int
	done    chan struct{}
}

func newGatherRound(n int) *gatherRound {
	return &gatherRound{parts: make([][]Packed, n), done: make(chan struct{})}
}

func newGatherer(n int) *gatherer {
	return &gatherer{n: n, round: newGatherRound(n)}
}

// AllGather contributes part for rank and returns every rank's
// contribution in rank order once all have arrived. A cancelled context
// releases the caller without completing the round.
func (g *gatherer) AllGather(ctx context.Context, rank int, part []Packed) ([]Packed, error) {
	if rank < 0 || rank >= g.n {
		return nil, fmt.Errorf("rank %d out of range [0,%d)", rank, g.n)
	}

	g.mu.Lock()
	r := g.round
	if r.parts[rank] != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("rank %d joined the same round twice", rank)
	}
	if part == nil {
		part = []Packed{}
	}
	r.parts[rank] = part
	r.arrived++
	if r.arrived == g.n {
		g.round = newGatherRound(g.n)
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var all []Packed
	for _, p := range r.parts {
		all = append(all, p...)
	}
	return all, nil
}

// Barrier blocks until every rank has reached it
func (g *gatherer) Barrier(ctx context.Context, rank int) error {
	_, err := g.AllGather(ctx, rank, nil)
	return err
}
