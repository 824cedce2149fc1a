package eval

import (
	"fmt"
	"sync"
)

// CostLimitError reports that a batch exceeded its soft cost ceiling.
type CostLimitError struct {
	Spent float64
	Limit float64
}

func (e *CostLimitError) Error() string {
	return fmt.Sprintf("cost limit exceeded: spent $%.6f of $%.6f", e.Spent, e.Limit)
}

// CostTracker accumulates provider cost and latency across a batch. A zero
// MaxCost disables the ceiling. Safe for concurrent use.
type CostTracker struct {
	mu         sync.Mutex
	cost       float64
	durationMS int64
	maxCost    float64
}

// NewCostTracker creates a tracker with the given ceiling (0 = unlimited).
func NewCostTracker(maxCost float64) *CostTracker {
	return &CostTracker{maxCost: maxCost}
}

// Record adds one call's cost and duration. Returns *CostLimitError once the
// accumulated cost passes the ceiling.
func (t *CostTracker) Record(cost float64, durationMS int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cost += cost
	t.durationMS += durationMS

	if t.maxCost > 0 && t.cost > t.maxCost {
		return &CostLimitError{Spent: t.cost, Limit: t.maxCost}
	}
	return nil
}

// Snapshot returns the accumulated cost and duration so far.
func (t *CostTracker) Snapshot() (cost float64, durationMS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost, t.durationMS
}
