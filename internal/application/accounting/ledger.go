// Package accounting tracks resource units consumed by stage invocations,
// process-wide and per task.
package accounting

import (
	"fmt"
	"sync"
)

// DefaultLimit is the process-wide budget when none is configured.
const DefaultLimit int64 = 2_000_000

// Ledger is the single owner of the usage counters. Charge is its only mutation.
type Ledger struct {
	mu        sync.Mutex
	limit     int64
	totalUsed int64
	perTask   map[string]int64
}

// Snapshot is a consistent view of the ledger
type Snapshot struct {
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
	Limit     int64 `json:"limit"`
}

// NewLedger creates a ledger with the given budget
func NewLedger(limit int64) *Ledger {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Ledger{
		limit:   limit,
		perTask: make(map[string]int64),
	}
}

// Charge adds amount to the task counter and the process-wide counter atomically.
func (l *Ledger) Charge(taskID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative charge %d for task %s", amount, taskID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.perTask[taskID] += amount
	l.totalUsed += amount
	return nil
}

// Remaining returns max(0, limit - used).
func (l *Ledger) Remaining() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remainingLocked()
}

// Used returns the process-wide consumption.
func (l *Ledger) Used() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalUsed
}

// Limit returns the configured budget.
func (l *Ledger) Limit() int64 {
	return l.limit
}

// TaskUsed returns the consumption of one task, zero if unknown.
func (l *Ledger) TaskUsed(taskID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perTask[taskID]
}

// Snapshot returns used, remaining and limit read under one lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Used:      l.totalUsed,
		Remaining: l.remainingLocked(),
		Limit:     l.limit,
	}
}

func (l *Ledger) remainingLocked() int64 {
	if l.totalUsed >= l.limit {
		return 0
	}
	return l.limit - l.totalUsed
}
