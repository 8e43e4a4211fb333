package accounting

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeUpdatesTaskAndTotal(t *testing.T) {
	l := NewLedger(100)

	require.NoError(t, l.Charge("a", 10))
	require.NoError(t, l.Charge("b", 5))
	require.NoError(t, l.Charge("a", 7))

	assert.Equal(t, int64(17), l.TaskUsed("a"))
	assert.Equal(t, int64(5), l.TaskUsed("b"))
	assert.Equal(t, int64(22), l.Used())
	assert.Equal(t, int64(78), l.Remaining())
	assert.Equal(t, int64(0), l.TaskUsed("unknown"))
}

func TestRemainingNeverNegative(t *testing.T) {
	l := NewLedger(10)
	require.NoError(t, l.Charge("a", 25))

	assert.Equal(t, int64(0), l.Remaining())
	snap := l.Snapshot()
	assert.Equal(t, Snapshot{Used: 25, Remaining: 0, Limit: 10}, snap)
}

func TestNegativeChargeRejected(t *testing.T) {
	l := NewLedger(10)
	assert.Error(t, l.Charge("a", -1))
	assert.Equal(t, int64(0), l.Used())
}

func TestDefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NewLedger(0).Limit())
}

// The review and test-generation branches charge the same task concurrently.
func TestConcurrentPairChargesAreNotLost(t *testing.T) {
	l := NewLedger(DefaultLimit)

	const rounds = 100
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.Charge("task", 3)
		}()
		go func() {
			defer wg.Done()
			_ = l.Charge("task", 4)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(rounds*7), l.TaskUsed("task"))
	assert.Equal(t, int64(rounds*7), l.Used())
}
