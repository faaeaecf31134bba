package delivery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replicated-feed/internal/causal"
	"replicated-feed/internal/clock"
	"replicated-feed/internal/event"
)

func stamped(id string, sender int, vc ...uint64) event.Message {
	return event.Message{EventID: id, ProcessID: sender, VectorClock: clock.VectorClock(vc)}
}

func TestBuffer_AddContains(t *testing.T) {
	b := NewBuffer()
	b.Add(stamped("a", 0, 1, 0))

	assert.Equal(t, 1, b.Len())
	assert.True(t, b.Contains("a"))
	assert.False(t, b.Contains("b"))
}

func TestBuffer_DrainCascadesInOneCall(t *testing.T) {
	const chain = 6
	local := clock.New(2)
	b := NewBuffer()

	// Insert in reverse so every pass only unlocks the next link.
	for i := chain; i >= 2; i-- {
		b.Add(stamped(fmt.Sprintf("m%d", i), 0, uint64(i), 0))
	}
	// First link arrives and is delivered by the caller.
	local.Merge(clock.VectorClock{1, 0})

	var order []string
	check := func(m event.Message) causal.Verdict {
		return causal.Check(m.VectorClock, m.ProcessID, local)
	}
	deliver := func(m event.Message) {
		local.Merge(m.VectorClock)
		order = append(order, m.EventID)
	}

	delivered, dropped := b.Drain(check, deliver)

	assert.Equal(t, chain-1, delivered)
	assert.Empty(t, dropped)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []string{"m2", "m3", "m4", "m5", "m6"}, order)
	assert.Equal(t, clock.VectorClock{chain, 0}, local)
}

func TestBuffer_DrainKeepsMissing(t *testing.T) {
	local := clock.New(2)
	b := NewBuffer()
	b.Add(stamped("gap", 1, 0, 2))

	check := func(m event.Message) causal.Verdict {
		return causal.Check(m.VectorClock, m.ProcessID, local)
	}
	delivered, dropped := b.Drain(check, func(event.Message) { t.Fatal("nothing is ready") })

	assert.Zero(t, delivered)
	assert.Empty(t, dropped)
	assert.True(t, b.Contains("gap"))
}

func TestBuffer_DrainDropsSuperseded(t *testing.T) {
	local := clock.VectorClock{0, 0}
	b := NewBuffer()
	b.Add(stamped("first", 0, 1, 0))
	b.Add(stamped("first-copy", 0, 1, 0))

	check := func(m event.Message) causal.Verdict {
		return causal.Check(m.VectorClock, m.ProcessID, local)
	}
	delivered, dropped := b.Drain(check, func(m event.Message) { local.Merge(m.VectorClock) })

	assert.Equal(t, 1, delivered)
	require.Len(t, dropped, 1)
	assert.Equal(t, "first-copy", dropped[0].EventID)
	assert.Zero(t, b.Len())
}

func TestBuffer_PendingIsCopy(t *testing.T) {
	b := NewBuffer()
	b.Add(stamped("a", 0, 1, 0))

	p := b.Pending()
	p[0].VectorClock[0] = 9

	assert.Equal(t, uint64(1), b.Pending()[0].VectorClock[0])
}
