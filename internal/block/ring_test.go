package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRing_MinimumDepth(t *testing.T) {
	r := NewRing(1)
	assert.Equal(t, 2, r.Depth())
}

func TestRing_ReserveCommitAdvance(t *testing.T) {
	r := NewRing(4)

	b, ok := r.Reserve()
	require.True(t, ok)
	assert.Equal(t, Loading, b.State)

	b.Length = 10
	r.Commit(b)
	assert.Equal(t, Queued, b.State)

	next := r.NextToRun()
	require.NotNil(t, next)
	assert.Equal(t, Running, next.State)
	assert.Equal(t, b.Index, next.Index)

	r.Advance()
	assert.Equal(t, Empty, r.At(b.Index).State)
}

func TestRing_ReserveFailsWhenFull(t *testing.T) {
	r := NewRing(2)

	for i := 0; i < 2; i++ {
		b, ok := r.Reserve()
		require.True(t, ok, "a depth-2 ring must accept two blocks")
		r.Commit(b)
	}

	_, ok := r.Reserve()
	assert.False(t, ok, "the reservation that would overwrite a live block must fail")
	assert.True(t, r.Full())
}

func TestRing_AdvanceFreesASlotForReservation(t *testing.T) {
	r := NewRing(2)
	for i := 0; i < 2; i++ {
		b, ok := r.Reserve()
		require.True(t, ok)
		r.Commit(b)
	}
	require.True(t, r.Full())

	require.NotNil(t, r.NextToRun())
	r.Advance()

	_, ok := r.Reserve()
	assert.True(t, ok, "freeing one block must re-open exactly one reservation")
}

func TestRing_NextToRun_ClearsReplannable(t *testing.T) {
	r := NewRing(4)
	b, ok := r.Reserve()
	require.True(t, ok)
	b.Replannable = true
	r.Commit(b)

	running := r.NextToRun()

	require.NotNil(t, running)
	assert.False(t, running.Replannable, "a running block must never be replanned")
}

func TestRing_Abandon(t *testing.T) {
	r := NewRing(4)
	b, ok := r.Reserve()
	require.True(t, ok)
	idx := b.Index

	r.Abandon(b)

	assert.Equal(t, Empty, r.At(idx).State)
	again, ok := r.Reserve()
	require.True(t, ok)
	assert.Equal(t, idx, again.Index, "abandoning must not advance the write cursor")
}

func TestRing_Flush(t *testing.T) {
	r := NewRing(4)
	for i := 0; i < 3; i++ {
		b, ok := r.Reserve()
		require.True(t, ok)
		r.Commit(b)
	}

	r.Flush()

	counts := r.Counts()
	assert.Equal(t, 4, counts[Empty])
	assert.Equal(t, 0, r.WriteIndex())
	assert.Equal(t, 0, r.QueueIndex())
	assert.Equal(t, 0, r.ReadIndex())
}

func TestRing_ReplannableFromNewest_StopsAtNonReplannable(t *testing.T) {
	r := NewRing(6)
	var indices []int
	for i := 0; i < 4; i++ {
		b, ok := r.Reserve()
		require.True(t, ok)
		b.Replannable = i != 1 // block 1 is not replannable
		r.Commit(b)
		indices = append(indices, b.Index)
	}

	var visited []int
	r.ReplannableFromNewest(indices[3], func(b *Block) bool {
		visited = append(visited, b.Index)
		return true
	})

	// Walking backward from the newest (index 3) must stop once it hits the
	// non-replannable block 1, so only blocks 3 and 2 are visited.
	assert.Equal(t, []int{indices[3], indices[2]}, visited)
}

func TestRing_ForwardFrom(t *testing.T) {
	r := NewRing(6)
	var indices []int
	for i := 0; i < 3; i++ {
		b, ok := r.Reserve()
		require.True(t, ok)
		r.Commit(b)
		indices = append(indices, b.Index)
	}

	var visited []int
	r.ForwardFrom(indices[0], func(b *Block) bool {
		visited = append(visited, b.Index)
		return true
	})

	assert.Equal(t, indices, visited)
}

func TestRing_Counts_PartitionsRing(t *testing.T) {
	r := NewRing(4)
	b, ok := r.Reserve()
	require.True(t, ok)
	r.Commit(b)

	counts := r.Counts()
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, r.Depth(), total, "every block must be in exactly one state")
}
