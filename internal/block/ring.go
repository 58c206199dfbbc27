package block

import "fmt"

// Ring is the fixed-size pool of planning blocks plus the three cursor
// indices that drive the cooperative concurrency model: exactly one writer
// advances W/Q (reserve and commit), exactly one reader advances R (run
// tail). Whether a slot is free is decided by its State, never by cursor
// arithmetic, so a full ring holds exactly Depth live blocks.
type Ring struct {
	blocks []Block
	w      int // reservation cursor: next slot Reserve() will hand out
	q      int // queue cursor: one past the most recently committed block
	r      int // run cursor: block currently running / next to run
}

// NewRing allocates a ring of the given depth. depth must be >= 2.
func NewRing(depth int) *Ring {
	if depth < 2 {
		depth = 2
	}
	blocks := make([]Block, depth)
	for i := range blocks {
		blocks[i] = Block{
			Index: i,
			Nx:    (i + 1) % depth,
			Pv:    (i + depth - 1) % depth,
			State: Empty,
		}
	}
	return &Ring{blocks: blocks}
}

// Depth returns the pool size.
func (rg *Ring) Depth() int { return len(rg.blocks) }

// At returns a pointer to the block at the given ring index.
func (rg *Ring) At(i int) *Block { return &rg.blocks[i] }

// Tail returns the run-cursor block: the one currently running, or the
// next the reader will pick up. Nil if the ring is drained.
func (rg *Ring) Tail() *Block {
	b := &rg.blocks[rg.r]
	if b.State == Empty {
		return nil
	}
	return b
}

// Head returns the most recently committed block, or nil if none is live.
func (rg *Ring) Head() *Block {
	b := &rg.blocks[prevIndex(rg.q, len(rg.blocks))]
	if b.State == Empty || b.State == Loading {
		return nil
	}
	return b
}

// Reserve hands out the next empty slot for the writer to fill in.
// Returns nil, false if the slot under the write cursor is still live —
// the caller reports a full queue without touching any cursor.
func (rg *Ring) Reserve() (*Block, bool) {
	b := &rg.blocks[rg.w]
	if b.State != Empty {
		return nil, false
	}
	b.State = Loading
	return b, true
}

// Commit advances the write and queue cursors past the given
// (just-filled) block, marking it Queued and ready for the reader.
func (rg *Ring) Commit(b *Block) {
	b.State = Queued
	rg.w = b.Nx
	rg.q = b.Nx
}

// Abandon returns a reserved-but-unfilled block to Empty without advancing
// any cursor, for input-shape rejections that must leave the queue
// untouched.
func (rg *Ring) Abandon(b *Block) {
	b.Reset()
}

// NextToRun promotes the block under the run cursor to Running and returns
// it, or nil if the reader has caught up with the writer. A Running block
// is never replanned, so the flag is dropped on promotion.
func (rg *Ring) NextToRun() *Block {
	b := &rg.blocks[rg.r]
	if b.State == Empty {
		return nil
	}
	if b.State != Running {
		b.State = Running
		b.Replannable = false
	}
	return b
}

// Advance frees the block the reader just finished and moves the run
// cursor to the next one.
func (rg *Ring) Advance() {
	b := &rg.blocks[rg.r]
	next := b.Nx
	b.Reset()
	rg.r = next
}

// Flush drops every block back to Empty and resets all cursors to the
// same slot. The currently Running block, if any, is also cleared: flush
// is used for feedhold-cancel and abort, both of which stop motion
// outright.
func (rg *Ring) Flush() {
	for i := range rg.blocks {
		rg.blocks[i].Reset()
	}
	rg.w, rg.q, rg.r = 0, 0, 0
}

// ReplannableFromNewest walks the Pv chain starting at the given block
// index while each block's Replannable flag is true, calling visit on each
// one in backward order. It never visits the Running block: promotion to
// Running clears the flag.
func (rg *Ring) ReplannableFromNewest(start int, visit func(b *Block) bool) {
	idx := start
	seen := 0
	for seen < len(rg.blocks) {
		b := &rg.blocks[idx]
		if b.State == Empty || !b.Replannable {
			return
		}
		if !visit(b) {
			return
		}
		idx = b.Pv
		seen++
	}
}

// ForwardFrom walks Nx starting at idx through live blocks up to (but not
// including) the write cursor, calling visit on each.
func (rg *Ring) ForwardFrom(idx int, visit func(b *Block) bool) {
	seen := 0
	for seen < len(rg.blocks) {
		b := &rg.blocks[idx]
		if b.State == Empty || b.State == Loading {
			return
		}
		if !visit(b) {
			return
		}
		next := b.Nx
		if next == rg.w {
			return
		}
		idx = next
		seen++
	}
}

// Full reports whether Reserve would currently fail.
func (rg *Ring) Full() bool {
	return rg.blocks[rg.w].State != Empty
}

// Counts returns how many blocks are in each state. The states partition
// the ring: every block is in exactly one.
func (rg *Ring) Counts() map[State]int {
	counts := map[State]int{}
	for i := range rg.blocks {
		counts[rg.blocks[i].State]++
	}
	return counts
}

// String renders cursor positions for diagnostics.
func (rg *Ring) String() string {
	return fmt.Sprintf("ring{depth=%d w=%d q=%d r=%d}", len(rg.blocks), rg.w, rg.q, rg.r)
}

func prevIndex(i, depth int) int {
	return (i + depth - 1) % depth
}

// WriteIndex, QueueIndex, ReadIndex expose the raw cursors for invariant
// checks.
func (rg *Ring) WriteIndex() int { return rg.w }
func (rg *Ring) QueueIndex() int { return rg.q }
func (rg *Ring) ReadIndex() int  { return rg.r }
