package capture

import (
	"github.com/sebas/hotline/internal/media"
)

// maxPendingDistance is how far ahead of the drain cursor the newest pending
// packet may run before missing packets are declared lost and skipped with
// silence fill.
const maxPendingDistance = 100

// seenWindow bounds the duplicate-suppression set. Sequence numbers wrap at
// 65536, so an unbounded set would also readmit stale duplicates; a FIFO
// window of the most recent sequences is both bounded and correct.
const seenWindow = 1024

// ReorderBuffer restores RTP sequence order for one stream. Payloads leave
// strictly in ascending sequence modulo 2^16; lost packets are replaced by
// codec silence of equal length so segment timing is preserved.
type ReorderBuffer struct {
	codec media.Codec

	pending   map[uint16][]byte
	seen      map[uint16]struct{}
	seenOrder []uint16

	last        uint16 // highest sequence handed to the sink
	initialized bool

	// Loss accounting, surfaced in segment metadata and logs.
	Discontinuities int
	MaxGap          int
}

// NewReorderBuffer creates a buffer for one RTP stream.
func NewReorderBuffer(codec media.Codec) *ReorderBuffer {
	return &ReorderBuffer{
		codec:   codec,
		pending: make(map[uint16][]byte),
		seen:    make(map[uint16]struct{}),
	}
}

// Push accepts packet seq and drains every payload that is now in order to
// sink. Generated silence payloads are passed to the sink the same way as
// received ones. Returns false for duplicates.
func (b *ReorderBuffer) Push(seq uint16, payload []byte, sink func(payload []byte)) bool {
	if _, dup := b.seen[seq]; dup {
		return false
	}
	b.remember(seq)

	if !b.initialized {
		b.last = seq - 1
		b.initialized = true
	} else if behind := int16(b.last - seq); behind >= 0 {
		// Late arrival for a position already drained (or silence-filled).
		b.Discontinuities++
		return false
	}

	b.pending[seq] = payload

	b.drainSequential(sink)
	b.drainStale(sink)
	return true
}

// Flush drains everything still pending, filling sequence gaps with silence.
// Called when a segment is emitted or the call ends.
func (b *ReorderBuffer) Flush(sink func(payload []byte)) {
	for len(b.pending) > 0 {
		b.skipToOldest(sink)
		b.drainSequential(sink)
	}
}

// Pending returns the number of out-of-order payloads held.
func (b *ReorderBuffer) Pending() int {
	return len(b.pending)
}

// drainSequential hands over payloads while the next expected sequence is
// present.
func (b *ReorderBuffer) drainSequential(sink func(payload []byte)) {
	for {
		next := b.last + 1
		payload, ok := b.pending[next]
		if !ok {
			return
		}
		delete(b.pending, next)
		sink(payload)
		b.last = next
	}
}

// drainStale declares gaps lost once the newest pending packet runs more
// than maxPendingDistance ahead of the cursor, then continues draining.
func (b *ReorderBuffer) drainStale(sink func(payload []byte)) {
	for len(b.pending) > 0 && b.newestDistance() > maxPendingDistance {
		b.skipToOldest(sink)
		b.drainSequential(sink)
	}
}

// skipToOldest jumps the cursor to the oldest pending packet, emitting one
// silence payload per missing sequence.
func (b *ReorderBuffer) skipToOldest(sink func(payload []byte)) {
	seq, payload, ok := b.oldestPending()
	if !ok {
		return
	}

	gap := int((seq - b.last - 1) & 0xFFFF)
	if gap > 0 {
		b.Discontinuities++
		if gap > b.MaxGap {
			b.MaxGap = gap
		}
		silence := b.codec.SilencePayload(len(payload))
		for i := 0; i < gap; i++ {
			sink(silence)
		}
	}

	delete(b.pending, seq)
	sink(payload)
	b.last = seq
}

// oldestPending returns the pending packet modularly closest ahead of the
// cursor.
func (b *ReorderBuffer) oldestPending() (uint16, []byte, bool) {
	var (
		bestSeq  uint16
		bestDist = -1
	)
	for seq := range b.pending {
		dist := int((seq - b.last) & 0xFFFF)
		if bestDist == -1 || dist < bestDist {
			bestSeq, bestDist = seq, dist
		}
	}
	if bestDist == -1 {
		return 0, nil, false
	}
	return bestSeq, b.pending[bestSeq], true
}

// newestDistance is how far the furthest pending packet runs ahead of the
// cursor.
func (b *ReorderBuffer) newestDistance() int {
	max := 0
	for seq := range b.pending {
		if dist := int((seq - b.last) & 0xFFFF); dist > max {
			max = dist
		}
	}
	return max
}

// remember records seq in the bounded duplicate window.
func (b *ReorderBuffer) remember(seq uint16) {
	b.seen[seq] = struct{}{}
	b.seenOrder = append(b.seenOrder, seq)
	if len(b.seenOrder) > seenWindow {
		evict := b.seenOrder[0]
		b.seenOrder = b.seenOrder[1:]
		delete(b.seen, evict)
	}
}
