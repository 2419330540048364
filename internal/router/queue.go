// Package router consumes ASR events, restores per-peer ordering, and fans
// events out to WebSocket clients.
package router

import (
	"container/heap"
	"sync"
	"time"

	types "github.com/sebas/hotline/api/types/v1"
)

// pendingEvent is one held event awaiting its turn.
type pendingEvent struct {
	voiceStartTS float64
	receivedAt   time.Time
	event        types.ASREvent
}

// eventHeap is a min-heap on voiceStartTS.
type eventHeap []pendingEvent

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].voiceStartTS < h[j].voiceStartTS }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(pendingEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}

// peerIdleTimeout is how long a drained peer entry keeps its publish cursor
// with no traffic before DrainReady drops it. A finished call whose
// call_finished event was lost on the lossy PUB hop is forgotten this way
// instead of leaking an entry per peer.
const peerIdleTimeout = time.Minute

// peerQueue holds the pending events and publish cursor for one peer IP.
type peerQueue struct {
	heap          eventHeap
	lastPublished float64
	lastActivity  time.Time
}

// EventQueue buffers events per peer so that recognition latency jitter
// across concurrent calls does not reorder a single peer's transcript.
// An event is released once it is the next expected for its peer, or after
// it has waited maxDelay regardless.
type EventQueue struct {
	mu       sync.Mutex
	peers    map[string]*peerQueue
	maxDelay time.Duration
	now      func() time.Time
}

// NewEventQueue creates a queue with the given fairness bound.
func NewEventQueue(maxDelay time.Duration) *EventQueue {
	return &EventQueue{
		peers:    make(map[string]*peerQueue),
		maxDelay: maxDelay,
		now:      time.Now,
	}
}

// Push holds an event for its peer and returns whatever that peer's queue
// releases as a consequence.
func (q *EventQueue) Push(ev types.ASREvent) []types.ASREvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	pq, ok := q.peers[ev.PeerIP]
	if !ok {
		pq = &peerQueue{}
		q.peers[ev.PeerIP] = pq
	}

	now := q.now()
	pq.lastActivity = now
	heap.Push(&pq.heap, pendingEvent{
		voiceStartTS: ev.VoiceStartTS,
		receivedAt:   now,
		event:        ev,
	})
	return q.drainPeer(pq)
}

// DrainReady releases events across all peers whose wait has expired, and
// forgets peers that have been empty and idle past peerIdleTimeout. Called
// on a periodic tick so held events do not depend on new arrivals.
func (q *EventQueue) DrainReady() []types.ASREvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []types.ASREvent
	for ip, pq := range q.peers {
		out = append(out, q.drainPeer(pq)...)
		if pq.heap.Len() == 0 && now.Sub(pq.lastActivity) >= peerIdleTimeout {
			delete(q.peers, ip)
		}
	}
	return out
}

// FlushPeer releases everything held for one peer in timestamp order and
// forgets the peer. Used when a call finishes so the terminal marker can
// follow the last transcript out.
func (q *EventQueue) FlushPeer(peerIP string) []types.ASREvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	pq, ok := q.peers[peerIP]
	if !ok {
		return nil
	}
	delete(q.peers, peerIP)

	out := make([]types.ASREvent, 0, pq.heap.Len())
	for pq.heap.Len() > 0 {
		out = append(out, heap.Pop(&pq.heap).(pendingEvent).event)
	}
	return out
}

// DrainAll flushes every peer in timestamp order. Used at shutdown.
func (q *EventQueue) DrainAll() []types.ASREvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []types.ASREvent
	for ip, pq := range q.peers {
		for pq.heap.Len() > 0 {
			out = append(out, heap.Pop(&pq.heap).(pendingEvent).event)
		}
		delete(q.peers, ip)
	}
	return out
}

// Depth returns the total number of held events.
func (q *EventQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, pq := range q.peers {
		n += pq.heap.Len()
	}
	return n
}

// drainPeer releases from the top of one peer's heap while the minimum is
// either the next expected timestamp or has exhausted its wait. Callers hold
// the queue lock.
func (q *EventQueue) drainPeer(pq *peerQueue) []types.ASREvent {
	now := q.now()

	var out []types.ASREvent
	for pq.heap.Len() > 0 {
		top := pq.heap[0]
		if top.voiceStartTS < pq.lastPublished && now.Sub(top.receivedAt) < q.maxDelay {
			break
		}
		heap.Pop(&pq.heap)
		pq.lastPublished = top.voiceStartTS
		pq.lastActivity = now
		out = append(out, top.event)
	}
	return out
}
