package capture

import (
	"sync"

	types "github.com/sebas/hotline/api/types/v1"
	"github.com/sebas/hotline/internal/media"
)

// Stream is the reassembly state for one RTP stream of one call leg.
type Stream struct {
	Key     types.CallKey
	Codec   media.Codec
	Reorder *ReorderBuffer
	Segment *Segment
	Call    *Call
}

// StreamManager owns the live streams, keyed by the call identity tuple.
// One mutex serializes the capture loop and the timeout sweeper.
type StreamManager struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

// NewStreamManager creates an empty manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{streams: make(map[string]*Stream)}
}

// GetOrCreate returns the stream for key, creating it on first use.
func (m *StreamManager) GetOrCreate(key types.CallKey, codec media.Codec, call *Call) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.streams[key.String()]; ok {
		return s, false
	}

	s := &Stream{
		Key:     key,
		Codec:   codec,
		Reorder: NewReorderBuffer(codec),
		Segment: NewSegment(codec),
		Call:    call,
	}
	m.streams[key.String()] = s
	return s, true
}

// ByCall returns every stream belonging to a dialog.
func (m *StreamManager) ByCall(uniqueKey string) []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Stream
	for _, s := range m.streams {
		if s.Key.UniqueKey == uniqueKey {
			out = append(out, s)
		}
	}
	return out
}

// Remove drops a stream after its terminal segment was published.
func (m *StreamManager) Remove(key types.CallKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, key.String())
}

// Count returns the number of live streams.
func (m *StreamManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}
