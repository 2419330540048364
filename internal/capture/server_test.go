package capture

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"

	types "github.com/sebas/hotline/api/types/v1"
	"github.com/sebas/hotline/internal/media"
)

type fakeSink struct {
	mu       sync.Mutex
	metas    []types.SegmentMeta
	payloads [][]byte
}

func (f *fakeSink) Publish(meta types.SegmentMeta, pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metas = append(f.metas, meta)
	f.payloads = append(f.payloads, pcm)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func newTestServer(sink *fakeSink) *Server {
	return NewServer(Config{
		HostIP:           "10.0.0.1",
		SIPPort:          5060,
		SegmentThreshold: 2 * time.Second,
		CallTimeout:      30 * time.Second,
	}, NewChanSource(1), sink)
}

func sipDatagram(payload []byte) Datagram {
	return Datagram{SrcIP: "10.0.0.50", DstIP: "10.0.0.1", SrcPort: 5060, DstPort: 5060, Payload: payload}
}

func rtpDatagram(t *testing.T, seq uint16, ssrc uint32, payload []byte) Datagram {
	t.Helper()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    0,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 160,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("Marshal RTP packet: %v", err)
	}
	return Datagram{SrcIP: "10.0.0.50", DstIP: "10.0.0.1", SrcPort: 10512, DstPort: 10600, Payload: raw}
}

// voicePayload is clearly non-silence µ-law audio.
func voicePayload() []byte {
	p := make([]byte, 160)
	for i := range p {
		p[i] = 0x10 + byte(i%16)
	}
	return p
}

// Scenario: an ordered single-speaker call. 100 packets of 20 ms reach the
// 2 s threshold and flush one segment; BYE emits the terminal marker.
func TestOrderedSingleSpeakerCall(t *testing.T) {
	sink := &fakeSink{}
	srv := newTestServer(sink)

	srv.handleDatagram(sipDatagram(inviteMessage("call-a@host")))
	for seq := uint16(1000); seq < 1100; seq++ {
		srv.handleDatagram(rtpDatagram(t, seq, 0x12345678, voicePayload()))
	}

	if len(sink.metas) != 1 {
		t.Fatalf("segments published = %d, want 1", len(sink.metas))
	}
	meta, pcm := sink.metas[0], sink.payloads[0]
	if meta.SSRC != 0x12345678 {
		t.Errorf("SSRC = %#x, want 0x12345678", meta.SSRC)
	}
	if meta.UniqueKey != "call-a@host" {
		t.Errorf("UniqueKey = %q, want call-a@host", meta.UniqueKey)
	}
	if meta.Source != types.SourceCitizen {
		t.Errorf("Source = %q, want citizen", meta.Source)
	}
	if meta.PeerIP != "10.0.0.50" {
		t.Errorf("PeerIP = %q, want 10.0.0.50", meta.PeerIP)
	}
	if meta.IsFinished {
		t.Error("threshold segment marked finished")
	}
	if len(pcm) != 32000 {
		t.Errorf("segment PCM = %d bytes, want 32000 (16000 samples)", len(pcm))
	}

	srv.handleDatagram(sipDatagram(byeMessage("call-a@host")))
	if len(sink.metas) != 2 {
		t.Fatalf("segments after BYE = %d, want 2", len(sink.metas))
	}
	if !sink.metas[1].IsFinished {
		t.Error("terminal segment not marked finished")
	}
}

// Scenario: the same packets delivered with adjacent swaps produce the same
// segment bytes as in-order delivery.
func TestReorderedCallMatchesOrdered(t *testing.T) {
	ordered := &fakeSink{}
	srv := newTestServer(ordered)
	srv.handleDatagram(sipDatagram(inviteMessage("call-b@host")))
	for seq := uint16(1000); seq < 1100; seq++ {
		srv.handleDatagram(rtpDatagram(t, seq, 0xAB, voicePayload()))
	}

	shuffled := &fakeSink{}
	srv2 := newTestServer(shuffled)
	srv2.handleDatagram(sipDatagram(inviteMessage("call-b@host")))
	srv2.handleDatagram(rtpDatagram(t, 1000, 0xAB, voicePayload()))
	for seq := uint16(1002); seq < 1100; seq += 2 {
		srv2.handleDatagram(rtpDatagram(t, seq, 0xAB, voicePayload()))
		srv2.handleDatagram(rtpDatagram(t, seq-1, 0xAB, voicePayload()))
	}
	srv2.handleDatagram(rtpDatagram(t, 1099, 0xAB, voicePayload()))

	if len(ordered.payloads) != 1 || len(shuffled.payloads) != 1 {
		t.Fatalf("segments = %d and %d, want 1 and 1", len(ordered.payloads), len(shuffled.payloads))
	}
	if !bytes.Equal(ordered.payloads[0], shuffled.payloads[0]) {
		t.Error("reordered delivery produced different segment bytes")
	}
}

// Scenario: a single lost packet appears as 160 decoded silence samples at
// its position in the terminal flush.
func TestSinglePacketLoss(t *testing.T) {
	sink := &fakeSink{}
	srv := newTestServer(sink)

	srv.handleDatagram(sipDatagram(inviteMessage("call-c@host")))
	for seq := uint16(1000); seq < 1100; seq++ {
		if seq == 1050 {
			continue
		}
		srv.handleDatagram(rtpDatagram(t, seq, 0xCD, voicePayload()))
	}
	srv.handleDatagram(sipDatagram(byeMessage("call-c@host")))

	// 99 packets stay under the threshold; everything arrives in the
	// terminal segment, gap included.
	if len(sink.payloads) != 1 {
		t.Fatalf("segments = %d, want 1", len(sink.payloads))
	}
	pcm := sink.payloads[0]
	if len(pcm) != 32000 {
		t.Fatalf("PCM = %d bytes, want 32000", len(pcm))
	}

	wantSilence := media.CodecPCMU.Decode(media.CodecPCMU.SilencePayload(160))
	gapStart := 50 * 320
	if !bytes.Equal(pcm[gapStart:gapStart+320], wantSilence) {
		t.Error("lost packet position does not contain decoded silence")
	}
}

// Two SSRCs under one dialog produce independent segments.
func TestInterleavedStreams(t *testing.T) {
	sink := &fakeSink{}
	srv := newTestServer(sink)

	srv.handleDatagram(sipDatagram(inviteMessage("call-d@host")))
	for seq := uint16(0); seq < 50; seq++ {
		srv.handleDatagram(rtpDatagram(t, seq, 0xA1, voicePayload()))
		srv.handleDatagram(rtpDatagram(t, seq, 0xB2, voicePayload()))
	}
	srv.handleDatagram(sipDatagram(byeMessage("call-d@host")))

	bySSRC := map[uint32]int{}
	for _, meta := range sink.metas {
		bySSRC[meta.SSRC]++
	}
	if len(bySSRC) != 2 {
		t.Fatalf("distinct SSRCs published = %d, want 2", len(bySSRC))
	}
	for ssrc, n := range bySSRC {
		if n != 1 {
			t.Errorf("ssrc %#x segments = %d, want 1 terminal segment", ssrc, n)
		}
	}
}

// Segments that are almost entirely silence are filtered, but the terminal
// end-of-call marker still goes out.
func TestSilentSegmentFiltered(t *testing.T) {
	sink := &fakeSink{}
	srv := newTestServer(sink)

	srv.handleDatagram(sipDatagram(inviteMessage("call-e@host")))
	silence := media.CodecPCMU.SilencePayload(160)
	for seq := uint16(0); seq < 100; seq++ {
		srv.handleDatagram(rtpDatagram(t, seq, 0xEE, silence))
	}
	srv.handleDatagram(sipDatagram(byeMessage("call-e@host")))

	if len(sink.metas) != 1 {
		t.Fatalf("segments = %d, want only the terminal marker", len(sink.metas))
	}
	if !sink.metas[0].IsFinished {
		t.Error("terminal marker not flagged finished")
	}
	if len(sink.payloads[0]) != 0 {
		t.Errorf("silent terminal segment carries %d PCM bytes, want 0", len(sink.payloads[0]))
	}
}

// Cancelling Run flushes the open segments of in-flight calls to the sink
// before Run returns, so the caller can close the sink afterwards without
// losing the terminal markers.
func TestRunFlushesOpenSegmentsOnCancel(t *testing.T) {
	sink := &fakeSink{}
	source := NewChanSource(0)
	srv := NewServer(Config{
		HostIP:           "10.0.0.1",
		SIPPort:          5060,
		SegmentThreshold: 2 * time.Second,
		CallTimeout:      30 * time.Second,
	}, source, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	// An unbuffered source means every send returns only once the server
	// has taken the datagram; the loop handles it before the next select.
	source.Ch <- sipDatagram(inviteMessage("call-g@host"))
	for seq := uint16(0); seq < 50; seq++ {
		source.Ch <- rtpDatagram(t, seq, 0xF1, voicePayload())
	}

	sink.mu.Lock()
	early := len(sink.metas)
	sink.mu.Unlock()
	if early != 0 {
		t.Fatalf("segments before cancel = %d, want 0 under the threshold", early)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.metas) != 1 {
		t.Fatalf("segments after shutdown = %d, want 1", len(sink.metas))
	}
	if !sink.metas[0].IsFinished {
		t.Error("shutdown segment not marked finished")
	}
	if len(sink.payloads[0]) != 50*320 {
		t.Errorf("shutdown segment PCM = %d bytes, want %d", len(sink.payloads[0]), 50*320)
	}
}

// RTP from an address with no active call is dropped without creating state.
func TestUnknownRTPDropped(t *testing.T) {
	sink := &fakeSink{}
	srv := newTestServer(sink)

	srv.handleDatagram(rtpDatagram(t, 1, 0x99, voicePayload()))
	if srv.streams.Count() != 0 {
		t.Errorf("streams = %d, want 0", srv.streams.Count())
	}
	if len(sink.metas) != 0 {
		t.Errorf("segments = %d, want 0", len(sink.metas))
	}
}

// Non-G.711 payload types and short payloads are not treated as call audio.
func TestRTPValidation(t *testing.T) {
	sink := &fakeSink{}
	srv := newTestServer(sink)
	srv.handleDatagram(sipDatagram(inviteMessage("call-f@host")))

	opus := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: 1, SSRC: 0x77}, Payload: voicePayload()}
	raw, _ := opus.Marshal()
	srv.handleDatagram(Datagram{SrcIP: "10.0.0.50", SrcPort: 10512, DstPort: 10600, Payload: raw})

	short := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 0, SequenceNumber: 2, SSRC: 0x77}, Payload: make([]byte, 40)}
	raw, _ = short.Marshal()
	srv.handleDatagram(Datagram{SrcIP: "10.0.0.50", SrcPort: 10512, DstPort: 10600, Payload: raw})

	if srv.streams.Count() != 0 {
		t.Errorf("streams = %d, want 0 after invalid packets", srv.streams.Count())
	}
}
