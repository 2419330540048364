package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/pion/rtp"

	types "github.com/sebas/hotline/api/types/v1"
	"github.com/sebas/hotline/internal/media"
)

// RTP payload bounds for G.711 telephony frames (20-30 ms at 8 kHz).
const (
	minRTPPayload = 160
	maxRTPPayload = 240
)

// Config holds the capture server wiring parameters.
type Config struct {
	HostIP           string
	SIPPort          int
	SegmentThreshold time.Duration
	CallTimeout      time.Duration
}

// Server drives the capture pipeline: SIP dialog tracking, RTP validation,
// reordering, decode, segmentation and downstream publishing.
type Server struct {
	cfg     Config
	source  PacketSource
	sink    SegmentSink
	dialogs *DialogTable
	streams *StreamManager
}

// NewServer wires a capture server over a packet source and a segment sink.
func NewServer(cfg Config, source PacketSource, sink SegmentSink) *Server {
	return &Server{
		cfg:     cfg,
		source:  source,
		sink:    sink,
		dialogs: NewDialogTable(cfg.HostIP),
		streams: NewStreamManager(),
	}
}

// Dialogs exposes the dialog table for status reporting.
func (s *Server) Dialogs() *DialogTable {
	return s.dialogs
}

// Run consumes datagrams until the source closes or the context ends.
// A one-second sweeper finishes calls that stopped sending packets.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			for _, call := range s.dialogs.Sweep(s.cfg.CallTimeout) {
				s.finishCall(call)
			}
		case dg, ok := <-s.source.Datagrams():
			if !ok {
				s.shutdown()
				return
			}
			s.handleDatagram(dg)
		}
	}
}

func (s *Server) handleDatagram(dg Datagram) {
	if dg.SrcPort == s.cfg.SIPPort || dg.DstPort == s.cfg.SIPPort {
		kind, call := s.dialogs.HandleSIP(dg.Payload, dg.SrcIP)
		if kind == SIPCallEnded {
			s.finishCall(call)
		}
		return
	}
	s.handleRTP(dg)
}

// handleRTP validates a candidate RTP datagram and routes it into its
// stream's reorder buffer, flushing the segment at the utterance threshold.
func (s *Server) handleRTP(dg Datagram) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(dg.Payload); err != nil {
		slog.Debug("[Capture] Dropping malformed RTP datagram", "src", dg.SrcIP, "error", err)
		return
	}
	if pkt.Version != 2 {
		return
	}

	codec, ok := media.CodecByPayloadType(pkt.PayloadType)
	if !ok {
		return
	}
	if len(pkt.Payload) < minRTPPayload || len(pkt.Payload) > maxRTPPayload {
		return
	}

	call, ok := s.resolveCall(dg)
	if !ok {
		return
	}
	s.dialogs.TouchMedia(call)

	source := types.SourceCitizen
	if dg.SrcIP == s.cfg.HostIP {
		source = types.SourceHotline
	}

	key := types.CallKey{
		PeerIP:    call.FromIP,
		Source:    source,
		UniqueKey: call.UniqueKey,
		SSRC:      pkt.SSRC,
	}

	stream, created := s.streams.GetOrCreate(key, codec, call)
	if created {
		slog.Info("[Capture] New stream",
			"call_id", key.UniqueKey,
			"source", key.Source,
			"ssrc", key.SSRC,
			"codec", codec.Name,
		)
	}

	stream.Reorder.Push(pkt.SequenceNumber, pkt.Payload, stream.Segment.Append)

	if stream.Segment.Duration() >= s.cfg.SegmentThreshold {
		s.flushSegment(stream, false)
	}
}

// resolveCall maps a datagram source to exactly one active call. Packets
// outside any active call are dropped silently; ambiguous ownership is
// dropped with a warning.
func (s *Server) resolveCall(dg Datagram) (*Call, bool) {
	var candidates []*Call
	if dg.SrcIP == s.cfg.HostIP {
		// The hot-line leg originates locally; attribute by the
		// remote's negotiated media port instead of the source IP.
		candidates = s.dialogs.ActiveByMediaPort(dg.DstPort)
	} else {
		candidates = s.dialogs.ActiveBySrcIP(dg.SrcIP)
	}

	switch len(candidates) {
	case 0:
		return nil, false
	case 1:
		return candidates[0], true
	default:
		slog.Warn("[Capture] Ambiguous RTP ownership, dropping packet",
			"src", dg.SrcIP,
			"dst_port", dg.DstPort,
			"candidates", len(candidates),
		)
		return nil, false
	}
}

// flushSegment publishes the current segment of a stream and starts a new
// one. Final segments drain the reorder buffer first and are always
// published, even when empty, so downstream sees end-of-call.
func (s *Server) flushSegment(stream *Stream, final bool) {
	if final {
		stream.Reorder.Flush(stream.Segment.Append)
	}

	seg := stream.Segment
	stream.Segment = NewSegment(stream.Codec)

	pcm := seg.PCM()
	if !final && seg.VoiceFraction() < minVoiceFraction {
		slog.Debug("[Capture] Discarding low-voice segment",
			"call_id", stream.Key.UniqueKey,
			"source", stream.Key.Source,
			"voice_fraction", seg.VoiceFraction(),
		)
		return
	}
	if final && seg.VoiceFraction() < minVoiceFraction {
		// Keep the end-of-call marker but drop the audio.
		pcm = nil
	}

	start, end := seg.Bounds()
	meta := types.SegmentMeta{
		PeerIP:     stream.Key.PeerIP,
		Source:     stream.Key.Source,
		UniqueKey:  stream.Key.UniqueKey,
		SSRC:       stream.Key.SSRC,
		StartTS:    unixSeconds(start),
		EndTS:      unixSeconds(end),
		IsFinished: final,
	}

	if err := s.sink.Publish(meta, pcm); err != nil {
		slog.Error("[Capture] Failed to publish segment",
			"call_id", stream.Key.UniqueKey,
			"source", stream.Key.Source,
			"error", err,
		)
		return
	}

	slog.Debug("[Capture] Segment published",
		"call_id", stream.Key.UniqueKey,
		"source", stream.Key.Source,
		"duration", seg.Duration().Round(time.Millisecond),
		"voice_pkts", seg.VoicePkts,
		"silence_pkts", seg.SilencePkts,
		"discontinuities", stream.Reorder.Discontinuities,
		"max_gap", stream.Reorder.MaxGap,
		"finished", final,
	)
}

// finishCall flushes and removes every stream of an ended dialog.
func (s *Server) finishCall(call *Call) {
	for _, stream := range s.streams.ByCall(call.UniqueKey) {
		s.flushSegment(stream, true)
		s.streams.Remove(stream.Key)
	}
}

// shutdown flushes all open segments before the process exits.
func (s *Server) shutdown() {
	slog.Info("[Capture] Shutting down, flushing open segments")
	for _, call := range s.dialogs.Sweep(0) {
		s.finishCall(call)
	}
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return float64(time.Now().UnixNano()) / 1e9
	}
	return float64(t.UnixNano()) / 1e9
}
