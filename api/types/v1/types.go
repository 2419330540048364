// Package types defines the wire-visible types shared by the pipeline
// services: segment metadata on the capture→ASR hop, ASR events on the
// ASR→router hop, WebSocket control frames, and the ticket proxy schema.
package types

import (
	"fmt"
	"time"
)

// Source identifies which leg of a two-party call a stream belongs to.
type Source string

const (
	// SourceCitizen is the remote caller's leg.
	SourceCitizen Source = "citizen"

	// SourceHotline is the operator's leg.
	SourceHotline Source = "hot-line"
)

// Valid reports whether s is one of the two known legs.
func (s Source) Valid() bool {
	return s == SourceCitizen || s == SourceHotline
}

// CallKey uniquely identifies one audio stream of one call.
// Both legs of a dialog share UniqueKey but differ in Source and SSRC.
type CallKey struct {
	PeerIP    string `json:"peer_ip"`
	Source    Source `json:"source"`
	UniqueKey string `json:"unique_key"`
	SSRC      uint32 `json:"ssrc"`
}

// String renders the key in a stable form usable as a map key and in logs.
func (k CallKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.PeerIP, k.Source, k.UniqueKey, k.SSRC)
}

// SegmentMeta is the JSON first frame of the capture→ASR multipart message.
// Frame 2 is raw 16-bit little-endian mono 8 kHz PCM; an optional frame 3
// carries far-end reference PCM for echo cancellation.
type SegmentMeta struct {
	PeerIP     string  `json:"peer_ip"`
	Source     Source  `json:"source"`
	UniqueKey  string  `json:"unique_key"`
	SSRC       uint32  `json:"ssrc"`
	StartTS    float64 `json:"start_ts"` // unix seconds of the first packet
	EndTS      float64 `json:"end_ts"`   // unix seconds of the last packet
	IsFinished bool    `json:"IsFinished"`
}

// Key returns the identity tuple of the segment.
func (m SegmentMeta) Key() CallKey {
	return CallKey{PeerIP: m.PeerIP, Source: m.Source, UniqueKey: m.UniqueKey, SSRC: m.SSRC}
}

// ASR event types published on the PUB socket.
const (
	EventASRUpdate    = "asr_update"
	EventCallFinished = "call_finished"
)

// ASREvent is one recognized-text event on the ASR→router hop and, unchanged,
// on the router→client WebSocket.
type ASREvent struct {
	Type         string  `json:"type"`
	Text         string  `json:"text"`
	PeerIP       string  `json:"peer_ip"`
	Source       Source  `json:"source"`
	UniqueKey    string  `json:"unique_key"`
	SSRC         uint32  `json:"ssrc"`
	IsFinished   bool    `json:"is_finished"`
	VoiceStartTS float64 `json:"voice_start_ts"`
	ChunkStartTS float64 `json:"chunk_start_ts"`
	OffsetMS     float64 `json:"offset_ms"`
}

// Key returns the identity tuple of the event.
func (e ASREvent) Key() CallKey {
	return CallKey{PeerIP: e.PeerIP, Source: e.Source, UniqueKey: e.UniqueKey, SSRC: e.SSRC}
}

// WebSocket control frame types.
const (
	WSServerHeartbeat = "server_heartbeat"
	WSPing            = "ping"
	WSPong            = "pong"
	WSStopListening   = "stop_listening"
	WSStopped         = "stopped"
)

// WSControl is a WebSocket control frame in either direction.
type WSControl struct {
	Type string `json:"type"`
	TS   string `json:"ts,omitempty"`
}

// NewWSControl builds a control frame stamped with the current time.
func NewWSControl(typ string) WSControl {
	return WSControl{Type: typ, TS: time.Now().UTC().Format(time.RFC3339)}
}

// HealthResponse is the response from GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Clients  int    `json:"clients"`
	Endpoint string `json:"endpoint"`
	TS       string `json:"ts"`
}

// ConversationItem is one utterance of a completed conversation.
type ConversationItem struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
}

// TicketRequest is the body of POST /ticketGeneration.
type TicketRequest struct {
	UniqueKey    string             `json:"unique_key"`
	Conversation []ConversationItem `json:"conversation"`
}

// TicketResponse is the structured ticket returned by the summarizer and
// relayed unchanged to the caller.
type TicketResponse struct {
	TicketType    string `json:"ticket_type"`
	TicketZone    string `json:"ticket_zone"`
	TicketTitle   string `json:"ticket_title"`
	TicketContent string `json:"ticket_content"`
}

// ErrorResponse is the body of 4xx/5xx responses from the ticket proxy.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
