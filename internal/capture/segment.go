package capture

import (
	"time"

	"github.com/sebas/hotline/internal/media"
)

// minVoiceFraction is the silence-filter threshold: segments whose voice
// packet share is below this are discarded instead of published.
const minVoiceFraction = 0.10

// Segment accumulates decoded linear PCM for one utterance of one stream.
type Segment struct {
	codec media.Codec

	pcm         []byte
	SilencePkts int
	VoicePkts   int

	startTS time.Time
	endTS   time.Time
}

// NewSegment starts an empty segment.
func NewSegment(codec media.Codec) *Segment {
	return &Segment{codec: codec}
}

// Append decodes one ordered payload into the segment and classifies it as
// silence or voice.
func (s *Segment) Append(payload []byte) {
	now := time.Now()
	if s.pcm == nil {
		s.startTS = now
	}
	s.endTS = now

	if isSilencePayload(payload, s.codec.SilenceByte()) {
		s.SilencePkts++
	} else {
		s.VoicePkts++
	}

	s.pcm = append(s.pcm, s.codec.Decode(payload)...)
}

// Duration is the audio length accumulated so far.
func (s *Segment) Duration() time.Duration {
	samples := len(s.pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(s.codec.SampleRate)
}

// VoiceFraction is the share of packets classified as voice.
func (s *Segment) VoiceFraction() float64 {
	total := s.SilencePkts + s.VoicePkts
	if total == 0 {
		return 0
	}
	return float64(s.VoicePkts) / float64(total)
}

// Empty reports whether anything has been appended.
func (s *Segment) Empty() bool {
	return len(s.pcm) == 0
}

// PCM returns the accumulated 16-bit little-endian mono 8 kHz samples.
func (s *Segment) PCM() []byte {
	return s.pcm
}

// Bounds returns the wall-clock span of the segment.
func (s *Segment) Bounds() (start, end time.Time) {
	return s.startTS, s.endTS
}

// isSilencePayload reports whether every byte equals the codec silence byte.
func isSilencePayload(payload []byte, silence byte) bool {
	for _, b := range payload {
		if b != silence {
			return false
		}
	}
	return len(payload) > 0
}
