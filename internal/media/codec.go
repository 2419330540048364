// Package media holds the audio primitives shared by the capture and ASR
// services: G.711 codec handling and PCM sample-rate conversion.
package media

import (
	"time"

	"github.com/zaf/g711"
)

// Codec represents an immutable audio codec specification.
// Use the pre-defined codec values (CodecPCMU, CodecPCMA) for RTP streams.
type Codec struct {
	Name        string        // Codec name (e.g., "PCMU", "PCMA")
	PayloadType uint8         // RTP payload type (0 for PCMU, 8 for PCMA)
	SampleRate  uint32        // Sample rate in Hz
	SampleDur   time.Duration // Duration per frame (typically 20ms)
	Channels    int           // Number of channels (1 for mono)
}

// Pre-defined codecs for the G.711 telephony streams this pipeline decodes.
var (
	// CodecPCMU is G.711 µ-law (North America, Japan)
	CodecPCMU = Codec{"PCMU", 0, 8000, 20 * time.Millisecond, 1}

	// CodecPCMA is G.711 A-law (Europe, rest of world)
	CodecPCMA = Codec{"PCMA", 8, 8000, 20 * time.Millisecond, 1}
)

// CodecByPayloadType returns the codec for an RTP payload type.
func CodecByPayloadType(pt uint8) (Codec, bool) {
	switch pt {
	case CodecPCMU.PayloadType:
		return CodecPCMU, true
	case CodecPCMA.PayloadType:
		return CodecPCMA, true
	}
	return Codec{}, false
}

// SamplesPerFrame returns the number of samples in one frame.
// For 8kHz with 20ms frames, this returns 160.
func (c Codec) SamplesPerFrame() int {
	return int(c.SampleRate) * int(c.SampleDur) / int(time.Second)
}

// BytesPerFrame returns the payload bytes per frame.
// For PCMU/PCMA (8-bit encoded), this equals SamplesPerFrame.
func (c Codec) BytesPerFrame() int {
	return c.SamplesPerFrame() * c.Channels
}

// SilenceByte returns the encoded byte that represents digital silence,
// used to fill sequence gaps so segment timing is preserved.
func (c Codec) SilenceByte() byte {
	if c.PayloadType == CodecPCMA.PayloadType {
		return 0xD5
	}
	return 0xFF
}

// SilencePayload returns one frame worth of encoded silence.
func (c Codec) SilencePayload(n int) []byte {
	p := make([]byte, n)
	b := c.SilenceByte()
	for i := range p {
		p[i] = b
	}
	return p
}

// Decode converts an encoded payload to 16-bit little-endian linear PCM.
func (c Codec) Decode(payload []byte) []byte {
	pcm := make([]byte, 2*len(payload))
	if c.PayloadType == CodecPCMA.PayloadType {
		for i, j := 0, 0; i < len(payload); i, j = i+1, j+2 {
			frame := g711.DecodeAlawFrame(payload[i])
			pcm[j] = byte(frame)
			pcm[j+1] = byte(frame >> 8)
		}
		return pcm
	}
	for i, j := 0, 0; i < len(payload); i, j = i+1, j+2 {
		frame := g711.DecodeUlawFrame(payload[i])
		pcm[j] = byte(frame)
		pcm[j+1] = byte(frame >> 8)
	}
	return pcm
}

// Encode converts 16-bit little-endian linear PCM back to the codec's
// encoded form. Odd trailing bytes are ignored.
func (c Codec) Encode(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i, j := 0, 0; j <= len(pcm)-2; i, j = i+1, j+2 {
		sample := int16(pcm[j]) | int16(pcm[j+1])<<8
		if c.PayloadType == CodecPCMA.PayloadType {
			out[i] = g711.EncodeAlawFrame(sample)
		} else {
			out[i] = g711.EncodeUlawFrame(sample)
		}
	}
	return out
}
