package asr

import (
	"math"
	"testing"
)

func pcmOf(samples []int16) []byte {
	return int16ToBytes(samples)
}

func constSamples(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func toneSamples(n int, amp float64) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(amp * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	return s
}

func TestNoiseGateAttenuatesQuietAudio(t *testing.T) {
	p := NewPreprocessor(8000, false)

	quiet := toneSamples(800, 500) // well below the gate threshold
	out := bytesToInt16(p.Process(pcmOf(quiet), nil))

	if len(out) != len(quiet) {
		t.Fatalf("output samples = %d, want %d", len(out), len(quiet))
	}
	if got, limit := rms(out), rms(quiet)*gateAttenuation*1.1; got > limit {
		t.Errorf("gated RMS = %.1f, want <= %.1f", got, limit)
	}
}

func TestNoiseGatePassesSpeechLevels(t *testing.T) {
	p := NewPreprocessor(8000, false)

	loud := toneSamples(800, 12000)
	out := bytesToInt16(p.Process(pcmOf(loud), nil))

	// The 100 Hz high-pass barely touches a 440 Hz tone.
	if got := rms(out); got < rms(loud)*0.5 {
		t.Errorf("speech-level RMS = %.1f, too attenuated (input %.1f)", got, rms(loud))
	}
}

func TestAECFrameCarry(t *testing.T) {
	p := NewPreprocessor(8000, true)

	// 85 samples: one full 10 ms frame (80) comes out, 5 are carried.
	out := p.Process(pcmOf(constSamples(85, 1000)), pcmOf(constSamples(85, 1000)))
	if len(out) != 160 {
		t.Fatalf("first chunk output = %d bytes, want 160", len(out))
	}

	// 75 more samples complete the carried frame exactly.
	out = p.Process(pcmOf(constSamples(75, 1000)), pcmOf(constSamples(75, 1000)))
	if len(out) != 160 {
		t.Fatalf("second chunk output = %d bytes, want 160", len(out))
	}
}

func TestResetDropsLeftovers(t *testing.T) {
	p := NewPreprocessor(8000, true)

	p.Process(pcmOf(constSamples(79, 1000)), pcmOf(constSamples(79, 1000)))
	p.Reset()

	out := p.Process(pcmOf(constSamples(79, 1000)), pcmOf(constSamples(79, 1000)))
	if len(out) != 0 {
		t.Errorf("output after reset = %d bytes, want 0 (no complete frame)", len(out))
	}
}

func TestAECReducesPureEcho(t *testing.T) {
	p := NewPreprocessor(8000, true)

	// Near end is exactly the far end: the canceller should converge and
	// suppress most of it over a couple of seconds of audio.
	echo := toneSamples(16000, 8000)
	var tail []int16
	for off := 0; off < len(echo); off += 800 {
		frame := pcmOf(echo[off : off+800])
		out := bytesToInt16(p.Process(frame, frame))
		if off >= len(echo)-1600 {
			tail = append(tail, out...)
		}
	}

	if got, in := rms(tail), rms(echo); got > in*0.5 {
		t.Errorf("residual echo RMS = %.1f, want < half of input %.1f", got, in)
	}
}
