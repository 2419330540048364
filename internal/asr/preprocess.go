package asr

import (
	"log/slog"
	"math"
)

const (
	// frameMS is the internal processing frame for echo cancellation.
	frameMS = 10

	// gateRMSThreshold separates background noise from speech energy
	// (10% of full-scale RMS on 16-bit samples).
	gateRMSThreshold = 3276.8

	// gateAttenuation is applied to sub-threshold audio.
	gateAttenuation = 0.1

	// highpassCutoffHz removes low-frequency rumble from speech frames.
	highpassCutoffHz = 100.0
)

// Preprocessor cleans near-end audio before recognition. With a far-end
// reference it runs an adaptive echo canceller on 10 ms frames; without one
// it falls back to an energy noise gate with a high-pass filter. Frame
// leftovers are carried between calls; Reset clears them when a call ends.
type Preprocessor struct {
	sampleRate int
	frameSize  int
	enableAEC  bool

	aec *echoCanceller
	hp  *biquad

	nearLeft []int16
	farLeft  []int16
}

// NewPreprocessor creates a preprocessor for 16-bit mono PCM at sampleRate.
func NewPreprocessor(sampleRate int, enableAEC bool) *Preprocessor {
	p := &Preprocessor{
		sampleRate: sampleRate,
		frameSize:  sampleRate * frameMS / 1000,
		enableAEC:  enableAEC,
		hp:         newHighpass(highpassCutoffHz, float64(sampleRate)),
	}
	if enableAEC {
		// 200 ms adaptive filter covers typical speakerphone paths.
		p.aec = newEchoCanceller(sampleRate / 5)
	}

	slog.Debug("[Preprocess] Initialized",
		"sample_rate", sampleRate,
		"frame_size", p.frameSize,
		"aec", enableAEC,
	)
	return p
}

// Process cleans one chunk of 16-bit little-endian PCM. farEnd may be nil,
// in which case only the noise gate runs. The output length can differ from
// the input when AEC holds back an incomplete frame.
func (p *Preprocessor) Process(near, farEnd []byte) []byte {
	nearSamples := bytesToInt16(near)

	if !p.enableAEC || len(farEnd) == 0 {
		return int16ToBytes(p.noiseGate(nearSamples))
	}

	return int16ToBytes(p.cancelEcho(nearSamples, bytesToInt16(farEnd)))
}

// Reset clears frame leftovers and filter state between calls.
func (p *Preprocessor) Reset() {
	p.nearLeft = nil
	p.farLeft = nil
	p.hp.reset()
	if p.aec != nil {
		p.aec.reset()
	}
}

// cancelEcho runs the adaptive filter over complete 10 ms frames, keeping
// incomplete tails for the next chunk.
func (p *Preprocessor) cancelEcho(near, far []int16) []int16 {
	p.nearLeft = append(p.nearLeft, near...)
	p.farLeft = append(p.farLeft, far...)

	var out []int16
	for len(p.nearLeft) >= p.frameSize && len(p.farLeft) >= p.frameSize {
		nearFrame := p.nearLeft[:p.frameSize]
		farFrame := p.farLeft[:p.frameSize]

		out = append(out, p.aec.process(nearFrame, farFrame)...)

		p.nearLeft = p.nearLeft[p.frameSize:]
		p.farLeft = p.farLeft[p.frameSize:]
	}
	return out
}

// noiseGate attenuates sub-threshold chunks and high-passes the rest.
func (p *Preprocessor) noiseGate(samples []int16) []int16 {
	if len(samples) == 0 {
		return samples
	}

	if rms(samples) < gateRMSThreshold {
		out := make([]int16, len(samples))
		for i, s := range samples {
			out[i] = int16(float64(s) * gateAttenuation)
		}
		return out
	}

	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = clampInt16(p.hp.step(float64(s)))
	}
	return out
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// echoCanceller is a normalized LMS adaptive filter: it predicts the echo
// of the far-end signal in the near-end capture and subtracts it.
type echoCanceller struct {
	taps []float64
	hist []float64
	mu   float64
}

func newEchoCanceller(taps int) *echoCanceller {
	return &echoCanceller{
		taps: make([]float64, taps),
		hist: make([]float64, taps),
		mu:   0.5,
	}
}

func (e *echoCanceller) process(near, far []int16) []int16 {
	out := make([]int16, len(near))
	for i := range near {
		// Shift the far-end history and append the newest sample.
		copy(e.hist, e.hist[1:])
		e.hist[len(e.hist)-1] = float64(far[i]) / 32768.0

		var estimate, energy float64
		for j, h := range e.hist {
			estimate += e.taps[j] * h
			energy += h * h
		}

		residual := float64(near[i])/32768.0 - estimate

		step := e.mu * residual / (energy + 1e-6)
		for j, h := range e.hist {
			e.taps[j] += step * h
		}

		out[i] = clampInt16(residual * 32768.0)
	}
	return out
}

func (e *echoCanceller) reset() {
	for i := range e.taps {
		e.taps[i] = 0
		e.hist[i] = 0
	}
}

// biquad is a second-order Butterworth high-pass section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func newHighpass(cutoff, sampleRate float64) *biquad {
	k := math.Tan(math.Pi * cutoff / sampleRate)
	norm := 1 / (1 + math.Sqrt2*k + k*k)
	return &biquad{
		b0: norm,
		b1: -2 * norm,
		b2: norm,
		a1: 2 * (k*k - 1) * norm,
		a2: (1 - math.Sqrt2*k + k*k) * norm,
	}
}

func (f *biquad) step(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

func int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
