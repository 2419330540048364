package media

// Upsample8kTo16k converts 16-bit little-endian mono PCM from 8 kHz to
// 16 kHz by linear interpolation. The ASR model expects 16 kHz input while
// telephony audio arrives at 8 kHz.
func Upsample8kTo16k(pcm []byte) []byte {
	samples := len(pcm) / 2
	if samples == 0 {
		return nil
	}

	out := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		cur := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8

		// Each input sample produces itself plus the midpoint to its
		// successor. The last sample is simply doubled.
		next := cur
		if i+1 < samples {
			next = int16(pcm[(i+1)*2]) | int16(pcm[(i+1)*2+1])<<8
		}
		mid := int16((int32(cur) + int32(next)) / 2)

		out[i*4] = byte(cur)
		out[i*4+1] = byte(cur >> 8)
		out[i*4+2] = byte(mid)
		out[i*4+3] = byte(mid >> 8)
	}
	return out
}

// PCM16ToFloat32 converts 16-bit little-endian PCM to normalized float32
// samples in [-1, 1].
func PCM16ToFloat32(pcm []byte) []float32 {
	samples := len(pcm) / 2
	out := make([]float32, samples)
	for i := 0; i < samples; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToPCM16 converts normalized float32 samples back to 16-bit
// little-endian PCM, clamping out-of-range values.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := f * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		s := int16(v)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
