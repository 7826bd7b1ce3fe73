package audio

import "fmt"

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. When the rates already match, or either rate is invalid,
// the input is returned unchanged. Good enough for voice; callers that need
// band-limited resampling should do it upstream of this package.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}

	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float64, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Normalize re-encodes a WAV blob as mono 16-bit PCM at targetRate: stereo
// input is downmixed and off-rate input is resampled. Input already in the
// target format passes through a decode→encode round trip, which also strips
// any extra RIFF chunks. The returned info describes the new blob.
func Normalize(data []byte, targetRate int) ([]byte, WAVInfo, error) {
	if targetRate <= 0 {
		return nil, WAVInfo{}, fmt.Errorf("audio: normalize: invalid target rate %d", targetRate)
	}

	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, WAVInfo{}, fmt.Errorf("audio: normalize: %w", err)
	}
	if rate != targetRate {
		samples = Resample(samples, rate, targetRate)
	}

	out, err := EncodeWAV(samples, targetRate)
	if err != nil {
		return nil, WAVInfo{}, fmt.Errorf("audio: normalize: %w", err)
	}
	info := WAVInfo{
		SampleRate:    targetRate,
		Channels:      1,
		BitsPerSample: bitsPerSample,
		Frames:        len(samples),
		DataBytes:     len(samples) * 2,
	}
	return out, info, nil
}
