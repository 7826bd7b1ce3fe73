package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	headerSize    = 44
	pcmFormat     = 1
	bitsPerSample = 16
)

// DefaultSampleRate is the rate normalization targets when the caller does
// not pick one. CD-quality mono is what the voice-clone pipeline uploads.
const DefaultSampleRate = 44100

// maxEncodeSamples is the largest mono sample count whose RIFF ChunkSize
// (file length minus 8) still fits the uint32 header field.
const maxEncodeSamples = (math.MaxUint32 - 36) / 2

// Decode error conditions. Wrapped errors carry the specific detail; use
// errors.Is against these to classify.
var (
	// ErrNotWAV indicates the blob is not a RIFF/WAVE container.
	ErrNotWAV = errors.New("audio: not a RIFF/WAVE container")

	// ErrUnsupportedFormat indicates a well-formed container whose audio
	// format this package does not decode (non-PCM, exotic bit depths, more
	// than two channels).
	ErrUnsupportedFormat = errors.New("audio: unsupported WAV format")
)

// WAVInfo describes the format and extent of a WAV container without
// decoding its samples.
type WAVInfo struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// BitsPerSample per channel (16 for everything this package produces).
	BitsPerSample int

	// Frames is the number of sample frames in the data chunk; one frame
	// spans all channels.
	Frames int

	// DataBytes is the size of the data chunk in bytes.
	DataBytes int
}

// Duration returns the playback length described by the info.
func (i WAVInfo) Duration() time.Duration {
	if i.SampleRate <= 0 {
		return 0
	}
	return time.Duration(i.Frames) * time.Second / time.Duration(i.SampleRate)
}

// EncodeWAV serialises mono float samples as a canonical 44-byte-header
// 16-bit little-endian PCM WAV file. Samples are clamped to [-1, 1] and
// scaled asymmetrically (negative values by 32768, non-negative by 32767)
// so -1.0 maps to -32768 and 1.0 to 32767.
//
// EncodeWAV holds no state and writes nothing except the returned buffer.
// The same input always yields the same bytes.
func EncodeWAV(samples []float64, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, errors.New("audio: encode: no samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode: invalid sample rate %d", sampleRate)
	}
	if len(samples) > maxEncodeSamples {
		return nil, fmt.Errorf("audio: encode: %d samples overflow the RIFF size field", len(samples))
	}

	dataSize := len(samples) * 2
	buf := make([]byte, headerSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize+dataSize-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], pcmFormat)
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate: rate × channels × 2
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align: channels × 2
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(quantize(s)))
	}
	return buf, nil
}

// DecodeWAV parses a WAV blob into mono float samples in [-1, 1] and the
// container's sample rate. 16-bit PCM is required; stereo input is downmixed
// to mono by averaging each channel pair. The int16→float conversion is the
// exact inverse of EncodeWAV's scaling, so a decode→encode round trip
// reproduces the original data chunk byte for byte.
func DecodeWAV(data []byte) ([]float64, int, error) {
	l, err := parseWAV(data)
	if err != nil {
		return nil, 0, err
	}
	if l.format != pcmFormat {
		return nil, 0, fmt.Errorf("%w: audio format %d (want PCM)", ErrUnsupportedFormat, l.format)
	}
	if l.bits != bitsPerSample {
		return nil, 0, fmt.Errorf("%w: %d bits per sample (want 16)", ErrUnsupportedFormat, l.bits)
	}
	if l.channels != 1 && l.channels != 2 {
		return nil, 0, fmt.Errorf("%w: %d channels (want mono or stereo)", ErrUnsupportedFormat, l.channels)
	}
	if l.sampleRate <= 0 {
		return nil, 0, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, l.sampleRate)
	}

	pcm := data[l.dataOff : l.dataOff+l.dataLen]
	frameBytes := l.channels * 2
	if len(pcm)%frameBytes != 0 {
		return nil, 0, fmt.Errorf("%w: data chunk is not frame-aligned", ErrUnsupportedFormat)
	}
	frames := len(pcm) / frameBytes

	samples := make([]float64, frames)
	switch l.channels {
	case 1:
		for i := 0; i < frames; i++ {
			samples[i] = dequantize(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		}
	case 2:
		for i := 0; i < frames; i++ {
			left := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
			right := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
			// The halved sum of two int16 values always fits int16.
			samples[i] = dequantize(int16((int32(left) + int32(right)) / 2))
		}
	}
	return samples, l.sampleRate, nil
}

// Info reports the container metadata of a WAV blob without decoding samples.
// Unlike DecodeWAV it accepts any PCM bit depth and channel count, making it
// usable for inspecting uploads before deciding how to handle them.
func Info(data []byte) (WAVInfo, error) {
	l, err := parseWAV(data)
	if err != nil {
		return WAVInfo{}, err
	}
	if l.channels <= 0 || l.sampleRate <= 0 || l.bits < 8 {
		return WAVInfo{}, fmt.Errorf("%w: malformed fmt chunk", ErrUnsupportedFormat)
	}
	frameBytes := l.channels * (l.bits / 8)
	return WAVInfo{
		SampleRate:    l.sampleRate,
		Channels:      l.channels,
		BitsPerSample: l.bits,
		Frames:        l.dataLen / frameBytes,
		DataBytes:     l.dataLen,
	}, nil
}

// wavLayout is the parsed view of a RIFF/WAVE container: the format fields
// from the "fmt " chunk plus the location of the data chunk.
type wavLayout struct {
	format     int
	channels   int
	sampleRate int
	bits       int
	dataOff    int
	dataLen    int
}

// parseWAV walks the RIFF chunk list and extracts the fmt and data chunks.
// Chunks are word-aligned: an odd-sized chunk is followed by one pad byte.
// A fixed 44-byte data offset is deliberately not assumed; encoders commonly
// insert LIST/INFO chunks between fmt and data.
func parseWAV(data []byte) (wavLayout, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return wavLayout{}, ErrNotWAV
	}

	var l wavLayout
	foundFmt, foundData := false, false

	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return wavLayout{}, fmt.Errorf("%w: chunk %q exceeds file size", ErrNotWAV, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return wavLayout{}, fmt.Errorf("%w: fmt chunk too short", ErrNotWAV)
			}
			l.format = int(binary.LittleEndian.Uint16(data[body : body+2]))
			l.channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			l.sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			l.bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			foundFmt = true
		case "data":
			l.dataOff = body
			l.dataLen = size
			foundData = true
		}
		if foundFmt && foundData {
			return l, nil
		}

		off = body + size
		if size%2 != 0 {
			off++
		}
	}

	if !foundFmt {
		return wavLayout{}, fmt.Errorf("%w: missing fmt chunk", ErrNotWAV)
	}
	return wavLayout{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}

// quantize converts one float sample to int16, clamping to [-1, 1] first and
// scaling negative values by 32768 and non-negative values by 32767. The
// asymmetry uses the full signed range without overflowing at -1.0.
func quantize(s float64) int16 {
	switch {
	case s < -1:
		s = -1
	case s > 1:
		s = 1
	}
	if s < 0 {
		return int16(math.Round(s * 32768))
	}
	return int16(math.Round(s * 32767))
}

// dequantize is the inverse of quantize: quantize(dequantize(v)) == v for
// every int16 value.
func dequantize(v int16) float64 {
	if v < 0 {
		return float64(v) / 32768
	}
	return float64(v) / 32767
}
