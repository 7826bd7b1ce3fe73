// Package audio implements the voice-interview audio pipeline: decoding and
// inspecting WAV blobs, downmixing and resampling, and combining recorded
// answer segments into a single downloadable mono track.
package audio

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DecodeFunc turns one encoded audio segment into mono float samples in
// [-1, 1] plus their sample rate. Implementations must be safe for concurrent
// use; Combine decodes segments in parallel.
type DecodeFunc func(data []byte) (samples []float64, sampleRate int, err error)

// ErrNoSegments is returned by Combine when the segment list is empty.
var ErrNoSegments = errors.New("audio: no segments to combine")

// ErrRateMismatch is wrapped in a DecodeError when a segment's sample rate
// differs from the first segment's and no resample target is configured.
var ErrRateMismatch = errors.New("audio: sample rate mismatch")

// DecodeError reports a segment that could not be used, identified by its
// position in the input. Callers surface the index so the matching answer can
// be re-recorded.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: segment %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a failure while serialising the combined buffer. Given
// decodable input it indicates a bug in this package, not bad input.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("audio: encode combined buffer: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Option configures a Combine call.
type Option func(*combineOptions)

type combineOptions struct {
	decode     DecodeFunc
	targetRate int
}

// WithDecoder replaces the default WAV decoder, letting callers feed Combine
// segments in other codecs.
func WithDecoder(fn DecodeFunc) Option {
	return func(o *combineOptions) { o.decode = fn }
}

// WithResampleTo makes mixed-rate input legal: every segment is resampled to
// rate before concatenation and the output is encoded at rate.
func WithResampleTo(rate int) Option {
	return func(o *combineOptions) { o.targetRate = rate }
}

// Combine decodes every segment, concatenates their samples in input order
// into a single mono buffer, and encodes the buffer as canonical 16-bit PCM
// WAV. It is all-or-nothing: any undecodable segment fails the whole call
// with a DecodeError carrying that segment's index, and nothing is retried,
// so the same input fails the same way every time.
//
// Segments are decoded concurrently but assembled strictly in order, so the
// output bytes are deterministic for a given input. Segments whose sample
// rates differ from the first segment's fail with ErrRateMismatch unless
// WithResampleTo is set.
func Combine(ctx context.Context, segments [][]byte, opts ...Option) ([]byte, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	o := combineOptions{decode: DecodeWAV}
	for _, opt := range opts {
		opt(&o)
	}

	bufs := make([][]float64, len(segments))
	rates := make([]int, len(segments))
	decErrs := make([]*DecodeError, len(segments))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, seg := range segments {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			samples, rate, err := o.decode(seg)
			if err != nil {
				derr := &DecodeError{Index: i, Err: err}
				decErrs[i] = derr
				return derr
			}
			bufs[i], rates[i] = samples, rate
			return nil
		})
	}
	if waitErr := eg.Wait(); waitErr != nil {
		// Report the lowest failing index so the error is stable regardless
		// of goroutine scheduling.
		for _, derr := range decErrs {
			if derr != nil {
				return nil, derr
			}
		}
		return nil, fmt.Errorf("audio: combine: %w", waitErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("audio: combine: %w", err)
	}

	outRate := o.targetRate
	if outRate > 0 {
		for i := range bufs {
			bufs[i] = Resample(bufs[i], rates[i], outRate)
		}
	} else {
		outRate = rates[0]
		for i, rate := range rates {
			if rate != outRate {
				return nil, &DecodeError{
					Index: i,
					Err:   fmt.Errorf("%w: segment has %d Hz, expected %d Hz", ErrRateMismatch, rate, outRate),
				}
			}
		}
	}

	// Offsets are computed only after every segment's length is known, then
	// each segment lands at its final position in a single allocation.
	total := 0
	for _, buf := range bufs {
		total += len(buf)
	}
	combined := make([]float64, total)
	off := 0
	for _, buf := range bufs {
		off += copy(combined[off:], buf)
	}

	out, err := EncodeWAV(combined, outRate)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return out, nil
}
