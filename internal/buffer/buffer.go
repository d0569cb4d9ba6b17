// Package buffer implements the session's single-writer, monotonically
// growing PCM sample store: decode f32le/s16le into a float32 store,
// ensure-then-copy on append, and an independent snapshot for the search
// consumer.
package buffer

import (
	"encoding/binary"
	"math"

	"audiosearch/internal/apperror"
)

// SampleBuffer is an append-only f32 PCM store at a fixed target sample
// rate. It is owned by exactly one session: one ingest goroutine appends,
// one consumer goroutine snapshots. Storage may reallocate on Ensure; only a
// Snapshot is safe to read concurrently with further appends.
type SampleBuffer struct {
	data       []float32
	dataLength int
	sampleRate uint32
}

// New creates an empty buffer at the given target sample rate.
func New(sampleRate uint32) *SampleBuffer {
	return &SampleBuffer{sampleRate: sampleRate}
}

// Ensure guarantees capacity for at least n samples, preserving existing
// data. It never shrinks.
func (b *SampleBuffer) Ensure(n int) {
	if cap(b.data) >= n {
		if len(b.data) < n {
			b.data = b.data[:n]
		}
		return
	}
	grown := make([]float32, n, n+n/2+64)
	copy(grown, b.data[:b.dataLength])
	b.data = grown
}

// DataLength returns the number of valid samples currently stored.
func (b *SampleBuffer) DataLength() int {
	return b.dataLength
}

// DurationSeconds returns DataLength / Fs_t.
func (b *SampleBuffer) DurationSeconds() float64 {
	return float64(b.dataLength) / float64(b.sampleRate)
}

// SampleRate returns the buffer's fixed target sample rate.
func (b *SampleBuffer) SampleRate() uint32 {
	return b.sampleRate
}

// AppendF32LE decodes raw little-endian float32 PCM and appends it.
func (b *SampleBuffer) AppendF32LE(raw []byte) (int, error) {
	const width = 4
	if len(raw)%width != 0 {
		return 0, apperror.MalformedSamplesf("f32le payload length %d is not a multiple of %d", len(raw), width)
	}
	n := len(raw) / width
	b.Ensure(b.dataLength + n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*width : i*width+width])
		b.data[b.dataLength+i] = math.Float32frombits(bits)
	}
	b.dataLength += n
	return n, nil
}

// AppendS16LE decodes raw little-endian signed 16-bit PCM, scaling each
// sample by 1/32768 into [-1, 1], and appends it.
func (b *SampleBuffer) AppendS16LE(raw []byte) (int, error) {
	const width = 2
	if len(raw)%width != 0 {
		return 0, apperror.MalformedSamplesf("s16le payload length %d is not a multiple of %d", len(raw), width)
	}
	n := len(raw) / width
	b.Ensure(b.dataLength + n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*width : i*width+width]))
		b.data[b.dataLength+i] = float32(v) / 32768.0
	}
	b.dataLength += n
	return n, nil
}

// OwnedWindow is an independent copy of a buffer prefix, safe to read while
// the source buffer keeps growing.
type OwnedWindow struct {
	Samples    []float32
	SampleRate uint32
}

// DurationSeconds returns len(Samples) / SampleRate.
func (w OwnedWindow) DurationSeconds() float64 {
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// SnapshotResampledTo copies the first length samples into an independent
// OwnedWindow. When the buffer's own rate already equals targetRate this is
// a plain copy; otherwise it linearly resamples.
func (b *SampleBuffer) SnapshotResampledTo(length int, targetRate uint32) OwnedWindow {
	if length > b.dataLength {
		length = b.dataLength
	}

	if b.sampleRate == targetRate {
		out := make([]float32, length)
		copy(out, b.data[:length])
		return OwnedWindow{Samples: out, SampleRate: targetRate}
	}

	return OwnedWindow{Samples: linearResample(b.data[:length], b.sampleRate, targetRate), SampleRate: targetRate}
}

func linearResample(in []float32, srcRate, dstRate uint32) []float32 {
	if len(in) == 0 || srcRate == 0 || dstRate == 0 {
		return nil
	}
	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(in)) / ratio)
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := srcPos - float64(i0)
		out[i] = in[i0] + float32(frac)*(in[i0+1]-in[i0])
	}
	return out
}
