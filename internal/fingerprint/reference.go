package fingerprint

import (
	"math"
	"math/cmplx"

	"audiosearch/internal/buffer"
	"audiosearch/internal/config"
	"audiosearch/internal/models"
)

// ReferenceConfig parameterizes the concrete reference Fingerprinter
// (SPEC_FULL §4.2.1): a Hann-windowed STFT over a low-pass-filtered,
// downsampled signal, emitting band/chunk-indexed PeakDescription values
// instead of raw freq/time bins.
type ReferenceConfig struct {
	DSPRatio  int      // downsample factor applied before analysis
	MaxFreqHz float64  // low-pass cutoff before downsampling
	FreqBands [][2]int // (minBin, maxBin) pairs; len(FreqBands) == FrequencyPoints
}

// DeriveReferenceConfig builds a ReferenceConfig whose frame hop lines up
// with settings.ChunkStrideSeconds(), so the Voter's independently computed
// chunkOffset (SPEC_FULL §4.2 step 3c) stays aligned with the
// Fingerprinter's own frame indexing.
func DeriveReferenceConfig(settings config.MusicSettings) ReferenceConfig {
	bands := make([][2]int, settings.FrequencyPoints)
	// FrequencyPoints bands of equal width (six by default), splitting the
	// first 512 FFT bins evenly.
	span := 512
	lo := 0
	for i := range bands {
		hi := span * (i + 1) / len(bands)
		if hi <= lo {
			hi = lo + 1
		}
		bands[i] = [2]int{lo, hi}
		lo = hi
	}
	return ReferenceConfig{
		DSPRatio:  4,
		MaxFreqHz: 5000,
		FreqBands: bands,
	}
}

// frameSamples returns the FFT hop size, in effective-rate samples,
// that makes one frame equal to one chunk of settings.ChunkStrideSeconds().
func frameSamples(settings config.MusicSettings, effectiveRate float64) int {
	n := int(settings.ChunkStrideSeconds() * effectiveRate)
	if n < 64 {
		n = 64
	}
	return n
}

// Reference is the concrete, swappable Fingerprinter implementation. The
// Voter and Session Engine depend only on the Fingerprinter interface, never
// on this type.
type Reference struct {
	cfg      ReferenceConfig
	settings config.MusicSettings

	peaks []models.PeakDescription
}

// NewReference builds a reference Fingerprinter bound to one MusicSettings
// (the frame hop derives from settings.ChunkStrideSeconds()).
func NewReference(cfg ReferenceConfig, settings config.MusicSettings) *Reference {
	return &Reference{cfg: cfg, settings: settings}
}

// Generate computes the spectrogram of window, extracts per-band peaks
// above their frame average, and stores them for PeaksCollection.
func (r *Reference) Generate(window buffer.OwnedWindow) error {
	r.peaks = r.peaks[:0]

	effectiveRate := float64(window.SampleRate) / float64(r.cfg.DSPRatio)
	hop := frameSamples(r.settings, effectiveRate)
	windowSize := nextPow2(hop * 2)

	filtered := lowPassFilter(r.cfg.MaxFreqHz, float64(window.SampleRate), window.Samples)
	down := downsample(filtered, int(window.SampleRate), int(effectiveRate))
	if len(down) < windowSize {
		return nil
	}

	hann := make([]float64, windowSize)
	for i := range hann {
		theta := 2 * math.Pi * float64(i) / float64(windowSize-1)
		hann[i] = 0.5 - 0.5*math.Cos(theta)
	}

	chunkIndex := uint32(0)
	for start := 0; start+windowSize <= len(down); start += hop {
		frame := make([]complex128, windowSize)
		for i := 0; i < windowSize; i++ {
			frame[i] = complex(down[start+i]*hann[i], 0)
		}

		spectrum := fft(frame)
		magnitude := make([]float64, windowSize/2)
		for i := range magnitude {
			magnitude[i] = cmplx.Abs(spectrum[i])
		}

		r.extractFramePeaks(magnitude, chunkIndex)
		chunkIndex++
	}

	return nil
}

func (r *Reference) extractFramePeaks(magnitude []float64, chunkIndex uint32) {
	halfWindow := len(magnitude)

	type bandMax struct {
		mag float64
	}
	maxima := make([]bandMax, 0, len(r.cfg.FreqBands))

	for _, band := range r.cfg.FreqBands {
		hi := band[1]
		if hi > halfWindow {
			hi = halfWindow
		}
		if hi > len(magnitude) {
			hi = len(magnitude)
		}
		if band[0] >= hi {
			maxima = append(maxima, bandMax{})
			continue
		}
		best := 0.0
		for idx := band[0]; idx < hi; idx++ {
			if magnitude[idx] > best {
				best = magnitude[idx]
			}
		}
		maxima = append(maxima, bandMax{mag: best})
	}

	if len(maxima) == 0 {
		return
	}

	sum := 0.0
	for _, m := range maxima {
		sum += m.mag
	}
	avg := sum / float64(len(maxima))

	for band, m := range maxima {
		if m.mag > avg && m.mag > 0 {
			r.peaks = append(r.peaks, models.PeakDescription{
				BandIndex:    uint16(band),
				ChunkIndex:   chunkIndex,
				PeakCutoffDb: r.settings.PeakCutoffThresholdDb,
			})
		}
	}
}

// PeaksCollection returns the peaks found by the last Generate call.
func (r *Reference) PeaksCollection() []models.PeakDescription {
	return r.peaks
}

// lowPassFilter is a first-order low-pass filter, adapted verbatim from
// shazam.LowPassFilter.
func lowPassFilter(cutoffFrequency, sampleRate float64, input []float32) []float64 {
	rc := 1.0 / (2 * math.Pi * cutoffFrequency)
	dt := 1.0 / sampleRate
	alpha := dt / (rc + dt)

	out := make([]float64, len(input))
	var prev float64
	for i, x := range input {
		xf := float64(x)
		if i == 0 {
			out[i] = xf * alpha
		} else {
			out[i] = alpha*xf + (1-alpha)*prev
		}
		prev = out[i]
	}
	return out
}

// downsample averages input down from originalSampleRate to targetSampleRate,
// adapted from shazam.Downsample.
func downsample(input []float64, originalSampleRate, targetSampleRate int) []float64 {
	if targetSampleRate <= 0 || originalSampleRate <= 0 || targetSampleRate > originalSampleRate {
		return input
	}
	ratio := originalSampleRate / targetSampleRate
	if ratio <= 0 {
		ratio = 1
	}

	out := make([]float64, 0, len(input)/ratio)
	for i := 0; i < len(input); i += ratio {
		end := i + ratio
		if end > len(input) {
			end = len(input)
		}
		sum := 0.0
		for j := i; j < end; j++ {
			sum += input[j]
		}
		out = append(out, sum/float64(end-i))
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// fft is a recursive radix-2 Cooley-Tukey FFT. Input length must be a power
// of two (Generate always passes frames of windowSize := nextPow2(...)
// samples).
func fft(a []complex128) []complex128 {
	n := len(a)
	if n <= 1 {
		return a
	}

	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = a[2*i]
		odd[i] = a[2*i+1]
	}

	fe := fft(even)
	fo := fft(odd)

	out := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		twiddle := cmplx.Rect(1, -2*math.Pi*float64(k)/float64(n)) * fo[k]
		out[k] = fe[k] + twiddle
		out[k+n/2] = fe[k] - twiddle
	}
	return out
}
