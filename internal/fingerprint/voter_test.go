package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiosearch/internal/buffer"
	"audiosearch/internal/config"
	"audiosearch/internal/models"
)

// votingFingerprinter reports a peak on every Nth call, so tests can drive
// Voter's majority-threshold decision directly instead of depending on real
// spectral analysis. Voter adds a phase-dependent chunkOffset on top of
// whatever ChunkIndex is reported, so a fixed ChunkIndex would scatter votes
// across several buckets and never reach a majority; PeaksCollection instead
// reports targetChunk minus the chunkOffset it infers for the current call
// (from how much the sub-window has shrunk since the pass's first call), so
// every emitted peak lands in the same vote bucket regardless of phase.
type votingFingerprinter struct {
	settings config.MusicSettings
	every    int
	band     uint16

	calls         int
	baseLen       int
	currentOffset int
}

// targetChunk just needs to be within range for every window these tests
// use; see the chunkOffset derivation below.
const targetChunk = 6

func (v *votingFingerprinter) Generate(w buffer.OwnedWindow) error {
	v.calls++
	n := len(w.Samples)
	if v.calls == 1 {
		v.baseLen = n
	}
	offsetSamples := v.baseLen - n
	v.currentOffset = int(float64(offsetSamples) / float64(v.settings.TargetSampleRate) / v.settings.ChunkStrideSeconds())
	return nil
}

func (v *votingFingerprinter) PeaksCollection() []models.PeakDescription {
	if v.every <= 0 || v.calls%v.every != 0 {
		return nil
	}
	chunk := targetChunk - v.currentOffset
	if chunk < 0 {
		chunk = 0
	}
	return []models.PeakDescription{{BandIndex: v.band, ChunkIndex: uint32(chunk)}}
}

func testSettings() config.MusicSettings {
	return config.MusicSettings{
		TargetSampleRate:      16000,
		FrequencyPoints:       6,
		SliceDurationSeconds:  0.4,
		SliceOverlapSeconds:   0.2,
		PeakCutoffThresholdDb: -35,
	}
}

func testWindow(seconds float64, rate uint32) buffer.OwnedWindow {
	return buffer.OwnedWindow{
		Samples:    make([]float32, int(seconds*float64(rate))),
		SampleRate: rate,
	}
}

func TestVoterKeepsMajorityPeak(t *testing.T) {
	settings := testSettings()
	window := testWindow(2, settings.TargetSampleRate)

	fp := &votingFingerprinter{settings: settings, every: 1, band: 2}
	result := Voter(fp, window, settings)

	require.NotEmpty(t, result)
	found := false
	for _, p := range result {
		if p.BandIndex == 2 {
			found = true
		}
	}
	assert.True(t, found, "a peak seen on every observation should clear the majority threshold")
}

func TestVoterDropsMinorityPeak(t *testing.T) {
	settings := testSettings()
	window := testWindow(2, settings.TargetSampleRate)

	// appears on 1 in 3 observations: well under a strict majority.
	fp := &votingFingerprinter{settings: settings, every: 3, band: 4}
	result := Voter(fp, window, settings)

	for _, p := range result {
		assert.NotEqual(t, uint16(4), p.BandIndex, "a minority peak must not survive voting")
	}
}

func TestVoterEmptyWindowYieldsNoPeaks(t *testing.T) {
	settings := testSettings()
	window := buffer.OwnedWindow{SampleRate: settings.TargetSampleRate}

	fp := &votingFingerprinter{settings: settings, every: 1, band: 1}
	result := Voter(fp, window, settings)
	assert.Empty(t, result)
}
