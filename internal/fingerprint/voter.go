package fingerprint

import (
	"audiosearch/internal/buffer"
	"audiosearch/internal/config"
	"audiosearch/internal/models"
)

// Voter implements the robust multi-offset peak voter (SPEC_FULL §4.2):
// it runs fp over many phase-shifted sub-windows of w and keeps only the
// peaks that appear in a strict majority of the observations, which damps
// the noise a single-shot peak picker shows against sub-chunk phase.
func Voter(fp Fingerprinter, w buffer.OwnedWindow, settings config.MusicSettings) []models.PeakDescription {
	chunkStride := settings.ChunkStrideSeconds()
	if chunkStride <= 0 {
		return nil
	}

	chunksCount := int(w.DurationSeconds() / chunkStride)
	if chunksCount <= 0 {
		return nil
	}

	initialOffset := 0
	if w.DurationSeconds() > config.InitialSkipSeconds {
		initialOffset = int(w.SampleRate)
	}

	votes := make([][]int, settings.FrequencyPoints)
	for i := range votes {
		votes[i] = make([]int, chunksCount+2)
	}

	steps := 0
	for offset := 0; offset < config.VoterRangeSamples; offset += config.VoterStrideSamples {
		start := initialOffset + offset
		if start >= len(w.Samples) {
			break
		}

		sub := buffer.OwnedWindow{
			Samples:    w.Samples[start:],
			SampleRate: w.SampleRate,
		}

		if err := fp.Generate(sub); err != nil {
			break
		}

		chunkOffset := int(float64(offset) / float64(w.SampleRate) / chunkStride)

		for _, peak := range fp.PeaksCollection() {
			m := int(peak.ChunkIndex) + chunkOffset
			if int(peak.BandIndex) >= len(votes) || m < 0 || m >= len(votes[peak.BandIndex]) {
				continue
			}
			votes[peak.BandIndex][m]++
		}

		steps++
	}

	if steps == 0 {
		return nil
	}

	threshold := steps / 2

	var result []models.PeakDescription
	for band := range votes {
		for chunk, count := range votes[band][:chunksCount] {
			if count > threshold {
				result = append(result, models.PeakDescription{
					BandIndex:    uint16(band),
					ChunkIndex:   uint32(chunk),
					PeakCutoffDb: settings.PeakCutoffThresholdDb,
				})
			}
		}
	}

	return result
}
