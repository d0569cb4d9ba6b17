package corpus

import (
	"fmt"

	"audiosearch/internal/buffer"
	"audiosearch/internal/config"
	"audiosearch/internal/fingerprint"
	"audiosearch/internal/ingest"
)

// BuildTrack decodes the audio file at path, runs it through the same
// multi-offset voting Fingerprinter used at query time, and returns the
// resulting LUT keys/chunk indices ready for StoreTrack. This is the offline
// half of the SPEC_FULL §4.8 Corpus Loader: every track is indexed with
// exactly the algorithm PushSamples/processWatermark uses at query time, so
// a query fragment and its source track produce comparable peak groups.
func BuildTrack(path string, settings config.MusicSettings, fpConfig fingerprint.ReferenceConfig) (groupKeys []uint64, chunkIndices []uint32, err error) {
	samples, err := ingest.DecodeToSamples(path, settings.TargetSampleRate)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding %q: %w", path, err)
	}

	window := buffer.OwnedWindow{Samples: samples, SampleRate: settings.TargetSampleRate}
	fp := fingerprint.NewReference(fpConfig, settings)

	peaks := fingerprint.Voter(fp, window, settings)
	groups := fingerprint.GroupPeaks(peaks, 1)

	groupKeys = make([]uint64, len(groups))
	chunkIndices = make([]uint32, len(groups))
	for i, g := range groups {
		groupKeys[i] = g.Key()
		chunkIndices[i] = g.StartChunk
	}

	return groupKeys, chunkIndices, nil
}
