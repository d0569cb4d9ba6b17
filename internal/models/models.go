// Package models holds the data types shared across the fingerprint-match
// pipeline: peaks, grouped-peak lookup keys, and ranked search results.
package models

// SampleType identifies the wire encoding of PCM samples pushed into a
// session.
type SampleType int

const (
	// SampleTypeNone marks a session that hasn't been given a valid
	// sampleType yet.
	SampleTypeNone SampleType = iota
	SampleTypeF32LE
	SampleTypeS16LE
)

// ParseSampleType maps the JSON-facing string to a SampleType. ok is false
// for any value other than "f32le"/"s16le".
func ParseSampleType(s string) (SampleType, bool) {
	switch s {
	case "f32le":
		return SampleTypeF32LE, true
	case "s16le":
		return SampleTypeS16LE, true
	default:
		return SampleTypeNone, false
	}
}

// PeakDescription identifies one spectral peak in one time-chunk of one
// fingerprinted window.
type PeakDescription struct {
	BandIndex    uint16
	ChunkIndex   uint32
	PeakCutoffDb float32
}

// Occurrence is one place a grouped-peak key was seen in the reference
// corpus: a track and the chunk offset the group started at.
type Occurrence struct {
	TrackIndex uint32
	ChunkIndex uint32
}

// LutResult is one candidate alignment of a query against a reference track
// at a given chunk offset.
type LutResult struct {
	TrackIndex uint32
	ChunkIndex uint32
	Catches    uint32
}
