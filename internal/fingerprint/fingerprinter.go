// Package fingerprint implements the robust multi-offset peak voter
// (SPEC_FULL §4.2) and peak grouping (§4.3) on top of a pluggable
// Fingerprinter, plus a concrete reference Fingerprinter (§4.2.1) built on a
// spectrogram/peak-extraction pipeline so the module runs end-to-end
// without an external peak picker.
package fingerprint

import (
	"audiosearch/internal/buffer"
	"audiosearch/internal/models"
)

// Fingerprinter turns a PCM window into a set of spectral peaks. It is
// stateful: Generate is called, then PeaksCollection reads the result.
// Peaks from successive Generate calls may overlap; callers that need
// independent observations (the Voter) read PeaksCollection once per
// Generate call.
type Fingerprinter interface {
	Generate(window buffer.OwnedWindow) error
	PeaksCollection() []models.PeakDescription
}
