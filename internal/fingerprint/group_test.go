package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiosearch/internal/models"
)

func TestGroupPeaksMergesWithinRadius(t *testing.T) {
	peaks := []models.PeakDescription{
		{BandIndex: 1, ChunkIndex: 10},
		{BandIndex: 2, ChunkIndex: 11},
		{BandIndex: 3, ChunkIndex: 50},
	}

	groups := GroupPeaks(peaks, 1)
	require.Len(t, groups, 2)

	assert.Equal(t, uint32(10), groups[0].StartChunk)
	assert.ElementsMatch(t, []uint16{1, 2}, groups[0].Bands)

	assert.Equal(t, uint32(50), groups[1].StartChunk)
	assert.ElementsMatch(t, []uint16{3}, groups[1].Bands)
}

func TestGroupPeaksDedupesBands(t *testing.T) {
	peaks := []models.PeakDescription{
		{BandIndex: 5, ChunkIndex: 0},
		{BandIndex: 5, ChunkIndex: 0},
		{BandIndex: 5, ChunkIndex: 1},
	}

	groups := GroupPeaks(peaks, 1)
	require.Len(t, groups, 1)
	assert.Equal(t, []uint16{5}, groups[0].Bands)
}

func TestGroupPeaksEmptyInput(t *testing.T) {
	assert.Nil(t, GroupPeaks(nil, 1))
}

func TestPeakGroupKeyStableAndOrderSensitive(t *testing.T) {
	a := PeakGroup{StartChunk: 4, Bands: []uint16{1, 2, 3}}
	b := PeakGroup{StartChunk: 4, Bands: []uint16{1, 2, 3}}
	assert.Equal(t, a.Key(), b.Key(), "identical groups must hash identically")

	c := PeakGroup{StartChunk: 4, Bands: []uint16{3, 2, 1}}
	assert.NotEqual(t, a.Key(), c.Key(), "band order changes the key, since GroupPeaks always emits bands sorted")

	d := PeakGroup{StartChunk: 5, Bands: []uint16{1, 2, 3}}
	assert.NotEqual(t, a.Key(), d.Key(), "different start chunk must change the key")
}
