// Package search implements the process-wide Search Worker Pool
// (SPEC_FULL §4.4/§9): a fixed pool of goroutines, each owning a disjoint
// shard of corpus track indices, comparing a grouped-peak query against the
// shared Corpus Index in parallel and aggregating per-track hit counts into
// ranked LutResults.
//
// The pool is process-wide (fed by a per-worker job channel) rather than
// one-per-session, using a jobs/results channel pair for fan-out/fan-in.
package search

import (
	"sort"

	"audiosearch/internal/apperror"
	"audiosearch/internal/config"
	"audiosearch/internal/corpus"
	"audiosearch/internal/fingerprint"
	"audiosearch/internal/models"
)

type trackShard struct {
	lo, hi uint32 // [lo, hi)
}

type job struct {
	groups   []fingerprint.PeakGroup
	mask     []byte
	resultCh chan shardResult
}

type shardResult struct {
	catches map[uint32]uint32
	offsets map[uint32]map[int64]uint32
	err     error
}

// Pool is the shared, process-wide worker pool. One Pool is constructed in
// main and handed to every session; it outlives any individual session.
type Pool struct {
	corpus *corpus.Corpus
	shards []trackShard
	jobCh  []chan job
}

// NewPool allocates workers goroutines, splitting the corpus into disjoint
// track shards of trackCount/workers each (the last shard absorbs the
// remainder), and starts one goroutine per shard listening for jobs.
func NewPool(workers int, c *corpus.Corpus) *Pool {
	if workers < 1 {
		workers = 1
	}

	trackCount := uint32(c.TrackCount())
	shardSize := trackCount / uint32(workers)

	p := &Pool{
		corpus: c,
		shards: make([]trackShard, workers),
		jobCh:  make([]chan job, workers),
	}

	var lo uint32
	for i := 0; i < workers; i++ {
		hi := lo + shardSize
		if i == workers-1 {
			hi = trackCount
		}
		p.shards[i] = trackShard{lo: lo, hi: hi}
		p.jobCh[i] = make(chan job, 8)
		go p.runWorker(i)
		lo = hi
	}

	return p
}

func (p *Pool) runWorker(i int) {
	shard := p.shards[i]
	for j := range p.jobCh[i] {
		j.resultCh <- p.compareShard(shard, j)
	}
}

func (p *Pool) compareShard(shard trackShard, j job) (result shardResult) {
	defer func() {
		if r := recover(); r != nil {
			result = shardResult{err: apperror.SearchFailedf("search worker panic: %v", r)}
		}
	}()

	catches := make(map[uint32]uint32)
	offsets := make(map[uint32]map[int64]uint32)

	for _, group := range j.groups {
		key := group.Key()
		for _, occ := range p.corpus.Lookup(key) {
			if occ.TrackIndex < shard.lo || occ.TrackIndex >= shard.hi {
				continue
			}
			if int(occ.TrackIndex) >= len(j.mask) || j.mask[occ.TrackIndex] == 0 {
				continue
			}

			catches[occ.TrackIndex]++

			offset := int64(occ.ChunkIndex) - int64(group.StartChunk)
			trackOffsets := offsets[occ.TrackIndex]
			if trackOffsets == nil {
				trackOffsets = make(map[int64]uint32)
				offsets[occ.TrackIndex] = trackOffsets
			}
			trackOffsets[offset]++
		}
	}

	return shardResult{catches: catches, offsets: offsets}
}

// Compare dispatches groupedPeaks to every worker in parallel, waits for all
// shards to complete, and returns the merged, ranked LutResult list
// (AggregateResultTracks, SPEC_FULL §4.4): sorted descending by catches then
// ascending by trackIndex, truncated to config.MaxTracksInResult unless
// keepAll is set.
func (p *Pool) Compare(groupedPeaks []fingerprint.PeakGroup, mask []byte, keepAll bool) ([]models.LutResult, error) {
	resultCh := make(chan shardResult, len(p.jobCh))
	for _, ch := range p.jobCh {
		ch <- job{groups: groupedPeaks, mask: mask, resultCh: resultCh}
	}

	mergedCatches := make(map[uint32]uint32)
	mergedOffsets := make(map[uint32]map[int64]uint32)

	for range p.jobCh {
		shard := <-resultCh
		if shard.err != nil {
			return nil, shard.err
		}
		for track, c := range shard.catches {
			mergedCatches[track] += c
		}
		for track, offs := range shard.offsets {
			dst := mergedOffsets[track]
			if dst == nil {
				dst = make(map[int64]uint32)
				mergedOffsets[track] = dst
			}
			for off, c := range offs {
				dst[off] += c
			}
		}
	}

	return aggregate(mergedCatches, mergedOffsets, keepAll), nil
}

func aggregate(catches map[uint32]uint32, offsets map[uint32]map[int64]uint32, keepAll bool) []models.LutResult {
	results := make([]models.LutResult, 0, len(catches))
	for track, c := range catches {
		if c == 0 {
			continue
		}
		results = append(results, models.LutResult{
			TrackIndex: track,
			ChunkIndex: modalOffset(offsets[track]),
			Catches:    c,
		})
	}

	sortResults(results)

	if !keepAll && len(results) > config.MaxTracksInResult {
		results = results[:config.MaxTracksInResult]
	}
	return results
}

func modalOffset(offsets map[int64]uint32) uint32 {
	var best int64
	var bestCount uint32
	for off, count := range offsets {
		if count > bestCount {
			bestCount = count
			best = off
		}
	}
	if best < 0 {
		return 0
	}
	return uint32(best)
}

func sortResults(results []models.LutResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Catches != results[j].Catches {
			return results[i].Catches > results[j].Catches
		}
		return results[i].TrackIndex < results[j].TrackIndex
	})
}
