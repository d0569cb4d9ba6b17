// Package session implements the Session Engine and Session Registry
// (SPEC_FULL §4.6/§4.7): the producer/consumer state machine behind one
// streaming-audio session, and the token-keyed map of live sessions.
//
// The run loop's wait-with-timeout behavior is built from the
// Go-idiomatic combination of a buffered wake channel and a ticker (see
// run below) rather than a condition variable.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"audiosearch/internal/apperror"
	"audiosearch/internal/buffer"
	"audiosearch/internal/config"
	"audiosearch/internal/corpus"
	"audiosearch/internal/fingerprint"
	"audiosearch/internal/models"
	"audiosearch/internal/score"
	"audiosearch/internal/search"
)

// TeardownSink is the ICoreInstance.dumpSessionData hook (SPEC_FULL §6.2):
// called once at session teardown, before the consumer is signaled to stop.
type TeardownSink interface {
	DumpSessionData(ctx context.Context, token string, buf *buffer.SampleBuffer, log []string, shouldStore bool) error
}

// Snapshot is the lock-protected session state exposed to GetInformation,
// copied out so the caller can read it without holding the session lock.
type Snapshot struct {
	ResultVersion  uint64
	SearchResult   []models.LutResult
	MaxResultDelta float32
	SqAverageDelta float32
}

// Engine is one session's producer/consumer state machine. PushSamples
// (producer) and GetInformation (any reader) may be called concurrently
// from any number of goroutines; exactly one consumer goroutine runs the
// recompute loop.
type Engine struct {
	token string

	settings    config.MusicSettings
	scoreConfig score.Config
	pool        *search.Pool
	corpus      *corpus.Corpus
	newFp       func() fingerprint.Fingerprinter

	teardown          TeardownSink
	storeSessionData  bool
	persistOnce       sync.Once
	persistErr        error

	mu             sync.Mutex // guards buf, queue, searchResult, resultVersion, deltas, log
	buf            *buffer.SampleBuffer
	sampleType     models.SampleType
	queue          []uint32
	searchResult   []models.LutResult
	resultVersion  uint64
	maxResultDelta float32
	sqAverageDelta float32
	log            []string

	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	onIdleTimeout func(token string)

	// tick and idleTimeout default to config.ThreadTickMillis/SessionTimeoutSecs;
	// tests in this package shrink them to keep idle-timeout tests fast.
	tick        time.Duration
	idleTimeout time.Duration
}

// NewEngine constructs a session bound to one token and sampleType. Start
// must be called to begin the consumer goroutine.
func NewEngine(
	token string,
	sampleType models.SampleType,
	settings config.MusicSettings,
	pool *search.Pool,
	corp *corpus.Corpus,
	newFp func() fingerprint.Fingerprinter,
	teardown TeardownSink,
	storeSessionData bool,
	onIdleTimeout func(token string),
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		token:            token,
		settings:         settings,
		scoreConfig:      score.DefaultConfig(),
		pool:             pool,
		corpus:           corp,
		newFp:            newFp,
		teardown:         teardown,
		storeSessionData: storeSessionData,
		buf:              buffer.New(settings.TargetSampleRate),
		sampleType:       sampleType,
		wake:             make(chan struct{}, 1),
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
		onIdleTimeout:    onIdleTimeout,
		tick:             config.ThreadTickMillis * time.Millisecond,
		idleTimeout:      config.SessionTimeoutSecs * time.Second,
	}
}

// Start launches the consumer goroutine. Must be called exactly once.
func (e *Engine) Start() {
	go e.run()
}

// PushSamples decodes raw bytes per the session's sampleType, appends them
// to the buffer, enqueues the new dataLength as a watermark, and wakes the
// consumer.
func (e *Engine) PushSamples(raw []byte) (samplesPushed, samplesCollected int, err error) {
	e.mu.Lock()
	var n int
	switch e.sampleType {
	case models.SampleTypeF32LE:
		n, err = e.buf.AppendF32LE(raw)
	case models.SampleTypeS16LE:
		n, err = e.buf.AppendS16LE(raw)
	default:
		e.mu.Unlock()
		return 0, 0, apperror.InvalidSampleTypef("unable to push samples into the session with an invalid session info")
	}
	if err != nil {
		e.mu.Unlock()
		return 0, 0, err
	}

	collected := e.buf.DataLength()
	e.queue = append(e.queue, uint32(collected))
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}

	return n, collected, nil
}

// GetInformation returns the current published result snapshot.
func (e *Engine) GetInformation() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	results := make([]models.LutResult, len(e.searchResult))
	copy(results, e.searchResult)

	return Snapshot{
		ResultVersion:  e.resultVersion,
		SearchResult:   results,
		MaxResultDelta: e.maxResultDelta,
		SqAverageDelta: e.sqAverageDelta,
	}
}

// Close persists the session via the teardown hook (if not already
// persisted by an idle timeout), then cancels and joins the consumer
// goroutine, persisting before interrupt.
func (e *Engine) Close(ctx context.Context) error {
	e.persistOnce.Do(func() { e.persistErr = e.doPersist(ctx) })
	e.cancel()
	<-e.done
	return e.persistErr
}

func (e *Engine) doPersist(ctx context.Context) error {
	if e.teardown == nil {
		return nil
	}
	e.mu.Lock()
	logCopy := append([]string(nil), e.log...)
	e.mu.Unlock()
	return e.teardown.DumpSessionData(ctx, e.token, e.buf, logCopy, e.storeSessionData)
}

func (e *Engine) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	e.mu.Lock()
	e.log = append(e.log, line)
	e.mu.Unlock()
}

// run is the consumer goroutine: wait for a wakeup with a 50ms tick,
// accumulate idle time across ticks with no wakeup, terminate after 30s
// idle, and otherwise drain the watermark queue oldest-first.
func (e *Engine) run() {
	defer close(e.done)

	fp := e.newFp()
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case <-e.ctx.Done():
			return

		case <-e.wake:
			e.drainQueue(fp)
			lastActivity = time.Now()

		case <-ticker.C:
			if time.Since(lastActivity) >= e.idleTimeout {
				e.persistOnce.Do(func() { e.persistErr = e.doPersist(e.ctx) })
				if e.onIdleTimeout != nil {
					e.onIdleTimeout(e.token)
				}
				return
			}
		}
	}
}

func (e *Engine) drainQueue(fp fingerprint.Fingerprinter) {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		watermark := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		if err := e.processWatermark(fp, watermark); err != nil {
			e.logf("search failed for watermark %d: %v", watermark, err)
			// the session survives a single failed compute: skip and
			// keep draining.
			continue
		}
	}
}

func (e *Engine) processWatermark(fp fingerprint.Fingerprinter, watermark uint32) error {
	e.mu.Lock()
	window := e.buf.SnapshotResampledTo(int(watermark), e.settings.TargetSampleRate)
	e.mu.Unlock()

	e.logf("generating fingerprint for fragment %.0f ms", window.DurationSeconds()*1000)

	peaks := fingerprint.Voter(fp, window, e.settings)
	grouped := fingerprint.GroupPeaks(peaks, 1)

	trackCount := e.corpus.TrackCount()
	mask := make([]byte, trackCount)
	for i := range mask {
		mask[i] = 1
	}

	e.logf("tracks to compare to: %d, peak groups: %d", trackCount, len(grouped))

	results, err := e.pool.Compare(grouped, mask, false)
	if err != nil {
		return err
	}

	maxDelta, sqAvgDelta := score.Estimate(results, e.scoreConfig)

	e.mu.Lock()
	e.searchResult = results
	e.maxResultDelta = float32(maxDelta)
	e.sqAverageDelta = float32(sqAvgDelta)
	e.resultVersion++
	e.mu.Unlock()

	e.logf("max delta: %f, published version", maxDelta)
	return nil
}
