package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"audiosearch/internal/apperror"
	"audiosearch/internal/config"
	"audiosearch/internal/corpus"
	"audiosearch/internal/fingerprint"
	"audiosearch/internal/models"
	"audiosearch/internal/search"
)

// Info is the client-supplied session definition from POST /session's body
// (SPEC_FULL §4.7/§6.1).
type Info struct {
	SampleType       string
	StoreSessionData bool
}

// Registry is the process-wide, token-keyed session map
// (create/lookup/delete under a lock, SPEC_FULL §4.7). A plain sync.Mutex
// guards only map membership: each Engine owns its own internal lock, so
// the registry never needs to re-enter it (SPEC_FULL §9's resolution of the
// reentrancy open question).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Engine

	pool     *search.Pool
	corpus   *corpus.Corpus
	settings config.MusicSettings
	fpConfig fingerprint.ReferenceConfig
	teardown TeardownSink
}

// NewRegistry constructs a Registry bound to the shared worker pool and
// corpus. Both outlive every session created through it.
func NewRegistry(pool *search.Pool, corp *corpus.Corpus, settings config.MusicSettings, teardown TeardownSink) *Registry {
	return &Registry{
		sessions: make(map[string]*Engine),
		pool:     pool,
		corpus:   corp,
		settings: settings,
		fpConfig: fingerprint.DeriveReferenceConfig(settings),
		teardown: teardown,
	}
}

// Create validates sessionInfo, mints a token, and starts a new Engine.
func (r *Registry) Create(info Info) (string, error) {
	sampleType, ok := models.ParseSampleType(info.SampleType)
	if !ok {
		return "", apperror.InvalidSampleTypef(
			"Undefined 'sampleType' property in the session definition. Valid values are: 'f32le', 's16le'")
	}

	token := uuid.NewString()

	engine := NewEngine(
		token,
		sampleType,
		r.settings,
		r.pool,
		r.corpus,
		func() fingerprint.Fingerprinter { return fingerprint.NewReference(r.fpConfig, r.settings) },
		r.teardown,
		info.StoreSessionData,
		r.onIdleTimeout,
	)

	r.mu.Lock()
	r.sessions[token] = engine
	r.mu.Unlock()

	engine.Start()
	return token, nil
}

// Lookup returns the engine for token, or a NotFound apperror describing a
// failed session-information retrieval.
func (r *Registry) Lookup(token string) (*Engine, error) {
	return r.lookup(token, "retrieve session information")
}

// LookupForPush is Lookup with a NotFound message describing a failed
// sample push, for handlePushSamples.
func (r *Registry) LookupForPush(token string) (*Engine, error) {
	return r.lookup(token, "push samples to the session")
}

func (r *Registry) lookup(token, action string) (*Engine, error) {
	r.mu.Lock()
	engine, ok := r.sessions[token]
	r.mu.Unlock()
	if !ok {
		return nil, apperror.NotFoundf("Unable to %s - token was not found: %s", action, token)
	}
	return engine, nil
}

// Delete removes and tears down the session for token. Returns NotFound if
// the token is unknown, including a token that already self-terminated via
// idle timeout.
func (r *Registry) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	engine, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	if !ok {
		return apperror.NotFoundf("Unable to find session to remove - token was not found: %s", token)
	}
	return engine.Close(ctx)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// onIdleTimeout is the Engine's self-termination hook: it runs on the
// session's own consumer goroutine, right before that goroutine returns, so
// it must never block on the engine it is removing.
func (r *Registry) onIdleTimeout(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}
