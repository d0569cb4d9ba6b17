package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiosearch/internal/apperror"
	"audiosearch/internal/corpus"
	"audiosearch/internal/search"
)

func buildTestRegistry(t *testing.T) *Registry {
	t.Helper()
	c := corpus.New()
	pool := search.NewPool(1, c)
	return NewRegistry(pool, c, testEngineSettings(), nil)
}

func TestRegistryCreateAndLookup(t *testing.T) {
	r := buildTestRegistry(t)

	token, err := r.Create(Info{SampleType: "f32le"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, r.Count())

	engine, err := r.Lookup(token)
	require.NoError(t, err)
	assert.NotNil(t, engine)

	_ = r.Delete(context.Background(), token)
}

func TestRegistryCreateRejectsUnknownSampleType(t *testing.T) {
	r := buildTestRegistry(t)

	_, err := r.Create(Info{SampleType: "not-a-real-type"})
	require.Error(t, err)
	assert.Equal(t, apperror.KindInvalidSampleType, apperror.KindOf(err))
}

func TestRegistryLookupMissingTokenIsNotFound(t *testing.T) {
	r := buildTestRegistry(t)

	_, err := r.Lookup("no-such-token")
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "Unable to retrieve session information")
}

func TestRegistryLookupForPushMissingTokenIsNotFound(t *testing.T) {
	r := buildTestRegistry(t)

	_, err := r.LookupForPush("no-such-token")
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "Unable to push samples to the session")
}

func TestRegistryDeleteTornsDownEngineAndForgetsToken(t *testing.T) {
	r := buildTestRegistry(t)

	token, err := r.Create(Info{SampleType: "f32le"})
	require.NoError(t, err)

	err = r.Delete(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Count())

	_, err = r.Lookup(token)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestRegistryDeleteMissingTokenIsNotFound(t *testing.T) {
	r := buildTestRegistry(t)

	err := r.Delete(context.Background(), "never-created")
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "Unable to find session to remove")
}

// TestRegistryForgetsTokenOnIdleTimeoutCallback exercises the onIdleTimeout
// hook directly rather than racing a live Engine's ticker goroutine: Engine's
// own idle-timeout firing is covered by TestIdleSessionSelfTerminates in
// engine_test.go, which shrinks tick/idleTimeout before Start. This test
// only checks that the registry forgets a token once that hook fires, the
// same way it would after a real idle timeout.
func TestRegistryForgetsTokenOnIdleTimeoutCallback(t *testing.T) {
	r := buildTestRegistry(t)

	token, err := r.Create(Info{SampleType: "f32le"})
	require.NoError(t, err)
	require.Equal(t, 1, r.Count())

	engine, err := r.Lookup(token)
	require.NoError(t, err)
	defer engine.Close(context.Background())

	r.onIdleTimeout(token)
	assert.Equal(t, 0, r.Count())

	err = r.Delete(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}
