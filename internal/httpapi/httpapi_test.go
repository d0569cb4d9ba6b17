package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiosearch/internal/config"
	"audiosearch/internal/corpus"
	"audiosearch/internal/search"
	"audiosearch/internal/session"
)

func testSettings() config.MusicSettings {
	return config.MusicSettings{
		TargetSampleRate:      16000,
		FrequencyPoints:       6,
		SliceDurationSeconds:  0.4,
		SliceOverlapSeconds:   0.2,
		PeakCutoffThresholdDb: -35,
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	c := corpus.New()
	pool := search.NewPool(1, c)
	registry := session.NewRegistry(pool, c, testSettings(), nil)
	return New(registry, c, testSettings(), "/")
}

func TestHandleVersion(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body ProductInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ProductName)
	assert.NotEmpty(t, body.SoftwareVersion)
	assert.Equal(t, "ok", body.Result)
}

func TestVersionWithBodyDoesNotRejectGet(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/version", bytes.NewBufferString(`{"anything":true}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostVersionIsMethodNotImplemented(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/version", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Result)
	assert.Contains(t, body.Message, "Post")
	assert.Contains(t, body.Message, "VersionApiView")
}

func TestCreateSessionGetPushDeleteRoundTrip(t *testing.T) {
	h := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/session",
		bytes.NewBufferString(`{"sampleType":"f32le","storeSessionData":false}`))
	createRec := httptest.NewRecorder()
	h.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusOK, createRec.Code)

	var created struct {
		Token  string `json:"token"`
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Token)
	assert.Equal(t, "ok", created.Result)

	getReq := httptest.NewRequest(http.MethodGet, "/session/"+created.Token, nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var result sessionResultResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &result))
	assert.Equal(t, uint64(0), result.ResultVersion)
	assert.Empty(t, result.ResultTracks)
	assert.Equal(t, "ok", result.Result)

	pushReq := httptest.NewRequest(http.MethodPost, "/session/"+created.Token,
		bytes.NewReader(make([]byte, 1600*4)))
	pushRec := httptest.NewRecorder()
	h.ServeHTTP(pushRec, pushReq)
	require.Equal(t, http.StatusOK, pushRec.Code)

	var pushResult struct {
		SamplesPushed    int    `json:"samplesPushed"`
		SamplesCollected int    `json:"samplesCollected"`
		Result           string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(pushRec.Body.Bytes(), &pushResult))
	assert.Equal(t, 1600, pushResult.SamplesPushed)
	assert.Equal(t, 1600, pushResult.SamplesCollected)
	assert.Equal(t, "ok", pushResult.Result)

	deleteReq := httptest.NewRequest(http.MethodDelete, "/session/"+created.Token, nil)
	deleteRec := httptest.NewRecorder()
	h.ServeHTTP(deleteRec, deleteReq)
	require.Equal(t, http.StatusOK, deleteRec.Code)

	// the token is gone now: a second delete must report error, per the
	// uniform 400 policy rather than a REST-style 404.
	redeleteReq := httptest.NewRequest(http.MethodDelete, "/session/"+created.Token, nil)
	redeleteRec := httptest.NewRecorder()
	h.ServeHTTP(redeleteRec, redeleteReq)
	assert.Equal(t, http.StatusBadRequest, redeleteRec.Code)

	var redeleteBody struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(redeleteRec.Body.Bytes(), &redeleteBody))
	assert.Equal(t, "error", redeleteBody.Result)
	assert.Contains(t, redeleteBody.Message, "Unable to find session")
}

func TestCreateSessionMissingSampleTypeIsBadRequest(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionMalformedJSONIsBadRequest(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewBufferString(`not json`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionUnknownTokenIsBadRequest(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/session/does-not-exist", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Result)
	assert.Contains(t, body.Message, "Unable to retrieve session information")
}

func TestPushSamplesUnknownTokenIsBadRequest(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/session/does-not-exist", bytes.NewReader(make([]byte, 4)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Result)
	assert.Contains(t, body.Message, "Unable to push samples to the session")
}

func TestOptionsRequestIsHandledByCorsMiddleware(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/session", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBasePathIsPrefixedOntoRoutes(t *testing.T) {
	c := corpus.New()
	pool := search.NewPool(1, c)
	registry := session.NewRegistry(pool, c, testSettings(), nil)
	h := New(registry, c, testSettings(), "/api")

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the unprefixed route no longer exists once a base path is configured.
	bareReq := httptest.NewRequest(http.MethodGet, "/version", nil)
	bareRec := httptest.NewRecorder()
	h.ServeHTTP(bareRec, bareReq)
	assert.Equal(t, http.StatusNotFound, bareRec.Code)
}

func TestSessionResultResponseWireShape(t *testing.T) {
	resp := sessionResultResponse{
		ResultVersion:  3,
		MaxResultDelta: 1.5,
		SqAverageDelta: 2.5,
		Result:         "ok",
		ResultTracks: []trackResult{
			{FileIndex: 0, FileName: "track.wav", FilePositionSeconds: 1.2, Similarity: 42},
		},
	}

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "resultVersion")
	assert.Contains(t, decoded, "resultTracks")
	assert.Contains(t, decoded, "squareAverageDelta")
	assert.Contains(t, decoded, "result")

	tracks := decoded["resultTracks"].([]any)
	require.Len(t, tracks, 1)
	track := tracks[0].(map[string]any)
	assert.Contains(t, track, "fileIndex")
	assert.Contains(t, track, "fileName")
	assert.Contains(t, track, "filePositionSeconds")
	assert.Contains(t, track, "similarity")
}

func TestBasePathWithoutTrailingSlashStillRoutes(t *testing.T) {
	c := corpus.New()
	pool := search.NewPool(1, c)
	registry := session.NewRegistry(pool, c, testSettings(), nil)
	h := New(registry, c, testSettings(), "/api")

	req := httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewBufferString(`{"sampleType":"f32le"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
