// Package httpapi is the HTTP facade over the session registry (SPEC_FULL
// §5/§6): POST /session, GET/POST/DELETE /session/{token}, and GET /version.
// Each route is its own view dispatching on method internally (so an
// unimplemented method reports a JSON 400, not a plain-text 405), with
// shared writeJSON/writeError helpers and requestLogger/corsMiddleware
// wrapping every route.
package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/tidwall/gjson"

	"audiosearch/internal/apperror"
	"audiosearch/internal/config"
	"audiosearch/internal/corpus"
	"audiosearch/internal/session"
)

const maxSessionBodyBytes = 64 << 10 // session-definition JSON bodies are tiny
const maxSampleChunkBytes = 64 << 20 // one pushed audio chunk

// ProductInfo backs GET /version.
type ProductInfo struct {
	ProductName     string `json:"ProductName"`
	SoftwareVersion string `json:"SoftwareVersion"`
	HardwareVersion string `json:"HardwareVersion"`
	Result          string `json:"result"`
}

// Server wires the session registry and corpus into an http.Handler.
type Server struct {
	registry *session.Registry
	corpus   *corpus.Corpus
	settings config.MusicSettings
	product  ProductInfo
}

// New builds the routed handler, wrapped in the request logger and CORS
// middleware. basePath is prefixed onto every route; a trailing "/" is
// enforced regardless of how it's configured.
func New(registry *session.Registry, corp *corpus.Corpus, settings config.MusicSettings, basePath string) http.Handler {
	s := &Server{
		registry: registry,
		corpus:   corp,
		settings: settings,
		product: ProductInfo{
			ProductName:     "audiosearch service",
			SoftwareVersion: "1.0.0",
			HardwareVersion: "1.0.0",
			Result:          "ok",
		},
	}

	base := normalizeBasePath(basePath)

	mux := http.NewServeMux()
	mux.HandleFunc(base+"version", s.viewVersion)
	mux.HandleFunc(base+"session", s.viewSession)
	mux.HandleFunc(base+"session/{token}", s.viewSessionToken)
	// any other path under base answers with the same JSON error body.
	mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		writeAppError(w, apperror.MethodNotAllowedf(
			"Error! HTTP %s method not implemented for %s", titleMethod(r.Method), r.URL.Path))
	})

	return requestLogger(corsMiddleware(mux))
}

func normalizeBasePath(basePath string) string {
	if basePath == "" {
		basePath = "/"
	}
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	return basePath
}

// titleMethod renders an HTTP method the way the method-not-implemented
// message reports it: "Post", "Get", "Put", "Delete".
func titleMethod(method string) string {
	if method == "" {
		return method
	}
	return strings.ToUpper(method[:1]) + strings.ToLower(method[1:])
}

// viewVersion dispatches /version: only GET is implemented.
func (s *Server) viewVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAppError(w, apperror.MethodNotAllowedf(
			"Error! HTTP %s method not implemented for VersionApiView", titleMethod(r.Method)))
		return
	}
	s.handleVersion(w, r)
}

// viewSession dispatches /session: only POST is implemented.
func (s *Server) viewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAppError(w, apperror.MethodNotAllowedf(
			"Error! HTTP %s method not implemented for SessionApiView", titleMethod(r.Method)))
		return
	}
	s.handleCreateSession(w, r)
}

// viewSessionToken dispatches /session/{token}: GET, POST, PUT, and DELETE
// are implemented.
func (s *Server) viewSessionToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetSession(w, r)
	case http.MethodPost, http.MethodPut:
		s.handlePushSamples(w, r)
	case http.MethodDelete:
		s.handleDeleteSession(w, r)
	default:
		writeAppError(w, apperror.MethodNotAllowedf(
			"Error! HTTP %s method not implemented for SessionApiView", titleMethod(r.Method)))
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.product)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSessionBodyBytes+1))
	if err != nil {
		writeAppError(w, apperror.MalformedRequestf("failed to read request body: %v", err))
		return
	}
	if len(body) > maxSessionBodyBytes {
		writeAppError(w, apperror.MalformedRequestf("session definition body too large"))
		return
	}
	if !gjson.ValidBytes(body) {
		writeAppError(w, apperror.MalformedRequestf("request body is not valid JSON"))
		return
	}

	// sampleType is required, so pull it with jsonparser to get a clean
	// "key missing" signal; storeSessionData is optional, so gjson's
	// zero-value-on-absence behavior is the better fit.
	sampleType, jsErr := jsonparser.GetString(body, "sampleType")
	if jsErr != nil {
		writeAppError(w, apperror.InvalidSampleTypef(
			"Undefined 'sampleType' property in the session definition. Valid values are: 'f32le', 's16le'"))
		return
	}

	info := session.Info{
		SampleType:       sampleType,
		StoreSessionData: gjson.GetBytes(body, "storeSessionData").Bool(),
	}

	token, err := s.registry.Create(info)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token, "result": "ok"})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	engine, err := s.registry.Lookup(token)
	if err != nil {
		writeAppError(w, err)
		return
	}

	snapshot := engine.GetInformation()

	tracks := make([]trackResult, 0, len(snapshot.SearchResult))
	for _, res := range snapshot.SearchResult {
		tracks = append(tracks, trackResult{
			FileIndex:           res.TrackIndex,
			FileName:            s.corpus.FileName(res.TrackIndex),
			FilePositionSeconds: float64(res.ChunkIndex) * s.settings.ChunkStrideSeconds(),
			Similarity:          res.Catches,
		})
	}

	writeJSON(w, http.StatusOK, sessionResultResponse{
		ResultVersion:  snapshot.ResultVersion,
		MaxResultDelta: snapshot.MaxResultDelta,
		SqAverageDelta: snapshot.SqAverageDelta,
		ResultTracks:   tracks,
		Result:         "ok",
	})
}

func (s *Server) handlePushSamples(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	engine, err := s.registry.LookupForPush(token)
	if err != nil {
		writeAppError(w, err)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxSampleChunkBytes+1))
	if err != nil {
		writeAppError(w, apperror.MalformedRequestf("failed to read sample chunk: %v", err))
		return
	}
	if len(raw) > maxSampleChunkBytes {
		writeAppError(w, apperror.MalformedRequestf("sample chunk exceeds the %d byte limit", maxSampleChunkBytes))
		return
	}

	pushed, collected, err := engine.PushSamples(raw)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"samplesPushed":    pushed,
		"samplesCollected": collected,
		"result":           "ok",
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	if err := s.registry.Delete(r.Context(), token); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

type sessionResultResponse struct {
	ResultVersion  uint64        `json:"resultVersion"`
	MaxResultDelta float32       `json:"maxResultDelta"`
	SqAverageDelta float32       `json:"squareAverageDelta"`
	ResultTracks   []trackResult `json:"resultTracks"`
	Result         string        `json:"result"`
}

type trackResult struct {
	FileIndex           uint32  `json:"fileIndex"`
	FileName            string  `json:"fileName"`
	FilePositionSeconds float64 `json:"filePositionSeconds"`
	Similarity          uint32  `json:"similarity"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	log.Printf("[error] %d: %s", status, msg)
	writeJSON(w, status, map[string]string{"result": "error", "message": msg})
}

// writeAppError writes the error body for err. Every apperror.Kind
// serializes as {result:"error", message} with status 400 — the uniform
// policy the HTTP boundary applies regardless of error kind.
func writeAppError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(rec, r)

		if strings.HasPrefix(r.URL.Path, "/session") || strings.HasPrefix(r.URL.Path, "/version") {
			log.Printf("[http] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
		}
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
