// Package config loads the process-wide MusicSettings and ServerConfig from
// a .env file plus the environment, following a godotenv.Load() +
// getEnv(key, default) convention.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// MusicSettings are the fixed-at-startup fingerprinting parameters.
type MusicSettings struct {
	TargetSampleRate      uint32
	FrequencyPoints       uint16
	SliceDurationSeconds  float32
	SliceOverlapSeconds   float32
	PeakCutoffThresholdDb float32
}

// ChunkStrideSeconds is the temporal width of one chunk: sliceDuration minus
// sliceOverlap.
func (m MusicSettings) ChunkStrideSeconds() float64 {
	return float64(m.SliceDurationSeconds - m.SliceOverlapSeconds)
}

// Operational constants, not overridable via environment.
const (
	ThreadTickMillis     = 50
	MaxTracksInResult    = 20
	SessionTimeoutSecs   = 30
	DefaultSearchWorkers = 80
	VoterStrideSamples   = 757
	VoterRangeSamples    = 20000
	InitialSkipSeconds   = 5
)

// ServerConfig is the ambient process configuration: listen address, base
// URI, and the backing stores for the corpus and teardown sink.
type ServerConfig struct {
	ListenPort   string
	BasePath     string
	CorpusDBPath string
	MongoURI     string
	SearchWorkers int
	LogLevel     string
}

// Load reads .env (if present, ignored if missing) then the process
// environment, applying defaults for anything unset.
func Load() (ServerConfig, MusicSettings) {
	_ = godotenv.Load()

	server := ServerConfig{
		ListenPort:    getEnv("AUDIOSEARCH_PORT", "5000"),
		BasePath:      getEnv("AUDIOSEARCH_BASE_PATH", "/"),
		CorpusDBPath:  getEnv("AUDIOSEARCH_CORPUS_DB", "corpus.db"),
		MongoURI:      getEnv("AUDIOSEARCH_MONGO_URI", ""),
		SearchWorkers: getEnvInt("AUDIOSEARCH_SEARCH_WORKERS", DefaultSearchWorkers),
		LogLevel:      getEnv("AUDIOSEARCH_LOG_LEVEL", "info"),
	}

	music := MusicSettings{
		TargetSampleRate:      uint32(getEnvInt("AUDIOSEARCH_TARGET_SAMPLE_RATE", 16000)),
		FrequencyPoints:       uint16(getEnvInt("AUDIOSEARCH_FREQUENCY_POINTS", 6)),
		SliceDurationSeconds:  float32(getEnvFloat("AUDIOSEARCH_SLICE_DURATION", 0.4)),
		SliceOverlapSeconds:   float32(getEnvFloat("AUDIOSEARCH_SLICE_OVERLAP", 0.2)),
		PeakCutoffThresholdDb: float32(getEnvFloat("AUDIOSEARCH_PEAK_CUTOFF_DB", -35)),
	}

	return server, music
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
