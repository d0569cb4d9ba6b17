// Package ingest decodes arbitrary audio files into raw PCM for the offline
// corpus builder (SPEC_FULL §4.8/§10's "audiosearchd corpus load"), shelling
// out to ffmpeg/ffprobe and decoding straight to a raw s16le pipe instead of
// an intermediate .wav file, since the corpus builder only needs float32
// samples, never a WAV container.
package ingest

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"audiosearch/internal/buffer"
)

// DecodeToSamples runs ffmpeg over inputPath and returns mono float32 PCM
// samples at targetSampleRate, matching the Session Engine's own
// AppendS16LE decode path.
func DecodeToSamples(inputPath string, targetSampleRate uint32) ([]float32, error) {
	cmd := exec.Command(
		"ffmpeg",
		"-y",
		"-i", inputPath,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.FormatUint(uint64(targetSampleRate), 10),
		"-ac", "1",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode of %q failed: %w, output: %s", inputPath, err, stderr.String())
	}

	buf := buffer.New(targetSampleRate)
	if _, err := buf.AppendS16LE(stdout.Bytes()); err != nil {
		return nil, fmt.Errorf("decoding ffmpeg s16le output for %q: %w", inputPath, err)
	}

	window := buf.SnapshotResampledTo(buf.DataLength(), targetSampleRate)
	return window.Samples, nil
}

// Duration returns the duration in seconds of inputPath, via ffprobe.
func Duration(inputPath string) (float64, error) {
	cmd := exec.Command(
		"ffprobe",
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration query for %q failed: %w", inputPath, err)
	}

	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}
