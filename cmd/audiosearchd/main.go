// Command audiosearchd is the service entrypoint: a small CLI dispatching
// to "serve" (run the HTTP facade) and "corpus load"/"corpus stats" (manage
// the offline SQLite catalog), using an os.Args[1] + flag.NewFlagSet
// per-command dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"

	"audiosearch/internal/config"
	"audiosearch/internal/corpus"
	"audiosearch/internal/fingerprint"
	"audiosearch/internal/httpapi"
	"audiosearch/internal/search"
	"audiosearch/internal/session"
	"audiosearch/internal/teardown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "corpus":
		cmdCorpus(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: audiosearchd <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  serve                             start the audio search HTTP service")
	fmt.Println("  corpus load <dir>                 fingerprint audio files into the corpus database")
	fmt.Println("  corpus stats                      print the corpus database's track count")
}

func cmdServe(args []string) {
	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveCmd.Parse(args)

	serverCfg, musicSettings := config.Load()

	color.Cyan("audiosearch service starting")
	fmt.Printf("  corpus:  %s\n", serverCfg.CorpusDBPath)
	fmt.Printf("  workers: %d\n", serverCfg.SearchWorkers)
	fmt.Printf("  port:    %s\n", serverCfg.ListenPort)
	fmt.Printf("  base:    %s\n", serverCfg.BasePath)

	corp, err := corpus.LoadFromSQLite(serverCfg.CorpusDBPath)
	if err != nil {
		color.Red("failed to load corpus: %v", err)
		os.Exit(1)
	}
	fmt.Printf("  tracks:  %d\n", corp.TrackCount())

	sink, err := resolveTeardownSink(serverCfg)
	if err != nil {
		color.Yellow("teardown sink unavailable, session dumps disabled: %v", err)
		sink = teardown.NoopSink{}
	}

	pool := search.NewPool(serverCfg.SearchWorkers, corp)
	registry := session.NewRegistry(pool, corp, musicSettings, sink)
	handler := httpapi.New(registry, corp, musicSettings, serverCfg.BasePath)

	logMemUsage("startup")

	addr := ":" + serverCfg.ListenPort
	color.Green("listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func resolveTeardownSink(cfg config.ServerConfig) (session.TeardownSink, error) {
	if cfg.MongoURI == "" {
		return teardown.NoopSink{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return teardown.Dial(ctx, cfg.MongoURI, "audiosearch")
}

func cmdCorpus(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: audiosearchd corpus <load|stats> ...")
		os.Exit(1)
	}

	switch args[0] {
	case "load":
		cmdCorpusLoad(args[1:])
	case "stats":
		cmdCorpusStats(args[1:])
	default:
		fmt.Println("usage: audiosearchd corpus <load|stats> ...")
		os.Exit(1)
	}
}

func cmdCorpusLoad(args []string) {
	loadCmd := flag.NewFlagSet("corpus load", flag.ExitOnError)
	loadCmd.Parse(args)

	if loadCmd.NArg() < 1 {
		fmt.Println("usage: audiosearchd corpus load <dir>")
		os.Exit(1)
	}
	dir := loadCmd.Arg(0)

	serverCfg, musicSettings := config.Load()
	fpConfig := fingerprint.DeriveReferenceConfig(musicSettings)

	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".wav", ".mp3", ".flac", ".ogg", ".m4a":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		color.Red("walking %s: %v", dir, err)
		os.Exit(1)
	}

	processFilesConcurrently(files, serverCfg.CorpusDBPath, musicSettings, fpConfig)
}

// processFilesConcurrently fingerprints and stores files in parallel using a
// jobs/results channel pair.
func processFilesConcurrently(files []string, dbPath string, settings config.MusicSettings, fpConfig fingerprint.ReferenceConfig) {
	numFiles := len(files)
	if numFiles == 0 {
		fmt.Println("no audio files found")
		return
	}

	maxWorkers := runtime.NumCPU() / 2
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if numFiles < maxWorkers {
		maxWorkers = numFiles
	}

	jobs := make(chan string, numFiles)
	results := make(chan error, numFiles)

	for w := 0; w < maxWorkers; w++ {
		go func() {
			for path := range jobs {
				results <- loadOneTrack(path, dbPath, settings, fpConfig)
			}
		}()
	}
	for _, path := range files {
		jobs <- path
	}
	close(jobs)

	successCount, errorCount := 0, 0
	for i := 0; i < numFiles; i++ {
		if err := <-results; err != nil {
			fmt.Printf("error: %v\n", err)
			errorCount++
		} else {
			successCount++
		}
	}

	fmt.Printf("\nprocessed %d files: %d successful, %d failed\n", numFiles, successCount, errorCount)
}

func loadOneTrack(path, dbPath string, settings config.MusicSettings, fpConfig fingerprint.ReferenceConfig) error {
	groupKeys, chunkIndices, err := corpus.BuildTrack(path, settings, fpConfig)
	if err != nil {
		return fmt.Errorf("fingerprinting %q: %w", path, err)
	}

	filename := filepath.Base(path)
	if err := corpus.StoreTrack(dbPath, filename, groupKeys, chunkIndices); err != nil {
		return fmt.Errorf("storing %q: %w", path, err)
	}

	fmt.Printf("indexed %q (%d peak groups)\n", filename, len(groupKeys))
	return nil
}

func cmdCorpusStats(args []string) {
	statsCmd := flag.NewFlagSet("corpus stats", flag.ExitOnError)
	statsCmd.Parse(args)

	serverCfg, _ := config.Load()

	corp, err := corpus.LoadFromSQLite(serverCfg.CorpusDBPath)
	if err != nil {
		color.Red("failed to load corpus: %v", err)
		os.Exit(1)
	}

	fmt.Printf("corpus: %s\n", serverCfg.CorpusDBPath)
	fmt.Printf("tracks: %d\n", corp.TrackCount())
}

func logMemUsage(label string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Printf("[mem] %s: alloc=%s, sys=%s, heap_in_use=%s",
		label, formatBytes(int64(m.Alloc)), formatBytes(int64(m.Sys)), formatBytes(int64(m.HeapInuse)))
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
