package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/motionscore/internal/loadgen"
	"github.com/okian/motionscore/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumClips   = 1000
	defaultMinLen     = 1
	defaultMaxLen     = 300
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 10 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the service")
		numClips   = flag.Int("clips", defaultNumClips, "Number of clips to generate and score")
		minLen     = flag.Int("min-len", defaultMinLen, "Minimum clip length in frames")
		maxLen     = flag.Int("max-len", defaultMaxLen, "Maximum clip length in frames")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write per-clip results as JSON to this file")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &loadgen.Config{
		BaseURL:    *baseURL,
		NumClips:   *numClips,
		MinLen:     *minLen,
		MaxLen:     *maxLen,
		Workers:    *workers,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		Verbose:    *verbose,
	}

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("load run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}
