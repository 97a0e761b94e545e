package loadgen

import (
	"os"
)

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`motionscore load generator
==========================

Submits random keypoint clips to a running service concurrently and checks
that every score is within bounds.

Usage:
  loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -clips int
        Number of clips to submit (default 1000)
  -min-len int
        Shortest clip in frames (default 1)
  -max-len int
        Longest clip in frames (default 300)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -output string
        Optional JSON file for per-clip results
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  loadgen -clips 5000 -workers 32
  loadgen -url http://scorer:8080 -min-len 50 -max-len 50 -output results.json
`)
}
