// Benchmark tool for load-testing the Kestrel console API.
//
// Usage:
//
//	go run cmd/benchmark/main.go -url http://localhost:8090 -duration 30s -concurrency 10
//
// This tool:
//
//  1. Hammers GET /api/cases and GET /api/dashboard concurrently
//  2. Measures request throughput and latency percentiles
//  3. Reports per-endpoint success/failure counts
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// endpointStats tracks results for one endpoint.
type endpointStats struct {
	name      string
	path      string
	successes atomic.Int64
	failures  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *endpointStats) record(d time.Duration, ok bool) {
	if ok {
		s.successes.Add(1)
	} else {
		s.failures.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *endpointStats) percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func main() {
	baseURL := flag.String("url", "http://localhost:8090", "Kestrel base URL")
	duration := flag.Duration("duration", 30*time.Second, "benchmark duration")
	concurrency := flag.Int("concurrency", 10, "concurrent workers per endpoint")
	role := flag.String("role", "viewer", "console role header value")
	flag.Parse()

	endpoints := []*endpointStats{
		{name: "cases", path: "/api/cases"},
		{name: "dashboard", path: "/api/dashboard"},
	}

	// Fail fast if the server is not up.
	if resp, err := http.Get(*baseURL + "/health"); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel unreachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	} else {
		resp.Body.Close()
	}

	fmt.Printf("Benchmarking %s for %s with %d workers per endpoint\n\n", *baseURL, *duration, *concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	var wg sync.WaitGroup

	start := time.Now()
	for _, ep := range endpoints {
		for i := 0; i < *concurrency; i++ {
			wg.Add(1)
			go func(ep *endpointStats) {
				defer wg.Done()
				for ctx.Err() == nil {
					reqStart := time.Now()
					ok := hit(ctx, client, *baseURL+ep.path, *role)
					ep.record(time.Since(reqStart), ok)
				}
			}(ep)
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("Results:")
	fmt.Println("========")
	var total int64
	for _, ep := range endpoints {
		ok := ep.successes.Load()
		fail := ep.failures.Load()
		total += ok + fail
		fmt.Printf("\n  %s (%s)\n", ep.name, ep.path)
		fmt.Printf("    requests:  %d ok, %d failed\n", ok, fail)
		fmt.Printf("    rate:      %.1f req/s\n", float64(ok+fail)/elapsed.Seconds())
		fmt.Printf("    latency:   p50=%s p95=%s p99=%s\n",
			ep.percentile(0.50).Round(time.Microsecond),
			ep.percentile(0.95).Round(time.Microsecond),
			ep.percentile(0.99).Round(time.Microsecond),
		)
	}
	fmt.Printf("\n  total: %d requests in %s (%.1f req/s)\n", total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
}

func hit(ctx context.Context, client *http.Client, url, role string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-Console-Role", role)

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
