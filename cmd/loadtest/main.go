package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var vocabulary = []string{
	"white", "black", "fluffy", "groomed", "curly", "big", "small", "funny", "nasty",
	"cat", "dog", "rat", "pet", "starling", "sparrow", "hamster", "parrot",
	"collar", "tail", "eyes", "hair", "ears", "paws",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Rate        float64
	Mode        string
	Status      string
	SeedDocs    int
	Queries     []string
}

type Stats struct {
	total     atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64
	empty     atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) Record(d time.Duration, statusCode int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.success.Add(1)
	} else {
		s.failed.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[statusCode]++
	s.mu.Unlock()
}

type searchResponse struct {
	Results  []json.RawMessage `json:"results"`
	CacheHit bool              `json:"cache_hit"`
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&cfg.Rate, "rps", 0, "overall request rate limit, 0 for unlimited")
	flag.StringVar(&cfg.Mode, "mode", "", "execution mode passed to the server (sequential or parallel)")
	flag.StringVar(&cfg.Status, "status", "", "document status filter passed to the server")
	flag.IntVar(&cfg.SeedDocs, "seed", 0, "number of synthetic documents to add before the run")
	flag.Parse()
	cfg.Queries = buildQueries(200)

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Println("=== TF-IDF Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	if cfg.SeedDocs > 0 {
		added, err := seedDocuments(context.Background(), client, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seeding documents: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d documents\n\n", added)
	}

	stats := runLoadTest(client, cfg)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

// buildQueries mixes plus and minus words so the server exercises exclusion
// as well as ranking.
func buildQueries(n int) []string {
	queries := make([]string, 0, n)
	for i := range n {
		words := []string{
			vocabulary[i%len(vocabulary)],
			vocabulary[(i*7+3)%len(vocabulary)],
		}
		if i%3 == 0 {
			words = append(words, "-"+vocabulary[(i*11+1)%len(vocabulary)])
		}
		queries = append(queries, strings.Join(words, " "))
	}
	return queries
}

func seedDocuments(ctx context.Context, client *http.Client, cfg Config) (int, error) {
	var added atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for id := range cfg.SeedDocs {
		g.Go(func() error {
			words := make([]string, 0, 6)
			for j := range 6 {
				words = append(words, vocabulary[(id*(j+3)+j*j)%len(vocabulary)])
			}
			body := fmt.Sprintf(`{"id":%d,"text":%q,"ratings":[%d,%d]}`, id, strings.Join(words, " "), id%10, -(id % 3))
			req, err := http.NewRequestWithContext(gctx, http.MethodPost, cfg.BaseURL+"/api/v1/documents", strings.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusCreated:
				added.Add(1)
			case http.StatusConflict:
			default:
				return fmt.Errorf("document %d: unexpected status %d", id, resp.StatusCode)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(added.Load()), err
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Concurrency)
	}

	var g errgroup.Group
	fmt.Print("Running")
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				searchOnce(ctx, client, cfg, cfg.Queries[i%len(cfg.Queries)], stats)
			}
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func searchOnce(ctx context.Context, client *http.Client, cfg Config, query string, stats *Stats) {
	params := url.Values{"q": {query}}
	if cfg.Mode != "" {
		params.Set("mode", cfg.Mode)
	}
	if cfg.Status != "" {
		params.Set("status", cfg.Status)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		stats.Record(0, 0, err)
		return
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.Record(time.Since(start), 0, err)
		}
		return
	}
	defer resp.Body.Close()

	var body searchResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	stats.Record(time.Since(start), resp.StatusCode, nil)
	if decodeErr == nil && resp.StatusCode == http.StatusOK {
		if body.CacheHit {
			stats.cacheHits.Add(1)
		}
		if len(body.Results) == 0 {
			stats.empty.Add(1)
		}
	}
}

func printReport(stats *Stats, duration time.Duration) bool {
	total := stats.total.Load()
	success := stats.success.Load()
	failed := stats.failed.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", failed)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(stats.cacheHits.Load())/float64(success)*100)
		fmt.Printf("Empty Results:   %d\n", stats.empty.Load())
	}

	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(stats.statusCodes))
	for code, n := range stats.statusCodes {
		counts[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sumSquared += diff * diff
		}
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, counts[code])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
