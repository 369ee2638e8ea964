// Command benchmark drives load against a running walletops API: a mix of
// bonus issuance and spends over the seeded demo owners, with optional
// hotspot skew and deliberate idempotency-key replays.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	owners      int
	replayPct   int
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Created
	success200    uint64 // Idempotent replays
	fail409       uint64 // Conflicts
	fail422       uint64 // Insufficient funds / invalid amount
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&owners, "owners", 100, "Number of seeded demo owners to target")
	flag.IntVar(&replayPct, "replay-pct", 5, "Percentage of requests that reuse the previous key")
}

func main() {
	flag.Parse()
	log.Printf("Starting benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			worker(start)
			return nil
		})
	}
	g.Wait()

	printResults(time.Since(start))
}

type opRequest struct {
	OwnerID     string `json:"owner_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

func worker(start time.Time) {
	client := &http.Client{Timeout: 5 * time.Second}
	lastKey := ""
	lastPath := ""
	var lastBody []byte

	for time.Since(start) < duration {
		path := "/api/v1/bonus"
		amount := "5.00"
		// Spends dominate so the insufficient-funds path gets exercised.
		if rand.Float32() < 0.6 {
			path = "/api/v1/spend"
			amount = "3.00"
		}

		key := uuid.NewString()
		body, _ := json.Marshal(opRequest{OwnerID: pickOwner(), Amount: amount})

		// Occasionally resend the exact previous request to measure the
		// replay path.
		if lastKey != "" && rand.Intn(100) < replayPct {
			key, path, body = lastKey, lastPath, lastBody
		} else {
			lastKey, lastPath, lastBody = key, path, body
		}

		req, _ := http.NewRequest(http.MethodPost, targetURL+path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 200:
			atomic.AddUint64(&success200, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 422:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickOwner() string {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic hits the first two owners, maximizing
		// row-lock contention on their accounts.
		if rand.Float32() < 0.90 {
			return fmt.Sprintf("demo-user-%03d", rand.Intn(2)+1)
		}
	}
	return fmt.Sprintf("demo-user-%03d", rand.Intn(owners)+1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	if total == 0 {
		log.Fatal("no requests completed")
	}

	results := map[string]any{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    float64(total) / d.Seconds(),
		"success_created":   atomic.LoadUint64(&success201),
		"success_replay":    atomic.LoadUint64(&success200),
		"conflicts":         atomic.LoadUint64(&fail409),
		"rejected_business": atomic.LoadUint64(&fail422),
		"errors":            atomic.LoadUint64(&failOther),
		"conflict_rate_pct": float64(atomic.LoadUint64(&fail409)) / float64(total) * 100,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	file, err := os.Create(fmt.Sprintf("results_%s.json", workload))
	if err != nil {
		log.Fatalf("writing results: %v", err)
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
