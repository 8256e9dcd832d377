package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Draws completed
	cooldown429   uint64 // Cooldown rejections
	broke422      uint64 // Insufficient funds
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "mixed", "Workload type: pull | shop | mixed")
	flag.IntVar(&accounts, "accounts", 100, "Size of the synthetic account pool")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Accounts: %d", workload, concurrency, duration, accounts)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		userID := rand.Intn(accounts) + 1

		action := "pulls"
		switch workload {
		case "shop":
			action = "purchases"
		case "mixed":
			if rand.Intn(2) == 0 {
				action = "purchases"
			}
		}

		url := fmt.Sprintf("%s/api/v1/accounts/%d/%s", targetURL, userID, action)
		resp, err := client.Post(url, "application/json", nil)
		atomic.AddUint64(&totalRequests, 1)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusTooManyRequests:
			atomic.AddUint64(&cooldown429, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&broke422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("\n--- Benchmark Results ---")
	fmt.Printf("Elapsed:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Requests: %d (%.0f req/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("Draws (201):    %d\n", atomic.LoadUint64(&success201))
	fmt.Printf("Cooldown (429): %d\n", atomic.LoadUint64(&cooldown429))
	fmt.Printf("Broke (422):    %d\n", atomic.LoadUint64(&broke422))
	fmt.Printf("Failures:       %d\n", atomic.LoadUint64(&failOther))
}
