// load-test drives the broadcast endpoint with concurrent contact
// broadcasts. Run it against a bridge-api wired to cmd/mock-gateway.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type broadcastRequest struct {
	Network      string   `json:"network"`
	Kind         string   `json:"kind"`
	Text         string   `json:"text"`
	PhoneNumbers []string `json:"phone_numbers"`
}

type broadcastResponse struct {
	Count   int `json:"count"`
	Results []struct {
		Target string `json:"target"`
		Status string `json:"status"`
	} `json:"results"`
}

type loadTestResult struct {
	TotalRequests   int
	SuccessCount    int32
	FailureCount    int32
	TotalDuration   time.Duration
	RequestsPerSec  float64
	AvgResponseTime time.Duration
	Errors          map[string]int
}

func runLoadTest(url string, numRequests, concurrency int) *loadTestResult {
	var (
		successCount  int32
		failureCount  int32
		totalRespTime int64
		errorsMu      sync.Mutex
		errors        = make(map[string]int)
		wg            sync.WaitGroup
		semaphore     = make(chan struct{}, concurrency)
	)

	startTime := time.Now()

	fmt.Printf("\nStarting load test: %d requests with concurrency %d\n", numRequests, concurrency)
	fmt.Printf("Target: %s\n", url)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(reqNum int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			reqStart := time.Now()

			payload := broadcastRequest{
				Network: "device",
				Kind:    "text",
				Text:    fmt.Sprintf("load test message #%d", reqNum),
				PhoneNumbers: []string{
					fmt.Sprintf("+6681234%04d", reqNum%10000),
					fmt.Sprintf("+6689876%04d", reqNum%10000),
				},
			}
			jsonData, _ := json.Marshal(payload)

			req, _ := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Owner-Id", fmt.Sprintf("load-owner-%d", reqNum%8))
			req.Header.Set("X-Owner-Role", "SUPER_ADMIN")

			resp, err := http.DefaultClient.Do(req)
			atomic.AddInt64(&totalRespTime, time.Since(reqStart).Nanoseconds())

			if err != nil {
				atomic.AddInt32(&failureCount, 1)
				errorsMu.Lock()
				errors[err.Error()]++
				errorsMu.Unlock()
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				atomic.AddInt32(&failureCount, 1)
				errorsMu.Lock()
				errors[fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))]++
				errorsMu.Unlock()
				return
			}

			var br broadcastResponse
			if err := json.Unmarshal(body, &br); err != nil {
				atomic.AddInt32(&failureCount, 1)
				errorsMu.Lock()
				errors["JSON parse error"]++
				errorsMu.Unlock()
				return
			}

			atomic.AddInt32(&successCount, 1)
			if reqNum%10 == 0 {
				fmt.Print(".")
			}
		}(i)
	}

	wg.Wait()
	totalDuration := time.Since(startTime)

	return &loadTestResult{
		TotalRequests:   numRequests,
		SuccessCount:    successCount,
		FailureCount:    failureCount,
		TotalDuration:   totalDuration,
		RequestsPerSec:  float64(numRequests) / totalDuration.Seconds(),
		AvgResponseTime: time.Duration(totalRespTime / int64(numRequests)),
		Errors:          errors,
	}
}

func printResults(result *loadTestResult) {
	fmt.Printf("\n\nLoad Test Results\n")
	fmt.Printf("Total Requests:    %d\n", result.TotalRequests)
	fmt.Printf("Success:           %d (%.2f%%)\n", result.SuccessCount, float64(result.SuccessCount)/float64(result.TotalRequests)*100)
	fmt.Printf("Failed:            %d (%.2f%%)\n", result.FailureCount, float64(result.FailureCount)/float64(result.TotalRequests)*100)
	fmt.Printf("Total Duration:    %v\n", result.TotalDuration)
	fmt.Printf("Requests/sec:      %.2f\n", result.RequestsPerSec)
	fmt.Printf("Avg Response Time: %v\n", result.AvgResponseTime)

	if len(result.Errors) > 0 {
		fmt.Println("Errors:")
		for errMsg, count := range result.Errors {
			fmt.Printf("   - %s: %d times\n", errMsg, count)
		}
	}
}

func main() {
	baseURL := "http://localhost:8080/api/broadcasts"

	fmt.Println("Checking if server is running...")
	resp, err := http.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Println("Error: cannot connect to server; start bridge-api and mock-gateway first")
		return
	}
	resp.Body.Close()

	// Device-network jobs all serialize on the shared connection, so this
	// measures queueing behaviour as much as throughput.
	result := runLoadTest(baseURL, 50, 8)
	printResults(result)
}
