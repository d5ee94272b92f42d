// simulate drives mixed traffic at a running api-server: availability
// reads, booking searches, and signed webhook deliveries with fake patient
// identities. It reports per-operation latency percentiles at the end.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	WebhookRatio float64
	SearchRatio  float64
	SigningKey   string
}

type Patient struct {
	Name  string
	Email string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil || status >= 500:
		atomic.AddInt64(&om.Error, 1)
	case status >= 400:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Success, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))

	idx := func(pct int) int {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return i
	}
	return avg, latencies[idx(50)], latencies[idx(95)], latencies[len(latencies)-1]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:     getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:      getIntEnv("SIM_WORKERS", 8),
		WebhookRatio: getFloatEnv("SIM_WEBHOOK_RATIO", 0.2),
		SearchRatio:  getFloatEnv("SIM_SEARCH_RATIO", 0.3),
		SigningKey:   os.Getenv("CALENDLY_WEBHOOK_SIGNING_KEY"),
	}

	log.Printf("simulating against %s for %s with %d workers", cfg.APIBaseURL, cfg.Duration, cfg.Workers)

	gofakeit.Seed(time.Now().UnixNano())

	patients := make([]Patient, 50)
	for i := range patients {
		patients[i] = Patient{Name: gofakeit.Name(), Email: gofakeit.Email()}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	metrics := map[string]*OperationMetrics{
		"availability": {},
		"search":       {},
		"webhook":      {},
	}

	deadline := time.Now().Add(cfg.Duration)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				patient := patients[rng.Intn(len(patients))]
				roll := rng.Float64()
				switch {
				case roll < cfg.WebhookRatio:
					sendWebhook(client, cfg, patient, rng, metrics["webhook"])
				case roll < cfg.WebhookRatio+cfg.SearchRatio:
					searchBookings(client, cfg, patient, metrics["search"])
				default:
					fetchAvailability(client, cfg, rng, metrics["availability"])
				}
				time.Sleep(time.Duration(rng.Intn(200)) * time.Millisecond)
			}
		}(int64(w) + time.Now().UnixNano())
	}
	wg.Wait()

	for name, om := range metrics {
		avg, p50, p95, max := om.Stats()
		log.Printf("%-12s total=%d success=%d rejected=%d error=%d avg=%s p50=%s p95=%s max=%s",
			name, om.Total, om.Success, om.Rejected, om.Error, avg, p50, p95, max)
	}

	printServerStats(client, cfg)
}

func fetchAvailability(client *http.Client, cfg SimConfig, rng *rand.Rand, om *OperationMetrics) {
	prefs := []string{"all", "morning", "afternoon"}
	url := fmt.Sprintf("%s/availability?time_preference=%s", cfg.APIBaseURL, prefs[rng.Intn(len(prefs))])

	start := time.Now()
	resp, err := client.Get(url)
	record(om, start, resp, err)
}

func searchBookings(client *http.Client, cfg SimConfig, patient Patient, om *OperationMetrics) {
	body, _ := json.Marshal(map[string]string{"email": patient.Email})

	start := time.Now()
	resp, err := client.Post(cfg.APIBaseURL+"/bookings/search", "application/json", bytes.NewReader(body))
	record(om, start, resp, err)
}

func sendWebhook(client *http.Client, cfg SimConfig, patient Patient, rng *rand.Rand, om *OperationMetrics) {
	events := []string{"invitee.created", "invitee.canceled", "invitee_no_show"}
	payload := map[string]any{
		"event": events[rng.Intn(len(events))],
		"payload": map[string]any{
			"invitee": map[string]string{
				"name":  patient.Name,
				"email": patient.Email,
			},
			"event": map[string]string{
				"uri":        "https://api.calendly.com/scheduled_events/" + uuid.NewString(),
				"start_time": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
			},
		},
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, cfg.APIBaseURL+"/webhooks/calendly", bytes.NewReader(body))
	if err != nil {
		om.Record(0, 0, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.SigningKey != "" {
		mac := hmac.New(sha256.New, []byte(cfg.SigningKey))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("Calendly-Webhook-Signature", "v1,"+ts+","+sig)
	}

	start := time.Now()
	resp, err := client.Do(req)
	record(om, start, resp, err)
}

func record(om *OperationMetrics, start time.Time, resp *http.Response, err error) {
	latency := time.Since(start)
	status := 0
	if resp != nil {
		status = resp.StatusCode
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	om.Record(latency, status, err)
}

func printServerStats(client *http.Client, cfg SimConfig) {
	resp, err := client.Get(cfg.APIBaseURL + "/stats")
	if err != nil {
		log.Printf("could not fetch server stats: %v", err)
		return
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	log.Printf("server cache stats: %s", data)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
