// simulate stress-tests the booking path: it grabs available slots straight
// from postgres, fires a burst of concurrent booking requests at each one
// through the HTTP API, and verifies that exactly one request per slot wins.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/clinic-scheduling/internal/config"
	"github.com/medtrack/clinic-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL        string
	SlotLimit         int
	ContendersPerSlot int
	PostgresDSN       string
}

type Metrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&m.Error, 1)
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Percentiles() (p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := func(p int) int {
		i := len(sorted) * p / 100
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return i
	}
	return sorted[idx(50)], sorted[idx(95)]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		SlotLimit:         getInt("SIM_SLOT_LIMIT", 50),
		ContendersPerSlot: getInt("SIM_CONTENDERS_PER_SLOT", 20),
		PostgresDSN:       baseCfg.PostgresDSN,
	}

	log.Printf("config: slots=%d contenders_per_slot=%d base_url=%s",
		cfg.SlotLimit, cfg.ContendersPerSlot, cfg.APIBaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	slots, err := loadAvailableSlots(ctx, pgPool, cfg.SlotLimit)
	if err != nil {
		log.Fatalf("load slots: %v", err)
	}
	if len(slots) == 0 {
		log.Fatal("no available slots found; run seed and slot-worker first")
	}
	log.Printf("loaded %d available slots", len(slots))

	client := &http.Client{Timeout: 10 * time.Second}
	var metrics Metrics
	multiWins := 0

	for _, slotID := range slots {
		wins := contendForSlot(context.Background(), client, cfg, slotID, &metrics)
		if wins != 1 {
			multiWins++
			log.Printf("ANOMALY: slot %s had %d winners", slotID, wins)
		}
	}

	printReport(cfg, len(slots), multiWins, &metrics)
}

func loadAvailableSlots(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id FROM appointment_slots
		WHERE slot_status = 'available' AND is_active = true AND slot_start > now()
		ORDER BY slot_start
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		slots = append(slots, id)
	}
	return slots, rows.Err()
}

// contendForSlot fires ContendersPerSlot simultaneous booking requests at one
// slot and returns how many were accepted. Anything other than 1 means the
// mutual exclusion guarantee is broken.
func contendForSlot(ctx context.Context, client *http.Client, cfg SimConfig, slotID uuid.UUID, metrics *Metrics) int {
	var wins int64
	var wg sync.WaitGroup

	for i := 0; i < cfg.ContendersPerSlot; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			body, _ := json.Marshal(map[string]string{
				"patient_id": uuid.New().String(),
				"slot_id":    slotID.String(),
			})

			start := time.Now()
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
				cfg.APIBaseURL+"/appointments/book", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			latency := time.Since(start)

			status := 0
			if err == nil {
				status = resp.StatusCode
				resp.Body.Close()
				if status == http.StatusCreated {
					atomic.AddInt64(&wins, 1)
				}
			}
			metrics.Record(latency, status, err)
		}()
	}

	wg.Wait()
	return int(atomic.LoadInt64(&wins))
}

func printReport(cfg SimConfig, slotCount, multiWins int, metrics *Metrics) {
	p50, p95 := metrics.Percentiles()

	fmt.Println("\n================ SIMULATION REPORT ================")
	fmt.Printf("Slots contended:    %d (x%d concurrent bookings each)\n", slotCount, cfg.ContendersPerSlot)
	fmt.Printf("Total requests:     %d\n", atomic.LoadInt64(&metrics.Total))
	fmt.Printf("Successful (201):   %d\n", atomic.LoadInt64(&metrics.Success))
	fmt.Printf("Conflicts (409):    %d\n", atomic.LoadInt64(&metrics.Conflict))
	fmt.Printf("Errors:             %d\n", atomic.LoadInt64(&metrics.Error))
	fmt.Printf("Latency:            p50=%s p95=%s\n", p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	if multiWins == 0 {
		fmt.Println("Mutual exclusion:   OK (exactly one winner per slot)")
	} else {
		fmt.Printf("Mutual exclusion:   VIOLATED on %d slots\n", multiWins)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
