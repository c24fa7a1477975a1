// README: Smoke cases: environment, fares, the booking-to-completion flow, realtime and throughput.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"vitecab/internal/infra"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	customer string
	tokens   map[string]string
	rideID   string
	drivers  []string

	// driverUsers[i] owns drivers[i].
	driverUsers []string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		tokens: map[string]string{},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigrations},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", "", nil, nil, http.StatusOK)
		}},

		// Fares
		{Name: "Fare: distance quote", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/fares/calculate", "", parisTrip("economy_4"), nil, http.StatusOK)
		}},
		{Name: "Fare: unknown vehicle -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/fares/calculate", "", parisTrip("spaceship"), nil, http.StatusBadRequest)
		}},
		{Name: "Fare: missing route -> 422", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/fares/calculate", "", map[string]any{
				"vehicleType": "economy_4", "routeId": 999999,
			}, nil, http.StatusUnprocessableEntity)
		}},
		{Name: "Fare: no location or route -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/fares/calculate", "", map[string]any{"vehicleType": "economy_4"}, nil, http.StatusBadRequest)
		}},

		// Booking flow
		{Name: "Auth: booking without token -> 401", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/bookings", "", booking("x"), nil, http.StatusUnauthorized)
		}},
		{Name: "Booking: customer books a ride", Run: createBooking},
		{Name: "Booking: other customer -> 403", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/bookings", r.token("intruder", ""), booking(r.customer), nil, http.StatusForbidden)
		}},
		{Name: "Driver: register two drivers", Run: registerDrivers},
		{Name: "Ride: non-admin assign -> 403", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/admin/rides/"+r.rideID+"/assign", r.token(r.customer, ""),
				map[string]any{"driverId": r.driver(0)}, nil, http.StatusForbidden)
		}},
		{Name: "Ride: assign", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/admin/rides/"+r.rideID+"/assign", r.admin(),
				map[string]any{"driverId": r.driver(0)}, nil, http.StatusOK)
		}},
		{Name: "Ride: transfer to same driver -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/admin/rides/"+r.rideID+"/transfer", r.admin(),
				map[string]any{"toDriverId": r.driver(0)}, nil, http.StatusBadRequest)
		}},
		{Name: "Ride: transfer", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/admin/rides/"+r.rideID+"/transfer", r.admin(),
				map[string]any{"toDriverId": r.driver(1)}, nil, http.StatusOK)
		}},
		{Name: "Ride: complete", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/admin/rides/"+r.rideID+"/complete", r.admin(), nil, nil, http.StatusOK)
		}},
		{Name: "Ride: cancel completed -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/admin/rides/"+r.rideID+"/cancel", r.admin(),
				map[string]any{"reason": "too late"}, nil, http.StatusConflict)
		}},
		{Name: "Ride: driver history lists ride", Run: driverHistory},
		{Name: "Ride: other customer read -> 403", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/rides/"+r.rideID, r.token("intruder", ""), nil, nil, http.StatusForbidden)
		}},
		{Name: "Ride: unknown id -> 404", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/rides/"+uuid.NewString(), r.token(r.customer, ""), nil, nil, http.StatusNotFound)
		}},

		// Concurrency
		{Name: "Concurrency: parallel assign of one ride", Run: concurrentAssign},

		// Realtime
		{Name: "Realtime: SSE receives ride event", Run: sseReceivesBooking},

		// Performance
		{Name: "Perf: fare quote throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, "/api/fares/calculate", parisTrip("business"))
		}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: "FAIL", Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func applyMigrations(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: "SKIP", Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	if err := infra.Migrate(ctx, r.db, r.cfg.MigrationsDir); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	tables, err := extractTables(filepath.Join(r.cfg.MigrationsDir, "0001_init.sql"))
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if !exists {
			return Result{Status: "FAIL", Note: "missing table: " + t}
		}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("tables=%d", len(tables))}
}

func createBooking(ctx context.Context, r *Runner) Result {
	r.customer = "bench-customer-" + uuid.NewString()
	var out struct {
		Ride struct {
			ID string `json:"id"`
		} `json:"ride"`
	}
	res := r.expect(ctx, http.MethodPost, "/api/bookings", r.token(r.customer, ""), booking(r.customer), &out, http.StatusCreated)
	if res.Status == "PASS" {
		r.rideID = out.Ride.ID
		res.Note += " ride=" + r.rideID
	}
	return res
}

func registerDrivers(ctx context.Context, r *Runner) Result {
	r.drivers = r.drivers[:0]
	r.driverUsers = r.driverUsers[:0]
	var total time.Duration
	for i := 0; i < 2; i++ {
		uid := "bench-driver-" + uuid.NewString()
		var out struct {
			ID string `json:"id"`
		}
		res := r.expect(ctx, http.MethodPost, "/api/drivers", r.token(uid, "driver"), map[string]any{
			"vehicleType": "economy_4", "city": "Paris", "isOnline": true,
		}, &out, http.StatusCreated)
		if res.Status != "PASS" {
			return res
		}
		total += res.Latency
		r.drivers = append(r.drivers, out.ID)
		r.driverUsers = append(r.driverUsers, uid)
	}
	return Result{Status: "PASS", Latency: total, Note: strings.Join(r.drivers, ",")}
}

func driverHistory(ctx context.Context, r *Runner) Result {
	var rides []struct {
		ID string `json:"id"`
	}
	if len(r.driverUsers) < 2 {
		return Result{Status: "SKIP", Note: "drivers not registered"}
	}
	res := r.expect(ctx, http.MethodGet, "/api/drivers/"+r.driver(1)+"/rides", r.token(r.driverUsers[1], "driver"), nil, &rides, http.StatusOK)
	if res.Status != "PASS" {
		return res
	}
	for _, ride := range rides {
		if ride.ID == r.rideID {
			return res
		}
	}
	return Result{Status: "FAIL", Latency: res.Latency, Note: "ride missing from driver history"}
}

// concurrentAssign books a fresh ride and races assignments; exactly one may win.
func concurrentAssign(ctx context.Context, r *Runner) Result {
	if len(r.drivers) < 2 {
		return Result{Status: "SKIP", Note: "drivers not registered"}
	}
	var out struct {
		Ride struct {
			ID string `json:"id"`
		} `json:"ride"`
	}
	if res := r.expect(ctx, http.MethodPost, "/api/bookings", r.token(r.customer, ""), booking(r.customer), &out, http.StatusCreated); res.Status != "PASS" {
		return res
	}

	var ok, conflict atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, _, err := r.do(ctx, http.MethodPost, "/api/admin/rides/"+out.Ride.ID+"/assign", r.admin(),
				map[string]any{"driverId": r.drivers[i%2]}, nil)
			if err != nil {
				return
			}
			switch status {
			case http.StatusOK:
				ok.Add(1)
			case http.StatusConflict:
				conflict.Add(1)
			}
		}(i)
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d", ok.Load(), conflict.Load())
	if ok.Load() != 1 {
		return Result{Status: "FAIL", Note: note}
	}
	return Result{Status: "PASS", Note: note}
}

func sseReceivesBooking(ctx context.Context, r *Runner) Result {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/api/events?topics=rides", nil)
	// The shared client times out whole requests, which would cut the stream.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	defer resp.Body.Close()

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	for line := range lines {
		switch {
		case line == "event: hello":
			if res := r.expect(ctx, http.MethodPost, "/api/bookings", r.token(r.customer, ""), booking(r.customer), nil, http.StatusCreated); res.Status != "PASS" {
				return res
			}
		case strings.HasPrefix(line, "data: ") && strings.Contains(line, `"event":"created"`):
			return Result{Status: "PASS", Latency: time.Since(start)}
		}
	}
	return Result{Status: "FAIL", Note: "stream ended before rides/created"}
}

func perfLoad(ctx context.Context, r *Runner, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.do(ctx, http.MethodPost, path, "", payload, nil)
				if err != nil || status >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func (r *Runner) token(uid, role string) string {
	key := uid + "|" + role
	if t, ok := r.tokens[key]; ok {
		return t
	}
	t, err := infra.SignToken(r.cfg.JWTSecret, uid, role)
	if err != nil {
		return ""
	}
	r.tokens[key] = t
	return t
}

func (r *Runner) admin() string {
	return r.token("bench-admin", "admin")
}

func (r *Runner) driver(i int) string {
	if i < len(r.drivers) {
		return r.drivers[i]
	}
	return "unregistered"
}

func (r *Runner) do(ctx context.Context, method, path, token string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, fmt.Errorf("decode: %w", err)
		}
		return resp.StatusCode, latency, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

func (r *Runner) expect(ctx context.Context, method, path, token string, body, out any, want int) Result {
	status, latency, err := r.do(ctx, method, path, token, body, out)
	if err != nil {
		return Result{Status: "FAIL", Latency: latency, Note: err.Error()}
	}
	note := fmt.Sprintf("status=%d", status)
	if status != want {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("%s want=%d", note, want)}
	}
	return Result{Status: "PASS", Latency: latency, Note: note}
}

func parisTrip(vehicle string) map[string]any {
	return map[string]any{
		"vehicleType": vehicle,
		"pickupLat":   48.8566,
		"pickupLng":   2.3522,
		"dropoffLat":  48.8606,
		"dropoffLng":  2.3376,
	}
}

func booking(customer string) map[string]any {
	b := parisTrip("economy_4")
	b["customerId"] = customer
	b["pickupLocation"] = "Hotel de Ville, Paris"
	b["dropoffLocation"] = "Musee du Louvre, Paris"
	b["extras"] = []string{"Child Seat"}
	return b
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
