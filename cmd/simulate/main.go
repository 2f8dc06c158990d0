package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/auth"
	"github.com/hackgods/telemed-scheduling/internal/config"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	AcceptRatio  float64
	CancelRatio  float64
	ReadRatio    float64
	Patients     int
	RaceSlots    int // slots contested by every worker before the timed run
	JWTSecret    string
}

type bookable struct {
	SlotID      uuid.UUID
	PhysicianID uuid.UUID
}

type booked struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	PhysicianID uuid.UUID
}

type DataPool struct {
	Patients     []uuid.UUID
	reasons      map[uuid.UUID]string
	Slots        []bookable
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]

	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Booking       OperationMetrics
	Accept        OperationMetrics
	Cancel        OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	ListSlots     OperationMetrics
}

type raceResult struct {
	slot    uuid.UUID
	winners int
	losers  int
	errors  int
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	races   []raceResult
	log     *logger.Logger

	tokenMu sync.Mutex
	tokens  map[uuid.UUID]string
}

var visitReasons = []string{
	"follow-up",
	"skin rash",
	"prescription renewal",
	"lab results review",
	"persistent cough",
	"back pain",
	"annual check-up",
}

func main() {
	log := logger.New(getEnv("LOG_LEVEL", "info"))
	log.Info("simulator starting")

	cfg := loadConfig(log)
	if err := validateConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.WithField("duration", cfg.Duration.String()).
		WithField("workers", cfg.Workers).
		WithField("race_slots", cfg.RaceSlots).
		Info("simulation configured")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		tokens: make(map[uuid.UUID]string),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := sim.loadDataPool(ctx)
	if err != nil {
		log.WithError(err).Fatal("load data pool")
	}
	sim.pool = pool
	log.WithField("patients", len(pool.Patients)).WithField("slots", len(pool.Slots)).Info("data pool loaded")

	sim.Race()
	sim.Run()
	sim.PrintReport()
}

func loadConfig(log *logger.Logger) SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		AcceptRatio:  getFloat("SIM_ACCEPT_RATIO", 0.15),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		Patients:     getInt("SIM_PATIENTS", 500),
		RaceSlots:    getInt("SIM_RACE_SLOTS", 5),
		JWTSecret:    baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.AcceptRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AcceptRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to sign caller tokens")
	}
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 {
		return errors.New("SIM_PATIENTS must be > 0")
	}
	return nil
}

// token signs, once per identity, a bearer token for the caller.
func (s *Simulator) token(c auth.Caller) string {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	if tok, ok := s.tokens[c.ID]; ok {
		return tok
	}
	tok, err := auth.SignToken(c, s.config.JWTSecret, s.config.Duration+time.Hour)
	if err != nil {
		s.log.WithError(err).Fatal("sign token")
	}
	s.tokens[c.ID] = tok
	return tok
}

func (s *Simulator) call(ctx context.Context, caller auth.Caller, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token(caller))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// loadDataPool discovers approved physicians and their open slots through
// the API, the same way a patient client would.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	dp := &DataPool{reasons: make(map[uuid.UUID]string, s.config.Patients)}
	for i := 0; i < s.config.Patients; i++ {
		id := uuid.New()
		dp.Patients = append(dp.Patients, id)
		dp.reasons[id] = visitReasons[gofakeit.Number(0, len(visitReasons)-1)]
	}
	browser := auth.Caller{ID: dp.Patients[0], Role: auth.RolePatient}

	var physicians []struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.call(ctx, browser, http.MethodGet, "/physicians?state=approved", nil, &physicians)
	if err != nil {
		return nil, fmt.Errorf("list physicians: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list physicians: status %d", status)
	}

	for _, p := range physicians {
		var slots []struct {
			ID uuid.UUID `json:"id"`
		}
		status, err := s.call(ctx, browser, http.MethodGet, "/physicians/"+p.ID.String()+"/slots?available=true", nil, &slots)
		if err != nil || status != http.StatusOK {
			s.log.WithField("physician_id", p.ID).WithField("status", status).Warn("could not load slots")
			continue
		}
		for _, sl := range slots {
			dp.Slots = append(dp.Slots, bookable{SlotID: sl.ID, PhysicianID: p.ID})
		}
	}

	if len(dp.Slots) == 0 {
		return nil, errors.New("no available slots, run cmd/seed first")
	}
	return dp, nil
}

func (s *Simulator) book(ctx context.Context, patient uuid.UUID, b bookable) (int, error) {
	var appt struct {
		ID uuid.UUID `json:"id"`
	}
	caller := auth.Caller{ID: patient, Role: auth.RolePatient}
	status, err := s.call(ctx, caller, http.MethodPost, "/appointments", map[string]string{
		"patient_id":   patient.String(),
		"physician_id": b.PhysicianID.String(),
		"slot_id":      b.SlotID.String(),
		"reason":       s.pool.reasons[patient],
	}, &appt)
	if err == nil && status == http.StatusCreated && appt.ID != uuid.Nil {
		s.pool.AddAppointment(booked{ID: appt.ID, PatientID: patient, PhysicianID: b.PhysicianID})
	}
	return status, err
}

// Race fires one booking per worker at the same slot, released together,
// and records how many won. Anything but exactly one winner is a bug.
func (s *Simulator) Race() {
	n := min(s.config.RaceSlots, len(s.pool.Slots))
	if n == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < n; i++ {
		target := s.pool.Slots[i]
		res := raceResult{slot: target.SlotID}
		var mu sync.Mutex
		var wg sync.WaitGroup
		start := make(chan struct{})

		for w := 0; w < s.config.Workers; w++ {
			// fresh patients so no racer trips the double booking check
			patient := uuid.New()
			s.token(auth.Caller{ID: patient, Role: auth.RolePatient})

			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				status, err := s.book(ctx, patient, target)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil && status == http.StatusCreated:
					res.winners++
				case err == nil && status == http.StatusConflict:
					res.losers++
				default:
					res.errors++
				}
			}()
		}
		close(start)
		wg.Wait()

		entry := s.log.WithField("slot_id", target.SlotID).
			WithField("winners", res.winners).
			WithField("losers", res.losers).
			WithField("errors", res.errors)
		if res.winners != 1 {
			entry.Error("slot race did not produce exactly one winner")
		} else {
			entry.Info("slot race settled")
		}
		s.races = append(s.races, res)
	}

	// contested slots are gone, keep the rest for the timed run
	s.pool.Slots = s.pool.Slots[n:]
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.WithField("duration", s.config.Duration.String()).
		WithField("workers", s.config.Workers).
		Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.AcceptRatio:
				s.doAccept(ctx, rng)
			case r < s.config.BookingRatio+s.config.AcceptRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doListSlots(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Slots) == 0 {
		return
	}
	target := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, err := s.book(ctx, patient, target)
	s.metrics.Booking.Record(time.Since(start), err == nil && status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doAccept(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	physician := auth.Caller{ID: appt.PhysicianID, Role: auth.RolePhysician}

	start := time.Now()
	status, err := s.call(ctx, physician, http.MethodPost, "/appointments/"+appt.ID.String()+"/accept", nil, nil)
	s.metrics.Accept.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	patient := auth.Caller{ID: appt.PatientID, Role: auth.RolePatient}

	start := time.Now()
	status, err := s.call(ctx, patient, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel",
		map[string]string{"reason": "schedule conflict"}, nil)
	s.metrics.Cancel.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	patient := auth.Caller{ID: appt.PatientID, Role: auth.RolePatient}

	start := time.Now()
	status, err := s.call(ctx, patient, http.MethodGet, "/appointments/"+appt.ID.String(), nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	caller := auth.Caller{ID: patient, Role: auth.RolePatient}

	start := time.Now()
	status, err := s.call(ctx, caller, http.MethodGet, "/appointments?patient_id="+patient.String(), nil, nil)
	s.metrics.ListByPatient.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Slots) == 0 {
		return
	}
	target := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	caller := auth.Caller{ID: s.pool.Patients[rng.Intn(len(s.pool.Patients))], Role: auth.RolePatient}

	start := time.Now()
	status, err := s.call(ctx, caller, http.MethodGet, "/physicians/"+target.PhysicianID.String()+"/slots?available=true", nil, nil)
	s.metrics.ListSlots.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	if len(s.races) > 0 {
		violations := 0
		for _, r := range s.races {
			if r.winners != 1 {
				violations++
			}
			fmt.Printf("Race %s: winners=%d conflicts=%d errors=%d\n", r.slot, r.winners, r.losers, r.errors)
		}
		fmt.Printf("Races with a winner count other than one: %d/%d\n\n", violations, len(s.races))
	}

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("List available slots", &s.metrics.ListSlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
