/*
scheduler.go - Automated daily update scheduler

PURPOSE:
  Periodically runs the daily interest-accrual and aging sweep, then expires
  authorization requests that have sat pending past their time-to-live.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - A debt already swept for the reference day accrues nothing more, so an
    extra run is harmless (the accrual is idempotent per day)
  - An in-process guard skips a tick while a run is still in flight
  - Records every run for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - RequestTTL:    Pending-request lifetime before expiry (default: 72 hours)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDailyUpdateScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerDailyUpdate endpoint (manual run)
  - collections/dailyupdate.go: The sweep itself
  - collections/authorization.go: ExpireStale
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/store/sqlite"
)

// DailyUpdateScheduler drives the daily sweep and the pending-request expiry.
type DailyUpdateScheduler struct {
	Store         *sqlite.Store
	Handler       *Handler
	CheckInterval time.Duration
	RequestTTL    time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan bool
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewDailyUpdateScheduler creates a new scheduler.
func NewDailyUpdateScheduler(store *sqlite.Store, handler *Handler) *DailyUpdateScheduler {
	return &DailyUpdateScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		RequestTTL:    72 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ds *DailyUpdateScheduler) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ds.ticker = time.NewTicker(ds.CheckInterval)
	ds.wg.Add(1)

	go ds.run()

	log.Printf("[Scheduler] Started with check interval: %v", ds.CheckInterval)
}

// Stop stops the scheduler.
func (ds *DailyUpdateScheduler) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.ticker != nil {
		ds.ticker.Stop()
		close(ds.stop)
		ds.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ds *DailyUpdateScheduler) run() {
	defer ds.wg.Done()

	// Run immediately on start
	ds.tick()

	for {
		select {
		case <-ds.ticker.C:
			ds.tick()
		case <-ds.stop:
			return
		}
	}
}

// tick runs one sweep unless the previous one is still in flight.
func (ds *DailyUpdateScheduler) tick() {
	ds.mu.Lock()
	if ds.running {
		ds.mu.Unlock()
		log.Println("[Scheduler] Previous run still in flight, skipping tick")
		return
	}
	ds.running = true
	ds.mu.Unlock()

	defer func() {
		ds.mu.Lock()
		ds.running = false
		ds.mu.Unlock()
	}()

	ctx := context.Background()
	now := time.Now()

	log.Printf("[Scheduler] Running daily update at %v", now.Format(time.RFC3339))

	summary, err := ds.Handler.Daily.Run(ctx, now)
	recordDailyRun(ctx, ds.Store, summary, err)
	if err != nil {
		log.Printf("[Scheduler] Daily update failed after %d debt(s): %v",
			summary.DebtsProcessed, err)
		return
	}

	log.Printf("[Scheduler] Completed: %d processed, %d with interest, %d state changes",
		summary.DebtsProcessed, summary.DebtsWithInterest, summary.DebtsWithStateChanged)

	ds.expireStaleRequests(ctx, now)
}

// expireStaleRequests sweeps pending authorizations older than the TTL.
func (ds *DailyUpdateScheduler) expireStaleRequests(ctx context.Context, now time.Time) {
	if ds.RequestTTL <= 0 {
		return
	}

	cutoff := now.Add(-ds.RequestTTL)
	expired, err := ds.Handler.Auth.ExpireStale(ctx, cutoff)
	if err != nil {
		log.Printf("[Scheduler] Error expiring stale requests: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[Scheduler] Expired %d stale authorization request(s)", expired)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ds *DailyUpdateScheduler) RunNow() {
	ds.tick()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ds *DailyUpdateScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ds.CheckInterval)
}

// recordDailyRun writes the audit row for one run, shared by the scheduler
// and the manual admin endpoint.
func recordDailyRun(ctx context.Context, store *sqlite.Store, summary *collections.DailyUpdateSummary, runErr error) {
	started := time.Now()
	completed := started

	run := sqlite.DailyRunRecord{
		ID:            fmt.Sprintf("run-%d", started.UnixNano()),
		ReferenceDate: summary.ReferenceDate,
		Status:        "completed",
		StartedAt:     started,
		CompletedAt:   &completed,

		DebtsProcessed:        summary.DebtsProcessed,
		DebtsWithInterest:     summary.DebtsWithInterest,
		DebtsWithStateChanged: summary.DebtsWithStateChanged,
		MoratoryInterestTotal: summary.MoratoryInterestTotal,
		PunitiveInterestTotal: summary.PunitiveInterestTotal,
	}
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
	}

	if err := store.SaveDailyRun(ctx, run); err != nil {
		log.Printf("[Scheduler] Error saving run record: %v", err)
	}
}
