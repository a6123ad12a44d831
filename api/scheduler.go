/*
scheduler.go - Automated surge materialization scheduler

PURPOSE:
  Periodically walks the active surge configs and materializes a derived
  pricing layer for each one's next hour bucket, so surge pricing stays
  ahead of demand without manual triggers.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips configs whose scope has no demand snapshot yet
  - Records every attempt as a run for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to check (default: 5 minutes)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSurgeScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerMaterialize endpoint (manual materialization)
  - surge/materializer.go: Materializer
*/
package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/warp/rate-engine/engine"
	"github.com/warp/rate-engine/store/sqlite"
)

// SurgeScheduler handles automated surge layer materialization.
type SurgeScheduler struct {
	Store         *sqlite.Store
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSurgeScheduler creates a new scheduler.
func NewSurgeScheduler(store *sqlite.Store, handler *Handler) *SurgeScheduler {
	return &SurgeScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SurgeScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SurgeScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SurgeScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.checkAndMaterialize()

	for {
		select {
		case <-ss.ticker.C:
			ss.checkAndMaterialize()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SurgeScheduler) checkAndMaterialize() {
	ctx := context.Background()

	configs, err := ss.Store.ListActiveConfigs(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing surge configs: %v", err)
		return
	}
	if len(configs) == 0 {
		return
	}

	log.Printf("[Scheduler] Checking %d surge configs at %v", len(configs), time.Now().UTC().Format(time.RFC3339))

	processedCount := 0
	skippedCount := 0

	for _, cfg := range configs {
		result, err := ss.Handler.Materializer.Materialize(ctx, cfg.ID)
		if err != nil {
			if errors.Is(err, engine.ErrNoSnapshot) {
				// No demand signal yet for this scope; nothing to derive.
				skippedCount++
				continue
			}
			log.Printf("[Scheduler] Error materializing config %s: %v", cfg.ID, err)
			continue
		}

		processedCount++
		log.Printf("[Scheduler] Materialized %s: layer=%s multiplier=%.4f bucket=%s",
			cfg.ID, result.CreatedLayerID, result.Multiplier, result.TargetBucket.Format(time.RFC3339))
	}

	if processedCount > 0 || skippedCount > 0 {
		log.Printf("[Scheduler] Completed: %d materialized, %d skipped (no snapshot)", processedCount, skippedCount)
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (ss *SurgeScheduler) RunNow() {
	ss.checkAndMaterialize()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ss *SurgeScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ss.CheckInterval)
}
