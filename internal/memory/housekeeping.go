package memory

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Housekeeper runs periodic maintenance over a Store: eviction of
// conversation records past a retention window. It does not compact the
// bleve index. It is not part of any user-facing scheduling surface —
// purely background upkeep.
type Housekeeper struct {
	store    *Store
	cron     *cron.Cron
	retained time.Duration
}

// NewHousekeeper builds a Housekeeper that evicts conversation records
// older than retained. A zero retained disables eviction (records are
// kept forever and the sweep does nothing).
func NewHousekeeper(store *Store, retained time.Duration) *Housekeeper {
	return &Housekeeper{
		store:    store,
		cron:     cron.New(),
		retained: retained,
	}
}

// Start schedules the sweep to run every hour and starts the cron
// scheduler. Call Stop to shut it down.
func (h *Housekeeper) Start() error {
	_, err := h.cron.AddFunc("@hourly", h.sweep)
	if err != nil {
		return err
	}
	h.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (h *Housekeeper) Stop() {
	<-h.cron.Stop().Done()
}

func (h *Housekeeper) sweep() {
	if h.retained <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-h.retained)
	evicted, err := h.evictOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("memory housekeeping sweep failed: %v", err)
		return
	}
	if evicted > 0 {
		log.Printf("memory housekeeping evicted %d conversation(s) older than %s", evicted, h.retained)
	}
}

func (h *Housekeeper) evictOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const batchSize = 500
	records, err := h.store.List(ctx, batchSize, 0)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, rec := range records {
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		if err := h.store.Delete(ctx, rec.ID); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}
