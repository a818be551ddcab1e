// Package maintenance runs the background janitor that prunes expired
// entries and re-enforces the memory bound on a schedule.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"tiercache/internal/common/logging"
	"tiercache/pkg/tiercache"
)

const pruneTimeout = 10 * time.Second

// Janitor owns the cron scheduler driving periodic cache maintenance.
type Janitor struct {
	cron  *cron.Cron
	cache *tiercache.Cache
	log   logging.Logger
}

// NewJanitor schedules a prune of the given cache. The schedule uses
// robfig/cron syntax, including descriptors like "@every 1m".
func NewJanitor(cache *tiercache.Cache, schedule string, logger logging.Logger) (*Janitor, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	j := &Janitor{
		cron:  cron.New(),
		cache: cache,
		log:   logger,
	}

	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins running the schedule in its own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	removed := j.cache.Prune(ctx)
	if removed > 0 {
		j.log.Debug("janitor pruned expired entries", logging.Int("removed", removed))
	}
}
