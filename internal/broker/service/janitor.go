package service

import (
	"context"
	"time"

	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

// Janitor periodically returns expired in-flight deliveries to the queue and
// removes expired results from stores that do not expire keys on their own.
// Either side may be nil.
type Janitor struct {
	interval    time.Duration
	redeliverer core.Redeliverer
	purger      core.Purger
	logger      logging.Logger
}

// NewJanitor picks the optional capabilities off queue and store.
func NewJanitor(interval time.Duration, queue core.JobQueue, store core.ResultStore, logger logging.Logger) *Janitor {
	j := &Janitor{interval: interval, logger: logger}
	if r, ok := queue.(core.Redeliverer); ok {
		j.redeliverer = r
	}
	if p, ok := store.(core.Purger); ok {
		j.purger = p
	}
	return j
}

// Enabled reports whether there is anything to sweep.
func (j *Janitor) Enabled() bool {
	return j.interval > 0 && (j.redeliverer != nil || j.purger != nil)
}

func (j *Janitor) Start(ctx context.Context) {
	if !j.Enabled() {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx, time.Now())
		}
	}
}

func (j *Janitor) Sweep(ctx context.Context, now time.Time) {
	if j.redeliverer != nil {
		n, err := j.redeliverer.RequeueExpired(ctx, now)
		if err != nil {
			j.logger.Error("Failed to requeue expired deliveries", "error", err)
		} else if n > 0 {
			j.logger.Warn("Requeued expired deliveries", "count", n)
		}
	}
	if j.purger != nil {
		n, err := j.purger.PurgeExpired(ctx, now)
		if err != nil {
			j.logger.Error("Failed to purge expired results", "error", err)
		} else if n > 0 {
			j.logger.Debug("Purged expired results", "count", n)
		}
	}
}
