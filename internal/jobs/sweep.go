package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/geotrips/internal/keys"
)

// PrefixSweeper purges geohash_prefixes:* zset members older than Retention,
// keeping the prefix index from growing without bound as old geohashes
// age out of every query window.
type PrefixSweeper interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)
}

// SweepJobConfig configures the prefix sweep job.
type SweepJobConfig struct {
	// Interval is the duration between sweep cycles.
	Interval time.Duration
	// Retention is how long a geohash may remain a member of a prefix
	// index before it is eligible for removal.
	Retention time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics reports job execution counts and durations. May be nil.
	Metrics Reporter
	// Timeout bounds a single sweep cycle.
	Timeout time.Duration
}

// DefaultSweepInterval is used when SweepJobConfig.Interval is zero.
const DefaultSweepInterval = time.Hour

// DefaultSweepTimeout is used when SweepJobConfig.Timeout is zero.
const DefaultSweepTimeout = 5 * time.Minute

// PrefixSweepJob periodically removes stale members from every
// geohash_prefixes:* zset.
type PrefixSweepJob struct {
	config SweepJobConfig
	store  PrefixSweeper

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPrefixSweepJob creates a new prefix sweep job.
func NewPrefixSweepJob(config SweepJobConfig, s PrefixSweeper) *PrefixSweepJob {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSweepTimeout
	}

	return &PrefixSweepJob{config: config, store: s}
}

// Start begins the periodic sweep job. Returns immediately; the job runs
// in a background goroutine.
func (j *PrefixSweepJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the sweep job to stop and waits for it to finish.
func (j *PrefixSweepJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *PrefixSweepJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *PrefixSweepJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("prefix sweep job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("prefix sweep job stopping due to stop signal")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// SweepNow immediately runs one sweep cycle without waiting for the
// ticker. Useful for tests and for forcing an out-of-band purge.
func (j *PrefixSweepJob) SweepNow() {
	j.sweep(context.Background())
}

// sweep enumerates every prefix-index key and removes members whose score
// (the ingest-time Unix timestamp) falls before the retention cutoff.
func (j *PrefixSweepJob) sweep(parentCtx context.Context) {
	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	startTime := time.Now()
	cutoff := float64(startTime.Add(-j.config.Retention).Unix())

	prefixKeys, err := j.store.Keys(ctx, keys.PrefixIndex(""))
	if err != nil {
		j.config.Logger.Error("prefix sweep failed to list keys", "error", err)
		if j.config.Metrics != nil {
			j.config.Metrics.IncJobErrors(JobTypePrefixSweep, "list_keys")
			j.config.Metrics.IncJobsTotal(JobTypePrefixSweep, StatusFailure)
			j.config.Metrics.ObserveJobDuration(JobTypePrefixSweep, time.Since(startTime).Seconds())
		}
		return
	}

	var removed int64
	var failed int
sweepLoop:
	for _, key := range prefixKeys {
		select {
		case <-ctx.Done():
			j.config.Logger.Error("prefix sweep timeout exceeded", "keys_total", len(prefixKeys))
			failed++
			break sweepLoop
		default:
		}

		n, err := j.store.ZRemRangeByScore(ctx, key, 0, cutoff)
		if err != nil {
			j.config.Logger.Error("prefix sweep failed to trim key", "key", key, "error", err)
			failed++
			continue
		}
		removed += n
	}

	duration := time.Since(startTime).Seconds()
	status := StatusSuccess
	if failed > 0 {
		status = StatusFailure
	}

	if j.config.Metrics != nil {
		j.config.Metrics.IncJobsTotal(JobTypePrefixSweep, status)
		j.config.Metrics.ObserveJobDuration(JobTypePrefixSweep, duration)
		if failed > 0 {
			j.config.Metrics.IncJobErrors(JobTypePrefixSweep, "trim_error")
		}
	}

	j.config.Logger.Info("prefix sweep completed",
		"duration_seconds", duration,
		"keys_swept", len(prefixKeys),
		"members_removed", removed,
		"keys_failed", failed)
}
