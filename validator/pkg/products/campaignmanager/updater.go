package campaignmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/adlabs/taxonomy-wizard/utils/pkg/retry"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
)

// Update entry statuses.
const (
	StatusPending        = "PENDING"
	StatusInProgress     = "IN_PROGRESS"
	StatusSucceeded      = "SUCCEEDED"
	StatusFailedRetrying = "FAILED_RETRYING"
	StatusFailedTerminal = "FAILED_TERMINAL"
)

const (
	// The platform rejects batches above this size regardless of configuration.
	maxBatchCeiling = 150

	defaultMaxPasses = 3
)

type UpdaterConfig struct {
	Logger *slog.Logger
	Client *Client
	Clock  clockwork.Clock

	EntityType string

	// MaxBatchSize is clamped to the platform ceiling of 150.
	MaxBatchSize      int
	RequestsPerMinute int
	MaxPasses         int
}

func (cfg *UpdaterConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("client is required")
	}
	if cfg.EntityType == "" {
		return errors.New("entity type is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxBatchSize <= 0 || cfg.MaxBatchSize > maxBatchCeiling {
		cfg.MaxBatchSize = maxBatchCeiling
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = defaultMaxPasses
	}
	return nil
}

// Updater pushes corrected names back to Campaign Manager in rate-limited
// batches. Entries move PENDING → IN_PROGRESS → SUCCEEDED or a failed state;
// transient failures are re-queued until the pass budget runs out.
type Updater struct {
	log   *slog.Logger
	cfg   UpdaterConfig
	clock clockwork.Clock
}

func NewUpdater(cfg UpdaterConfig) (*Updater, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Updater{
		log:   cfg.Logger,
		cfg:   cfg,
		clock: cfg.Clock,
	}, nil
}

type updateEntry struct {
	update  driver.NameUpdate
	status  string
	message string
}

type completion struct {
	entityID int64
	err      error
}

// UpdateNames applies the given renames and returns a status message per
// entity ID. The pending set is mutated only on the control loop between
// batch cycles; batch goroutines report through the completions channel and
// never touch shared state.
func (u *Updater) UpdateNames(ctx context.Context, updates []driver.NameUpdate) (map[int64]string, error) {
	pending := make(map[int64]*updateEntry, len(updates))
	results := make(map[int64]string, len(updates))
	for _, update := range updates {
		pending[update.EntityID] = &updateEntry{update: update, status: StatusPending}
	}

	var nextBatchAt time.Time

	for pass := 1; pass <= u.cfg.MaxPasses && len(pending) > 0; pass++ {
		keys := pendingKeys(pending)
		u.log.Info("updater: pass starting", "pass", pass, "pending", len(keys))

		for start := 0; start < len(keys); start += u.cfg.MaxBatchSize {
			end := min(start+u.cfg.MaxBatchSize, len(keys))
			batch := keys[start:end]

			// Sleep-then-send: the wait computed from the previous batch
			// elapses before anything is issued, so the quota holds even
			// when retries add calls.
			if wait := nextBatchAt.Sub(u.clock.Now()); wait > 0 {
				u.log.Debug("updater: honoring rate window", "wait", wait)
				if err := sleepCtx(ctx, u.clock, wait); err != nil {
					return nil, err
				}
			}

			completions := make(chan completion, len(batch))
			g, gctx := errgroup.WithContext(ctx)
			for _, id := range batch {
				entry := pending[id]
				entry.status = StatusInProgress
				g.Go(func() error {
					err := u.cfg.Client.UpdateName(gctx, u.cfg.EntityType, entry.update)
					completions <- completion{entityID: entry.update.EntityID, err: err}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			close(completions)

			// Sync point: the batch has settled, apply every completion.
			for c := range completions {
				entry := pending[c.entityID]
				switch {
				case c.err == nil:
					entry.status = StatusSucceeded
					results[c.entityID] = "Updated."
					delete(pending, c.entityID)
				case retry.IsNotFound(c.err):
					entry.status = StatusFailedTerminal
					results[c.entityID] = fmt.Sprintf("Update failed: entity %d not found.", c.entityID)
					delete(pending, c.entityID)
				default:
					entry.status = StatusFailedRetrying
					entry.message = c.err.Error()
					u.log.Warn("updater: update failed, will retry",
						"entity_id", c.entityID, "pass", pass, "error", c.err)
				}
			}

			nextBatchAt = u.clock.Now().Add(batchDelay(len(batch), u.cfg.RequestsPerMinute))
		}
	}

	for id, entry := range pending {
		entry.status = StatusFailedTerminal
		results[id] = fmt.Sprintf("Update failed after %d tries: %s", u.cfg.MaxPasses, entry.message)
	}

	u.log.Info("updater: finished", "total", len(updates), "failed", len(pending))
	return results, nil
}

// batchDelay is the rate window one batch of calls consumes.
func batchDelay(batchSize, requestsPerMinute int) time.Duration {
	return time.Duration(batchSize) * time.Minute / time.Duration(requestsPerMinute)
}

func pendingKeys(pending map[int64]*updateEntry) []int64 {
	keys := make([]int64, 0, len(pending))
	for id := range pending {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sleepCtx(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
