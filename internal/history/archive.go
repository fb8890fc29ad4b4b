package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"kiosk/internal/metrics"
	"kiosk/internal/presence"
	"kiosk/internal/store"
)

// ErrNothingToArchive is the soft failure when the day has no activity.
var ErrNothingToArchive = errors.New("no data to archive")

// Archiver sweeps the day's live presences and kiosk attempts into the
// per-date history document and resets the live documents. It is the sole
// mutator of history; triggering (cron, admin button) is the caller's job.
type Archiver struct {
	store  store.Store
	window time.Duration
	log    *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewArchiver creates an archiver using the lenient archive-time dedup
// window (name pair only, type ignored).
func NewArchiver(st store.Store, window time.Duration, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Archiver{store: st, window: window, log: logger, now: time.Now}
}

// ArchiveToday commits today's combined activity under today's date key and
// clears the live documents. Re-running on the same day replaces the day's
// entry wholesale, so repeated calls converge instead of accumulating.
// History is written before the live documents are cleared, so no observer
// sees cleared live state without the matching history entry.
func (a *Archiver) ArchiveToday(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	live := presence.ReadAll(ctx, a.store, a.log, presence.KeyPresences)
	attempts := presence.ReadAll(ctx, a.store, a.log, presence.KeyAttempts)
	combined := presence.Dedupe(append(live, attempts...),
		presence.DedupPolicy{Window: a.window})

	if len(combined) == 0 {
		metrics.ArchiveRuns.WithLabelValues("empty").Inc()
		return 0, ErrNothingToArchive
	}

	today := a.now().Format("2006-01-02")
	entries := readEntries(ctx, a.store, a.log, KeyHistory)
	replaced := false
	for i := range entries {
		if entries[i].Date == today {
			entries[i].Presences = combined
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, Entry{Date: today, Presences: combined})
	}

	if err := a.store.Write(ctx, KeyHistory, entries); err != nil {
		return 0, fmt.Errorf("save history: %w", err)
	}
	if err := a.store.Write(ctx, presence.KeyPresences, []presence.Presence{}); err != nil {
		return 0, fmt.Errorf("clear presences: %w", err)
	}
	if err := a.store.Write(ctx, presence.KeyAttempts, []presence.Presence{}); err != nil {
		return 0, fmt.Errorf("clear attempts: %w", err)
	}

	metrics.ArchiveRuns.WithLabelValues("archived").Inc()
	metrics.ArchivedPresences.Add(float64(len(combined)))
	a.log.Info("day archived",
		zap.String("date", today),
		zap.Int("presences", len(combined)),
		zap.Bool("replaced_existing", replaced))
	return len(combined), nil
}
