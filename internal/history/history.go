// Package history owns the immutable per-date archive: the archival pass
// that sweeps the day's live documents into it, read-only queries over it,
// and the season/spreadsheet reporting built on top.
package history

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"kiosk/internal/presence"
	"kiosk/internal/store"
)

// KeyHistory is the per-date archive document.
const KeyHistory = "presence-history"

// Entry is one archived day, keyed uniquely by its date.
type Entry struct {
	Date      string              `json:"date"`
	Presences []presence.Presence `json:"presences"`
}

// Season is a club year running September 1 to August 31.
type Season struct {
	StartYear int `json:"startYear"`
	EndYear   int `json:"endYear"`
}

// Service answers read-only queries over archived history.
type Service struct {
	store  store.Store
	window time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates the accessor. window is the lenient re-dedup window
// applied when serving a day's presences.
func NewService(st store.Store, window time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Service{store: st, window: window, log: logger, now: time.Now}
}

func readEntries(ctx context.Context, st store.Store, logger *zap.Logger, key string) []Entry {
	var entries []Entry
	if err := st.Read(ctx, key, &entries); err != nil {
		if !errors.Is(err, store.ErrNotFound) && logger != nil {
			logger.Warn("history unreadable, using empty default", zap.Error(err))
		}
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

// ListDates returns the dates of all non-empty entries, most recent first.
func (s *Service) ListDates(ctx context.Context) []string {
	var dates []string
	for _, e := range readEntries(ctx, s.store, s.log, KeyHistory) {
		if len(e.Presences) > 0 {
			dates = append(dates, e.Date)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if dates == nil {
		dates = []string{}
	}
	return dates
}

// GetDate returns the deduplicated presences archived under a date. An
// unknown date yields an empty list, never an error.
func (s *Service) GetDate(ctx context.Context, date string) []presence.Presence {
	for _, e := range readEntries(ctx, s.store, s.log, KeyHistory) {
		if e.Date == date {
			return presence.Dedupe(e.Presences, presence.DedupPolicy{Window: s.window})
		}
	}
	return []presence.Presence{}
}

// ListSeasons derives seasons from the years present in the archive: every
// pair of consecutive years both present forms a season, and the season
// containing today is always included. Sorted by start year, descending.
func (s *Service) ListSeasons(ctx context.Context) []Season {
	years := make(map[int]bool)
	for _, e := range readEntries(ctx, s.store, s.log, KeyHistory) {
		if len(e.Presences) == 0 {
			continue
		}
		if t, err := time.Parse("2006-01-02", e.Date); err == nil {
			years[t.Year()] = true
		}
	}

	starts := make(map[int]bool)
	for y := range years {
		if years[y+1] {
			starts[y] = true
		}
	}
	starts[currentSeasonStart(s.now())] = true

	seasons := make([]Season, 0, len(starts))
	for y := range starts {
		seasons = append(seasons, Season{StartYear: y, EndYear: y + 1})
	}
	sort.Slice(seasons, func(i, j int) bool {
		return seasons[i].StartYear > seasons[j].StartYear
	})
	return seasons
}

// currentSeasonStart applies the September 1 boundary: January through
// August belong to the season started the previous calendar year.
func currentSeasonStart(now time.Time) int {
	if now.Month() < time.September {
		return now.Year() - 1
	}
	return now.Year()
}
