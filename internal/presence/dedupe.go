package presence

import (
	"sort"
	"time"
)

// DedupPolicy selects the identity key and collision window. The intake
// path uses a type-aware key and a wide window; archive-time cleanup uses a
// lenient name-only key to catch cross-path duplicates (NFC scan vs manual
// entry creating separate records for the same person).
type DedupPolicy struct {
	Window    time.Duration
	MatchType bool
}

// Collides reports whether two records are the same submission under the
// policy: same normalized identity and timestamps closer than the window.
func (p DedupPolicy) Collides(a, b Presence) bool {
	if identityKey(a, p.MatchType) != identityKey(b, p.MatchType) {
		return false
	}
	d := a.Date.Sub(b.Date)
	if d < 0 {
		d = -d
	}
	return d < p.Window
}

// Dedupe collapses colliding records, keeping the earliest of each cluster.
// The sweep is greedy over time-sorted input: a record survives only if it
// collides with no already-kept record. Dropped records do not shield later
// ones. Idempotent.
func Dedupe(records []Presence, policy DedupPolicy) []Presence {
	if len(records) < 2 {
		return append([]Presence(nil), records...)
	}

	sorted := append([]Presence(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	kept := make([]Presence, 0, len(sorted))
	for _, cur := range sorted {
		duplicate := false
		for i := len(kept) - 1; i >= 0; i-- {
			if policy.Collides(cur, kept[i]) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, cur)
		}
	}
	return kept
}

// FindCollision returns the earliest record colliding with candidate, or nil.
func FindCollision(records []Presence, candidate Presence, policy DedupPolicy) *Presence {
	var found *Presence
	for i := range records {
		if !policy.Collides(records[i], candidate) {
			continue
		}
		if found == nil || records[i].Date.Before(found.Date) {
			found = &records[i]
		}
	}
	return found
}
