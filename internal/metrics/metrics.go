// Package metrics exposes the kiosk's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Checkins counts created presences by visitor type.
	Checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_checkins_total",
		Help: "Presences created, by visitor type.",
	}, []string{"type"})

	// Duplicates counts intake submissions absorbed by the collision check.
	Duplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_duplicate_submissions_total",
		Help: "Intake submissions matched to an existing live presence.",
	})

	// ArchiveRuns counts archive passes, by outcome.
	ArchiveRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_archive_runs_total",
		Help: "Archive passes, by outcome (archived, empty).",
	}, []string{"outcome"})

	// ArchivedPresences counts presences moved into history.
	ArchivedPresences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_archived_presences_total",
		Help: "Presences committed to per-date history.",
	})
)
