// Package presence holds the check-in domain: the presence record, the
// deduplication engine, the tariff grids and the lifecycle manager.
package presence

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document keys in the store.
const (
	KeyPresences = "presences"
	KeyAttempts  = "access-attempts"
)

// Visitor types.
const (
	TypeAdherent    = "adherent"
	TypeNonAdherent = "non-adherent"
)

// Status is the presence payment state. The accent-carrying values are the
// historical wire contract and appear verbatim in stored history.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "Payé"
	StatusCancelled Status = "Annulé"
)

// Presence is one check-in event, member or walk-in.
type Presence struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Nom             string    `json:"nom"`
	Prenom          string    `json:"prenom"`
	Date            time.Time `json:"date"`
	Tarif           *float64  `json:"tarif,omitempty"`
	Status          Status    `json:"status"`
	MethodePaiement string    `json:"methodePaiement,omitempty"`

	// Walk-in intake fields, passed through unvalidated from the form.
	Email         string `json:"email,omitempty"`
	Telephone     string `json:"telephone,omitempty"`
	DateNaissance string `json:"dateNaissance,omitempty"`
	Adresse       string `json:"adresse,omitempty"`
	Niveau        string `json:"niveau,omitempty"`

	// Attempt-log fields, set on kiosk access-attempt records only.
	Details   string `json:"details,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// NewID returns a timestamp-prefixed opaque identifier.
func NewID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}

// normalizeName is the identity normalization used for collision checks.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// identityKey builds the dedup key; withType folds the visitor type in for
// the strict write-time policy.
func identityKey(p Presence, withType bool) string {
	key := normalizeName(p.Nom) + "|" + normalizeName(p.Prenom)
	if withType {
		key += "|" + p.Type
	}
	return key
}
