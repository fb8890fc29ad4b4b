package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kiosk/internal/metrics"
	"kiosk/internal/store"
)

// ErrNotFound reports an unknown presence id on a mutation.
var ErrNotFound = errors.New("presence not found")

// ValidationError rejects an intake submission with missing fields.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Config tunes the lifecycle manager.
type Config struct {
	// WriteWindow is the same-identity collision window applied at intake.
	WriteWindow time.Duration
	// AttemptsCap bounds the kiosk attempt log (most recent kept).
	AttemptsCap  int
	MemberRates  MemberRates
	VisitorRates VisitorRates
}

// Service is the sole mutator of the live presence and attempt documents.
type Service struct {
	store store.Store
	cfg   Config
	log   *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewService creates the lifecycle manager.
func NewService(st store.Store, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteWindow <= 0 {
		cfg.WriteWindow = 90 * time.Second
	}
	if cfg.AttemptsCap <= 0 {
		cfg.AttemptsCap = 1000
	}
	if cfg.MemberRates == (MemberRates{}) {
		cfg.MemberRates = DefaultMemberRates()
	}
	if cfg.VisitorRates == (VisitorRates{}) {
		cfg.VisitorRates = DefaultVisitorRates()
	}
	return &Service{store: st, cfg: cfg, log: logger, now: time.Now}
}

// ReadAll loads a presence list document, substituting an empty list on a
// missing or corrupt document. Corruption is recoverable and only logged.
func ReadAll(ctx context.Context, st store.Store, logger *zap.Logger, key string) []Presence {
	var out []Presence
	if err := st.Read(ctx, key, &out); err != nil {
		if !errors.Is(err, store.ErrNotFound) && logger != nil {
			logger.Warn("document unreadable, using empty default",
				zap.String("key", key), zap.Error(err))
		}
		return []Presence{}
	}
	if out == nil {
		out = []Presence{}
	}
	return out
}

// ListToday returns today's unarchived activity: live presences followed by
// live kiosk attempt records.
func (s *Service) ListToday(ctx context.Context) []Presence {
	live := ReadAll(ctx, s.store, s.log, KeyPresences)
	attempts := ReadAll(ctx, s.store, s.log, KeyAttempts)
	return append(live, attempts...)
}

// CreateInput is the kiosk intake form.
type CreateInput struct {
	Type          string   `json:"type"`
	Nom           string   `json:"nom"`
	Prenom        string   `json:"prenom"`
	Tarif         *float64 `json:"tarif"`
	Email         string   `json:"email"`
	Telephone     string   `json:"telephone"`
	DateNaissance string   `json:"dateNaissance"`
	Adresse       string   `json:"adresse"`
	Niveau        string   `json:"niveau"`
}

// Create records a check-in. When the same identity was already recorded
// within the collision window the existing record is returned with
// duplicate=true instead of inserting again, so double-taps and double
// scans stay idempotent for the client.
func (s *Service) Create(ctx context.Context, in CreateInput) (Presence, bool, error) {
	if in.Type == "" || normalizeName(in.Nom) == "" || normalizeName(in.Prenom) == "" {
		return Presence{}, false, &ValidationError{Msg: "Champs requis: type, nom, prenom"}
	}
	if in.Type != TypeAdherent && in.Type != TypeNonAdherent {
		return Presence{}, false, &ValidationError{Msg: "Type invalide: " + in.Type}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := Presence{
		ID:            NewID(now),
		Type:          in.Type,
		Nom:           trimmed(in.Nom),
		Prenom:        trimmed(in.Prenom),
		Date:          now,
		Status:        StatusPending,
		Email:         in.Email,
		Telephone:     in.Telephone,
		DateNaissance: in.DateNaissance,
		Adresse:       in.Adresse,
		Niveau:        in.Niveau,
	}

	live := ReadAll(ctx, s.store, s.log, KeyPresences)
	policy := DedupPolicy{Window: s.cfg.WriteWindow, MatchType: true}
	if existing := FindCollision(live, p, policy); existing != nil {
		metrics.Duplicates.Inc()
		s.log.Info("duplicate submission absorbed",
			zap.String("id", existing.ID),
			zap.String("nom", p.Nom), zap.String("prenom", p.Prenom))
		return *existing, true, nil
	}

	switch {
	case in.Tarif != nil:
		p.Tarif = in.Tarif
	case in.Type == TypeNonAdherent:
		t := s.cfg.VisitorRates.Compute(ParseBirthDate(in.DateNaissance), now)
		p.Tarif = &t.Montant
		// Adherents without an explicit tarif keep free entry (nil).
	}

	live = append(live, p)
	if err := s.store.Write(ctx, KeyPresences, live); err != nil {
		return Presence{}, false, fmt.Errorf("save presence: %w", err)
	}

	metrics.Checkins.WithLabelValues(p.Type).Inc()
	s.log.Info("presence created",
		zap.String("id", p.ID), zap.String("type", p.Type),
		zap.String("nom", p.Nom), zap.String("prenom", p.Prenom))
	return p, false, nil
}

// Quote returns the entry price a visitor would pay today, from the grid
// matching the visitor type. Nothing is recorded; the kiosk shows the
// amount before the visitor confirms.
func (s *Service) Quote(typ, dateNaissance string) (Tarif, error) {
	birth := ParseBirthDate(dateNaissance)
	switch typ {
	case TypeAdherent:
		return s.cfg.MemberRates.Compute(birth, s.now()), nil
	case TypeNonAdherent:
		return s.cfg.VisitorRates.Compute(birth, s.now()), nil
	default:
		return Tarif{}, &ValidationError{Msg: "Type invalide: " + typ}
	}
}

// Validate marks a presence paid, optionally overriding the tarif and
// recording the payment method.
func (s *Service) Validate(ctx context.Context, id string, montant *float64, methodePaiement string) (Presence, error) {
	return s.transition(ctx, id, StatusPaid, montant, methodePaiement)
}

// Cancel marks a presence cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (Presence, error) {
	return s.transition(ctx, id, StatusCancelled, nil, "")
}

func (s *Service) transition(ctx context.Context, id string, to Status, montant *float64, methodePaiement string) (Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := ReadAll(ctx, s.store, s.log, KeyPresences)
	idx := -1
	for i := range live {
		if live[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Presence{}, ErrNotFound
	}

	live[idx].Status = to
	if montant != nil {
		live[idx].Tarif = montant
	}
	if methodePaiement != "" {
		live[idx].MethodePaiement = methodePaiement
	}
	if err := s.store.Write(ctx, KeyPresences, live); err != nil {
		return Presence{}, fmt.Errorf("save presence: %w", err)
	}

	// Keep the kiosk attempt log in step when the check-in came through it.
	if sid := live[idx].SessionID; sid != "" {
		attempts := ReadAll(ctx, s.store, s.log, KeyAttempts)
		for i := range attempts {
			if attempts[i].SessionID == sid {
				attempts[i].Status = to
				if err := s.store.Write(ctx, KeyAttempts, attempts); err != nil {
					s.log.Warn("attempt log not updated", zap.Error(err))
				}
				break
			}
		}
	}

	s.log.Info("presence updated", zap.String("id", id), zap.String("status", string(to)))
	return live[idx], nil
}

// Delete removes a record from both the presence and attempt documents. A
// missing id is a success so client retries stay safe.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{KeyPresences, KeyAttempts} {
		records := ReadAll(ctx, s.store, s.log, key)
		kept := records[:0]
		for _, r := range records {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(records) {
			continue
		}
		if err := s.store.Write(ctx, key, kept); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
		s.log.Info("presence deleted", zap.String("id", id), zap.String("key", key))
	}
	return nil
}

// AttemptInput describes one kiosk access attempt (NFC scan or member
// check), recorded alongside presences for the day.
type AttemptInput struct {
	Type    string `json:"type"`
	Nom     string `json:"nom"`
	Prenom  string `json:"prenom"`
	Status  string `json:"status"`
	Details string `json:"details"`
}

// LogAttempt appends to the attempt document, keeping only the most recent
// records up to the configured cap.
func (s *Service) LogAttempt(ctx context.Context, in AttemptInput) (Presence, error) {
	if normalizeName(in.Nom) == "" || normalizeName(in.Prenom) == "" {
		return Presence{}, &ValidationError{Msg: "Champs requis: nom, prenom"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	status := Status(in.Status)
	if status == "" {
		status = StatusPending
	}
	attempt := Presence{
		ID:        NewID(now),
		Type:      in.Type,
		Nom:       trimmed(in.Nom),
		Prenom:    trimmed(in.Prenom),
		Date:      now,
		Status:    status,
		Details:   in.Details,
		SessionID: uuid.NewString(),
	}

	attempts := ReadAll(ctx, s.store, s.log, KeyAttempts)
	attempts = append(attempts, attempt)
	if n := len(attempts); n > s.cfg.AttemptsCap {
		attempts = attempts[n-s.cfg.AttemptsCap:]
	}
	if err := s.store.Write(ctx, KeyAttempts, attempts); err != nil {
		return Presence{}, fmt.Errorf("save attempt: %w", err)
	}

	s.log.Info("access attempt logged",
		zap.String("type", in.Type),
		zap.String("nom", attempt.Nom), zap.String("prenom", attempt.Prenom),
		zap.String("status", string(status)))
	return attempt, nil
}

// ListAttempts returns the live kiosk attempt log.
func (s *Service) ListAttempts(ctx context.Context) []Presence {
	return ReadAll(ctx, s.store, s.log, KeyAttempts)
}

// Stats summarizes today's live presences for the admin dashboard.
type Stats struct {
	Date         string     `json:"date"`
	Total        int        `json:"total"`
	Adherents    int        `json:"adherents"`
	NonAdherents int        `json:"nonAdherents"`
	Revenue      float64    `json:"revenue"`
	Presences    []Presence `json:"presences"`
}

// StatsToday computes totals and paid revenue for today's presences.
func (s *Service) StatsToday(ctx context.Context) Stats {
	now := s.now()
	today := now.Format("2006-01-02")
	stats := Stats{Date: today, Presences: []Presence{}}

	for _, p := range ReadAll(ctx, s.store, s.log, KeyPresences) {
		if p.Date.Format("2006-01-02") != today {
			continue
		}
		stats.Total++
		switch p.Type {
		case TypeAdherent:
			stats.Adherents++
		case TypeNonAdherent:
			stats.NonAdherents++
		}
		if p.Status == StatusPaid && p.Tarif != nil {
			stats.Revenue += *p.Tarif
		}
		stats.Presences = append(stats.Presences, p)
	}
	return stats
}

func trimmed(s string) string { return strings.TrimSpace(s) }
