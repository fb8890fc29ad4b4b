// Package visitors keeps profiles of returning walk-in visitors so repeat
// guests skip the full intake form.
package visitors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kiosk/internal/store"
)

// KeyVisitors is the saved non-member profile document.
const KeyVisitors = "returning-visitors"

// Visitor is a saved walk-in profile. Identity is (nom, prenom,
// dateNaissance), case-insensitive on the names.
type Visitor struct {
	ID            string    `json:"id"`
	Nom           string    `json:"nom"`
	Prenom        string    `json:"prenom"`
	DateNaissance string    `json:"dateNaissance"`
	Email         string    `json:"email,omitempty"`
	Telephone     string    `json:"telephone,omitempty"`
	LastNiveau    string    `json:"last_level,omitempty"`
	LastTarif     *float64  `json:"last_tarif,omitempty"`
	FirstVisit    time.Time `json:"first_visit"`
	LastVisit     time.Time `json:"last_visit"`
	VisitCount    int       `json:"visit_count"`
}

// Service reads and updates the profile document.
type Service struct {
	store store.Store
	log   *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewService creates the visitor profile service.
func NewService(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, log: logger, now: time.Now}
}

func (s *Service) readAll(ctx context.Context) []Visitor {
	var out []Visitor
	if err := s.store.Read(ctx, KeyVisitors, &out); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("visitor profiles unreadable, using empty default", zap.Error(err))
		}
		return []Visitor{}
	}
	if out == nil {
		out = []Visitor{}
	}
	return out
}

func sameIdentity(a, b Visitor) bool {
	return strings.EqualFold(strings.TrimSpace(a.Nom), strings.TrimSpace(b.Nom)) &&
		strings.EqualFold(strings.TrimSpace(a.Prenom), strings.TrimSpace(b.Prenom)) &&
		a.DateNaissance == b.DateNaissance
}

// List returns all saved profiles.
func (s *Service) List(ctx context.Context) []Visitor {
	return s.readAll(ctx)
}

// Save creates or refreshes a profile, bumping the visit counter.
func (s *Service) Save(ctx context.Context, v Visitor) (Visitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	profiles := s.readAll(ctx)
	for i := range profiles {
		if !sameIdentity(profiles[i], v) {
			continue
		}
		if v.Email != "" {
			profiles[i].Email = v.Email
		}
		if v.Telephone != "" {
			profiles[i].Telephone = v.Telephone
		}
		if v.LastNiveau != "" {
			profiles[i].LastNiveau = v.LastNiveau
		}
		if v.LastTarif != nil {
			profiles[i].LastTarif = v.LastTarif
		}
		profiles[i].LastVisit = now
		profiles[i].VisitCount++
		if err := s.store.Write(ctx, KeyVisitors, profiles); err != nil {
			return Visitor{}, fmt.Errorf("save visitors: %w", err)
		}
		return profiles[i], nil
	}

	v.ID = uuid.NewString()
	v.Nom = strings.TrimSpace(v.Nom)
	v.Prenom = strings.TrimSpace(v.Prenom)
	v.FirstVisit = now
	v.LastVisit = now
	v.VisitCount = 1
	profiles = append(profiles, v)
	if err := s.store.Write(ctx, KeyVisitors, profiles); err != nil {
		return Visitor{}, fmt.Errorf("save visitors: %w", err)
	}
	s.log.Info("visitor profile saved", zap.String("nom", v.Nom), zap.String("prenom", v.Prenom))
	return v, nil
}

// Find looks up a profile by identity and records the repeat visit. Returns
// nil when unknown.
func (s *Service) Find(ctx context.Context, nom, prenom, dateNaissance string) (*Visitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	probe := Visitor{Nom: nom, Prenom: prenom, DateNaissance: dateNaissance}
	profiles := s.readAll(ctx)
	for i := range profiles {
		if !sameIdentity(profiles[i], probe) {
			continue
		}
		profiles[i].LastVisit = s.now()
		profiles[i].VisitCount++
		if err := s.store.Write(ctx, KeyVisitors, profiles); err != nil {
			s.log.Warn("visit counter not persisted", zap.Error(err))
		}
		v := profiles[i]
		return &v, nil
	}
	return nil, nil
}
