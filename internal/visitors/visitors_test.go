package visitors

import (
	"context"
	"testing"
	"time"

	"kiosk/internal/store"
)

func TestSaveCreatesProfile(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	v, err := svc.Save(ctx, Visitor{Nom: " Martin ", Prenom: "Paul", DateNaissance: "2008-05-20"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if v.ID == "" || v.Nom != "Martin" || v.VisitCount != 1 {
		t.Fatalf("unexpected profile: %+v", v)
	}
	if !v.FirstVisit.Equal(fixed) || !v.LastVisit.Equal(fixed) {
		t.Fatalf("visit timestamps not set: %+v", v)
	}
}

func TestSaveUpdatesExistingProfile(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	ctx := context.Background()

	first, err := svc.Save(ctx, Visitor{Nom: "Martin", Prenom: "Paul", DateNaissance: "2008-05-20"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	tarif := 8.0
	// Identity matching ignores case and surrounding spaces.
	updated, err := svc.Save(ctx, Visitor{
		Nom: "martin", Prenom: " PAUL ", DateNaissance: "2008-05-20",
		Email: "paul@example.org", LastTarif: &tarif,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != first.ID {
		t.Fatalf("expected same profile, got new id %s", updated.ID)
	}
	if updated.VisitCount != 2 || updated.Email != "paul@example.org" || updated.LastTarif == nil {
		t.Fatalf("profile not refreshed: %+v", updated)
	}

	if all := svc.List(ctx); len(all) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(all))
	}
}

func TestFind(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	ctx := context.Background()

	if _, err := svc.Save(ctx, Visitor{Nom: "Martin", Prenom: "Paul", DateNaissance: "2008-05-20"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := svc.Find(ctx, "MARTIN", "paul", "2008-05-20")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.VisitCount != 2 {
		t.Fatalf("expected counted repeat visit, got %+v", got)
	}

	// Different birth date is a different person.
	miss, err := svc.Find(ctx, "Martin", "Paul", "2001-01-01")
	if err != nil {
		t.Fatalf("find miss: %v", err)
	}
	if miss != nil {
		t.Fatalf("expected nil for unknown visitor, got %+v", miss)
	}
}
