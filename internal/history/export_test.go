package history

import (
	"context"
	"os"
	"testing"
	"time"

	"kiosk/internal/presence"
	"kiosk/internal/store"
)

func archived(id string, at time.Time) presence.Presence {
	return presence.Presence{
		ID:     id,
		Type:   presence.TypeAdherent,
		Nom:    "Durand",
		Prenom: "Alice",
		Date:   at,
		Status: presence.StatusPending,
	}
}

func seedExportData(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	// One live presence in the current season, two archived days: one in
	// season, one from an older year.
	live := []presence.Presence{archived("live", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))}
	if err := mem.Write(ctx, presence.KeyPresences, live); err != nil {
		t.Fatalf("seed live: %v", err)
	}
	entries := []Entry{
		{Date: "2025-10-02", Presences: []presence.Presence{archived("in-season", time.Date(2025, 10, 2, 18, 0, 0, 0, time.UTC))}},
		{Date: "2024-05-01", Presences: []presence.Presence{archived("old", time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC))}},
	}
	if err := mem.Write(ctx, KeyHistory, entries); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	return mem
}

func TestAvailableYears(t *testing.T) {
	e := NewExporter(seedExportData(t), t.TempDir(), nil)
	years := e.AvailableYears(context.Background())
	want := []int{2026, 2025, 2024}
	if len(years) != len(want) {
		t.Fatalf("expected %v, got %v", want, years)
	}
	for i := range want {
		if years[i] != want[i] {
			t.Fatalf("years not descending: %v", years)
		}
	}
}

func TestExportSeason(t *testing.T) {
	e := NewExporter(seedExportData(t), t.TempDir(), nil)
	// March 2026 sits in the September 2025 season: the live record and the
	// October 2025 day are in range, the May 2024 day is not.
	e.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }

	res, err := e.ExportSeason(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Records != 2 {
		t.Fatalf("expected 2 in-season records, got %d", res.Records)
	}
	if res.Filename != "Export_Saison_2025-2026.xlsx" || res.Label != "2025-2026" {
		t.Fatalf("unexpected export naming: %+v", res)
	}
	info, err := os.Stat(res.Path)
	if err != nil {
		t.Fatalf("spreadsheet not written: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("spreadsheet is empty")
	}
}

func TestExportYear(t *testing.T) {
	e := NewExporter(seedExportData(t), t.TempDir(), nil)

	res, err := e.ExportYear(context.Background(), 2024)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Records != 1 || res.Filename != "Export_Annee_2024.xlsx" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("spreadsheet not written: %v", err)
	}
}
