package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"kiosk/internal/presence"
	"kiosk/internal/store"
)

// Exporter writes season and year spreadsheets from live plus archived
// presences.
type Exporter struct {
	store store.Store
	dir   string
	log   *zap.Logger
	now   func() time.Time
}

// NewExporter creates an exporter writing .xlsx files under dir.
func NewExporter(st store.Store, dir string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: st, dir: dir, log: logger, now: time.Now}
}

// ExportResult describes a written spreadsheet.
type ExportResult struct {
	Filename string `json:"filename"`
	Path     string `json:"-"`
	Records  int    `json:"recordCount"`
	Label    string `json:"label"`
}

func (e *Exporter) allPresences(ctx context.Context) []presence.Presence {
	all := presence.ReadAll(ctx, e.store, e.log, presence.KeyPresences)
	for _, entry := range readEntries(ctx, e.store, e.log, KeyHistory) {
		all = append(all, entry.Presences...)
	}
	return all
}

// AvailableYears lists years present in live or archived data, descending.
func (e *Exporter) AvailableYears(ctx context.Context) []int {
	seen := make(map[int]bool)
	for _, p := range e.allPresences(ctx) {
		if !p.Date.IsZero() {
			seen[p.Date.Year()] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// ExportSeason writes the current season's presences (September 1 through
// August 31) to a spreadsheet.
func (e *Exporter) ExportSeason(ctx context.Context) (ExportResult, error) {
	now := e.now()
	startYear := currentSeasonStart(now)
	start := time.Date(startYear, time.September, 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(1, 0, 0)
	label := fmt.Sprintf("%d-%d", startYear, startYear+1)

	var rows []presence.Presence
	for _, p := range e.allPresences(ctx) {
		if !p.Date.Before(start) && p.Date.Before(end) {
			rows = append(rows, p)
		}
	}
	return e.write(fmt.Sprintf("Export_Saison_%s.xlsx", label), "Saison "+label, label, rows)
}

// ExportYear writes one calendar year's presences to a spreadsheet.
func (e *Exporter) ExportYear(ctx context.Context, year int) (ExportResult, error) {
	label := fmt.Sprintf("%d", year)
	var rows []presence.Presence
	for _, p := range e.allPresences(ctx) {
		if p.Date.Year() == year {
			rows = append(rows, p)
		}
	}
	return e.write(fmt.Sprintf("Export_Annee_%d.xlsx", year), "Annee "+label, label, rows)
}

var exportHeaders = []string{
	"Date", "Type", "Nom", "Prénom", "Email", "Téléphone",
	"Date Naissance", "Niveau", "Tarif", "Méthode Paiement", "Status",
}

func (e *Exporter) write(filename, sheet, label string, rows []presence.Presence) (ExportResult, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return ExportResult{}, fmt.Errorf("create exports dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheet)

	for col, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E0E0E0"}},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
		f.SetCellStyle(sheet, "A1", last, headerStyle)
	}
	f.SetColWidth(sheet, "A", "K", 18)

	for i, p := range rows {
		tarif := ""
		if p.Tarif != nil {
			tarif = fmt.Sprintf("%.2f", *p.Tarif)
		}
		values := []any{
			p.Date.Format("02/01/2006"), p.Type, p.Nom, p.Prenom,
			p.Email, p.Telephone, p.DateNaissance, p.Niveau,
			tarif, p.MethodePaiement, string(p.Status),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	path := filepath.Join(e.dir, filename)
	if err := f.SaveAs(path); err != nil {
		return ExportResult{}, fmt.Errorf("save export: %w", err)
	}

	e.log.Info("export written",
		zap.String("file", filename), zap.Int("records", len(rows)))
	return ExportResult{Filename: filename, Path: path, Records: len(rows), Label: label}, nil
}
