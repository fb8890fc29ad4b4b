package presence

import "time"

// Tarif is the computed entry price and its age-band label.
type Tarif struct {
	Montant   float64 `json:"montant"`
	Categorie string  `json:"categorie"`
}

// MemberRates is the tariff grid for adherents.
type MemberRates struct {
	Jeune    float64 // <18
	Etudiant float64 // 18-25
	Adulte   float64 // 26-64
	Senior   float64 // >=65
}

// VisitorRates is the independent grid for walk-in non-adherents. The two
// grids are distinct policies and are never merged.
type VisitorRates struct {
	Enfant float64 // <8, free by default
	Jeune  float64 // 8-17
	Adulte float64 // >=18
}

// DefaultMemberRates are the club's posted adherent prices in euros.
func DefaultMemberRates() MemberRates {
	return MemberRates{Jeune: 4, Etudiant: 5, Adulte: 7, Senior: 5}
}

// DefaultVisitorRates are the walk-in prices in euros.
func DefaultVisitorRates() VisitorRates {
	return VisitorRates{Enfant: 0, Jeune: 8, Adulte: 12}
}

// Compute returns the adherent tariff for a birth date as of now. A nil
// birth date yields the adult rate; it never fails.
func (r MemberRates) Compute(birth *time.Time, now time.Time) Tarif {
	if birth == nil {
		return Tarif{Montant: r.Adulte, Categorie: "adulte"}
	}
	switch age := ageAt(*birth, now); {
	case age < 18:
		return Tarif{Montant: r.Jeune, Categorie: "jeune"}
	case age <= 25:
		return Tarif{Montant: r.Etudiant, Categorie: "étudiant"}
	case age <= 64:
		return Tarif{Montant: r.Adulte, Categorie: "adulte"}
	default:
		return Tarif{Montant: r.Senior, Categorie: "sénior"}
	}
}

// Compute returns the walk-in tariff for a birth date as of now. A nil
// birth date yields the adult rate; it never fails.
func (r VisitorRates) Compute(birth *time.Time, now time.Time) Tarif {
	if birth == nil {
		return Tarif{Montant: r.Adulte, Categorie: "adulte"}
	}
	switch age := ageAt(*birth, now); {
	case age < 8:
		return Tarif{Montant: r.Enfant, Categorie: "enfant"}
	case age < 18:
		return Tarif{Montant: r.Jeune, Categorie: "jeune"}
	default:
		return Tarif{Montant: r.Adulte, Categorie: "adulte"}
	}
}

// ageAt computes the age in whole years, subtracting one when the birthday
// has not yet been reached this year.
func ageAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() ||
		(now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

// ParseBirthDate accepts the intake form's date string; nil when absent or
// unparseable, so pricing falls back to the adult rate.
func ParseBirthDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
