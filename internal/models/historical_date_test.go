package models

import "testing"

func TestParseHistoricalDate(t *testing.T) {
	cases := []struct {
		in          string
		year        int
		approximate bool
	}{
		{"380 BCE", -379, false},
		{"c. 380 BCE", -379, true},
		{"1 BCE", 0, false},
		{"44 BC", -43, false},
		{"1641", 1641, false},
		{"1781 CE", 1781, false},
		{"c. 500 AD", 500, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseHistoricalDate(tc.in)
			if err != nil {
				t.Fatalf("ParseHistoricalDate(%q) failed: %v", tc.in, err)
			}
			if got.Year != tc.year {
				t.Errorf("Year = %d, want %d", got.Year, tc.year)
			}
			if got.Approximate != tc.approximate {
				t.Errorf("Approximate = %v, want %v", got.Approximate, tc.approximate)
			}
		})
	}
}

func TestParseHistoricalDateRejects(t *testing.T) {
	for _, in := range []string{"", "year zero", "0 CE", "380 BCE or so", "c.", "12th century"} {
		if _, err := ParseHistoricalDate(in); err == nil {
			t.Errorf("ParseHistoricalDate(%q) succeeded, want error", in)
		}
	}
}

func TestHistoricalDateEraYearAndString(t *testing.T) {
	bce, err := ParseHistoricalDate("c. 380 BCE")
	if err != nil {
		t.Fatalf("ParseHistoricalDate failed: %v", err)
	}
	year, era := bce.EraYear()
	if year != 380 || era != "BCE" {
		t.Errorf("EraYear = %d %s, want 380 BCE", year, era)
	}
	if bce.String() != "c. 380 BCE" {
		t.Errorf("String = %q, want round-trip of the input", bce.String())
	}

	ce := HistoricalDate{Year: 1641}
	if ce.String() != "1641 CE" {
		t.Errorf("String = %q, want 1641 CE", ce.String())
	}
}

func TestHistoricalDateBefore(t *testing.T) {
	republic := HistoricalDate{Year: -379}
	meditations := HistoricalDate{Year: 1641}
	if !republic.Before(meditations) {
		t.Error("380 BCE must precede 1641 CE")
	}
	if meditations.Before(republic) {
		t.Error("1641 CE must not precede 380 BCE")
	}

	// Ordering is continuous across the era boundary.
	oneBCE := HistoricalDate{Year: 0}
	oneCE := HistoricalDate{Year: 1}
	if !oneBCE.Before(oneCE) {
		t.Error("1 BCE must precede 1 CE")
	}

	early := HistoricalDate{Year: 1641, Month: 2}
	late := HistoricalDate{Year: 1641, Month: 8}
	if !early.Before(late) {
		t.Error("Month ordering within a year failed")
	}
}
