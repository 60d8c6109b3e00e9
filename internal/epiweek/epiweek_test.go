// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package epiweek

import (
	"testing"
	"time"
)

func TestToDate(t *testing.T) {
	tests := []struct {
		name    string
		epiweek int
		want    string // week-ending date, YYYY-MM-DD
		wantErr bool
	}{
		{name: "first week of 2025", epiweek: 202501, want: "2025-01-05"},
		{name: "mid-season week", epiweek: 202440, want: "2024-10-06"},
		{name: "week 52 of 2023", epiweek: 202352, want: "2023-12-31"},
		{name: "week 53 in a 53-week year", epiweek: 202053, want: "2021-01-03"},
		{name: "year where Jan 1 is late in prior ISO week", epiweek: 202101, want: "2021-01-10"},
		{name: "week zero rejected", epiweek: 202400, wantErr: true},
		{name: "week 54 rejected", epiweek: 202454, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDate(tt.epiweek)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ToDate(%d) expected error, got %v", tt.epiweek, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToDate(%d) unexpected error: %v", tt.epiweek, err)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("ToDate(%d) = %s, want %s", tt.epiweek, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

// TestToDateProperties checks the round-trip invariants: for every valid
// epiweek the returned date is a Sunday whose ISO week matches the input.
func TestToDateProperties(t *testing.T) {
	for year := 2015; year <= 2030; year++ {
		for week := 1; week <= 52; week++ {
			ew := year*100 + week
			got, err := ToDate(ew)
			if err != nil {
				t.Fatalf("ToDate(%d) unexpected error: %v", ew, err)
			}

			if got.Weekday() != time.Sunday {
				t.Errorf("ToDate(%d) = %s (%s), want a Sunday", ew, got.Format("2006-01-02"), got.Weekday())
			}

			// ISO week of the week's Monday must match. The Sunday itself is
			// the last day of the same ISO week, so checking it directly works
			// as well.
			isoYear, isoWeek := got.ISOWeek()
			if isoYear != year || isoWeek != week {
				t.Errorf("ToDate(%d): ISO week of %s = %d%02d, want %d%02d",
					ew, got.Format("2006-01-02"), isoYear, isoWeek, year, week)
			}
		}
	}
}

func TestSeason(t *testing.T) {
	tests := []struct {
		epiweek int
		want    string
	}{
		{202440, "2024-25"},
		{202505, "2024-25"},
		{202439, "2023-24"},
		{202052, "2020-21"},
		{202101, "2020-21"},
		{199940, "1999-00"},
	}

	for _, tt := range tests {
		if got := Season(tt.epiweek); got != tt.want {
			t.Errorf("Season(%d) = %q, want %q", tt.epiweek, got, tt.want)
		}
	}
}

func TestDecodeAPIDate(t *testing.T) {
	t.Run("six digits decodes as epiweek", func(t *testing.T) {
		got, err := DecodeAPIDate(202501)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fromEpiweek, err := ToDate(202501)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(fromEpiweek) {
			t.Errorf("DecodeAPIDate(202501) = %s, want %s", got, fromEpiweek)
		}
	})

	t.Run("eight digits decodes as calendar date", func(t *testing.T) {
		got, err := DecodeAPIDate(20250103)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("DecodeAPIDate(20250103) = %s, want %s", got, want)
		}
	})

	t.Run("other widths rejected", func(t *testing.T) {
		for _, raw := range []int{0, 2025, 2025011, 202501030} {
			if _, err := DecodeAPIDate(raw); err == nil {
				t.Errorf("DecodeAPIDate(%d) expected error", raw)
			}
		}
	})
}

func TestFromTime(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2025-01-05", 202501}, // Sunday closing week 1
		{"2024-12-30", 202501}, // Monday opening 2025's week 1
		{"2021-01-01", 202053}, // belongs to 2020's week 53
		{"2024-10-01", 202440},
	}

	for _, tt := range tests {
		d, err := time.Parse("2006-01-02", tt.date)
		if err != nil {
			t.Fatalf("bad test date %q: %v", tt.date, err)
		}
		if got := FromTime(d); got != tt.want {
			t.Errorf("FromTime(%s) = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestRange(t *testing.T) {
	if got := Range(202440, 202510); got != "202440-202510" {
		t.Errorf("Range(202440, 202510) = %q, want %q", got, "202440-202510")
	}
}
