// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package epiweek converts CDC epidemiological week identifiers to calendar
// dates and season labels.
//
// An epiweek is encoded as YYYY*100+WW (e.g. 202501 = week 1 of 2025).
// Surveillance APIs key their series by epiweek, and most of the temporal
// plumbing in this repository goes through this package, so the conversion
// rules live in exactly one place:
//
//   - January 4th always falls in ISO week 1 of its year.
//   - A week runs Monday through Sunday; the "week-ending" date reported
//     alongside surveillance data is the Sunday.
//   - A flu season starts in week 40 of one year and runs into the low
//     weeks of the next ("2024-25" covers 202440 through roughly 202539).
package epiweek

import (
	"fmt"
	"time"
)

// Epiweek is a CDC epidemiological week identifier, YYYY*100+WW.
type Epiweek = int

// ToDate converts an epiweek to its week-ending date (the Sunday closing the
// week). Week numbers must be in [1, 53]; out-of-range weeks are an error.
func ToDate(ew Epiweek) (time.Time, error) {
	year, week, err := split(ew)
	if err != nil {
		return time.Time{}, err
	}

	// January 4th is always in ISO week 1. Walk back to that week's Monday,
	// advance (week-1) weeks, then 6 days to the closing Sunday.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday()+6) % 7 // Monday=0 .. Sunday=6
	week1Monday := jan4.AddDate(0, 0, -weekday)

	weekMonday := week1Monday.AddDate(0, 0, (week-1)*7)
	return weekMonday.AddDate(0, 0, 6), nil
}

// Season returns the flu season label for an epiweek. Weeks 40 and later
// belong to the season starting that year; earlier weeks close out the
// previous year's season.
func Season(ew Epiweek) string {
	year := ew / 100
	week := ew % 100

	if week >= 40 {
		return fmt.Sprintf("%d-%02d", year, (year+1)%100)
	}
	return fmt.Sprintf("%d-%02d", year-1, year%100)
}

// DecodeAPIDate interprets an integer date from the Delphi APIs, which mix
// week-granularity and day-granularity series in the same field:
// a 6-digit value is an epiweek, an 8-digit value is YYYYMMDD.
func DecodeAPIDate(raw int) (time.Time, error) {
	switch {
	case raw >= 100000 && raw <= 999999:
		return ToDate(raw)
	case raw >= 10000000 && raw <= 99999999:
		t, err := time.Parse("20060102", fmt.Sprintf("%08d", raw))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid calendar date %d: %w", raw, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("unrecognized date encoding %d: want 6-digit epiweek or 8-digit YYYYMMDD", raw)
	}
}

// FromTime returns the epiweek containing t, using t's ISO week and
// year-of-week (year boundaries fall on the ISO rules, so late-December days
// can belong to week 1 of the following year and vice versa).
func FromTime(t time.Time) Epiweek {
	year, week := t.ISOWeek()
	return year*100 + week
}

// Range formats an inclusive epiweek range the way the Delphi APIs expect
// ("YYYYWW-YYYYWW").
func Range(start, end Epiweek) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// split decomposes an epiweek and validates the week component.
func split(ew Epiweek) (year, week int, err error) {
	year = ew / 100
	week = ew % 100
	if year < 1 || week < 1 || week > 53 {
		return 0, 0, fmt.Errorf("invalid epiweek %d: week must be in [1, 53]", ew)
	}
	return year, week, nil
}
