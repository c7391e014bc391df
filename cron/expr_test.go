package cron

import (
	"testing"
	"time"
)

func TestParseValid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"every minute", "* * * * *"},
		{"step", "*/15 * * * *"},
		{"range", "0 9-17 * * *"},
		{"range with step", "0 9-17/2 * * *"},
		{"comma list", "0,30 * * * *"},
		{"month names", "0 0 1 jan,jul *"},
		{"weekday names", "0 9 * * mon-fri"},
		{"mixed case names", "0 9 * * Mon-FRI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.expr); err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.expr, err)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"too few fields", "* * * *"},
		{"too many fields", "* * * * * *"},
		{"out of range minute", "60 * * * *"},
		{"reversed range", "0 17-9 * * *"},
		{"zero step", "*/0 * * * *"},
		{"garbage token", "a * * * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.expr); err == nil {
				t.Fatalf("Parse(%q) expected error, got none", tt.expr)
			}
		})
	}
}

func TestParseDedupesAndSorts(t *testing.T) {
	expr, err := Parse("5,1,5,3 * * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 3, 5}
	if len(expr.Minute) != len(want) {
		t.Fatalf("expected %v, got %v", want, expr.Minute)
	}
	for i, v := range want {
		if expr.Minute[i] != v {
			t.Fatalf("expected %v, got %v", want, expr.Minute)
		}
	}
}

func TestMatches(t *testing.T) {
	expr, err := Parse("30 9 * * mon-fri")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 2026-07-27 is a Monday.
	monday930 := time.Date(2026, 7, 27, 9, 30, 0, 0, time.UTC)
	if !Matches(expr, monday930) {
		t.Fatalf("expected match on Monday 9:30")
	}

	saturday930 := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	if Matches(expr, saturday930) {
		t.Fatalf("expected no match on Saturday")
	}

	mondayWrongMinute := time.Date(2026, 7, 27, 9, 31, 0, 0, time.UTC)
	if Matches(expr, mondayWrongMinute) {
		t.Fatalf("expected no match at 9:31")
	}
}

func TestNextOccurrence(t *testing.T) {
	expr, err := Parse("0 0 1 * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	from := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	next, ok := NextOccurrence(expr, from)
	if !ok {
		t.Fatalf("expected an occurrence within the horizon")
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextOccurrenceExhaustsHorizon(t *testing.T) {
	// February 30th never exists; the day field can never match.
	expr := &CronExpression{
		Minute: []int{0}, Hour: []int{0}, Day: []int{30}, Month: []int{2}, Weekday: []int{0, 1, 2, 3, 4, 5, 6},
	}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, ok := NextOccurrence(expr, from)
	if ok {
		t.Fatalf("expected exhaustion (no Feb 30 ever exists)")
	}
}
