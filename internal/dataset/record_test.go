package dataset

import (
	"math"
	"testing"
	"time"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{42.5, 42.5, true},
		{float32(2), 2, true},
		{7, 7, true},
		{int64(7), 7, true},
		{uint64(7), 7, true},
		{"3.14", 3.14, true},
		{" 10 ", 10, true},
		{true, 1, true},
		{false, 0, true},
		{"abc", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{math.NaN(), 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		got, ok := Number(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("Number(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"hello", "hello"},
		{nil, ""},
		{42.0, "42"}, // no trailing .0 for whole floats
		{42.5, "42.5"},
		{7, "7"},
		{int64(7), "7"},
		{true, "true"},
		{struct{}{}, ""},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDate(t *testing.T) {
	tests := []struct {
		in     any
		want   string
		wantOK bool
	}{
		{"2024-03-15", "2024-03-15", true},
		{"2024-03-15T10:30:00Z", "2024-03-15", true},
		{"2024-03-15 10:30:00", "2024-03-15", true},
		{"2024/03/15", "2024-03-15", true},
		{" 2024-03-15 ", "2024-03-15", true},
		{"15.03.2024", "", false},
		{42.0, "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		got, ok := Date(tt.in)
		if ok != tt.wantOK {
			t.Errorf("Date(%v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && got.Format("2006-01-02") != tt.want {
			t.Errorf("Date(%v) = %s, want %s", tt.in, got.Format(time.RFC3339), tt.want)
		}
	}
}
