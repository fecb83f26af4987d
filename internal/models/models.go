package models

import (
	"fmt"
	"strconv"
	"strings"
)

type Encoding string

const (
	EncodingUTF8  Encoding = "utf-8"
	EncodingCP932 Encoding = "cp932"
	EncodingXLSX  Encoding = "xlsx"
)

// Period is the fiscal month a report covers.
type Period struct {
	Year  int
	Month int // 1-12
}

// NewPeriod validates the month range.
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("month out of range: %d", month)
	}
	if year < 1 {
		return Period{}, fmt.Errorf("year out of range: %d", year)
	}
	return Period{Year: year, Month: month}, nil
}

// ParsePeriod reads the "YYYY-MM" form produced by String.
func ParsePeriod(s string) (Period, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Period{}, fmt.Errorf("invalid period %q: want YYYY-MM", s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return NewPeriod(year, month)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Label renders the period the way output filenames spell it, e.g. 2025年07月.
func (p Period) Label() string {
	return fmt.Sprintf("%d年%02d月", p.Year, p.Month)
}

func (p Period) Compare(o Period) int {
	switch {
	case p.Year != o.Year:
		if p.Year < o.Year {
			return -1
		}
		return 1
	case p.Month < o.Month:
		return -1
	case p.Month > o.Month:
		return 1
	default:
		return 0
	}
}

func (p Period) Before(o Period) bool { return p.Compare(o) < 0 }
func (p Period) After(o Period) bool  { return p.Compare(o) > 0 }
