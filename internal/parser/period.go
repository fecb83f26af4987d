package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"plsummary-service/internal/models"
)

var (
	ErrFilenamePeriod = errors.New("cannot determine target year/month from filename")
	ErrCellPeriod     = errors.New("cannot determine target year/month from period cell")
)

var (
	filenamePeriodRe = regexp.MustCompile(`(\d{2})\.(\d{1,2})\.(?:csv|xlsx)$`)
	kanjiPeriodRe    = regexp.MustCompile(`(?:自)?(\d{4})年(\d{1,2})月(?:度)?`)
	numericPeriodRe  = regexp.MustCompile(`(\d{4})[./-](\d{1,2})`)
)

// PeriodFromFilename reads a two digit year and a month from names like
// "PL_25.7.csv" (2025-07).
func PeriodFromFilename(path string) (models.Period, error) {
	base := filepath.Base(path)
	m := filenamePeriodRe.FindStringSubmatch(base)
	if m == nil {
		return models.Period{}, fmt.Errorf("%w: %s", ErrFilenamePeriod, base)
	}
	yy, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	p, err := models.NewPeriod(2000+yy, month)
	if err != nil {
		return models.Period{}, fmt.Errorf("%w: %s: %v", ErrFilenamePeriod, base, err)
	}
	return p, nil
}

// PeriodFromCell reads the aggregation period cell, e.g. "自 ２０２５年 ７月度".
// Full-width digits are folded first; "2025/07" style is accepted as a fallback.
func PeriodFromCell(cell string) (models.Period, error) {
	s := StripSpaces(cell)
	s = norm.NFKC.String(s)
	m := kanjiPeriodRe.FindStringSubmatch(s)
	if m == nil {
		m = numericPeriodRe.FindStringSubmatch(s)
	}
	if m == nil {
		return models.Period{}, fmt.Errorf("%w: %q", ErrCellPeriod, cell)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	p, err := models.NewPeriod(year, month)
	if err != nil {
		return models.Period{}, fmt.Errorf("%w: %q: %v", ErrCellPeriod, cell, err)
	}
	return p, nil
}

// StripSpaces removes ASCII and ideographic spaces.
func StripSpaces(s string) string {
	return strings.NewReplacer(" ", "", "　", "").Replace(s)
}
