package report

import (
	"regexp"
	"strings"

	"plsummary-service/internal/util"
)

// ProjectHeader heads the first column of the project vertical table.
const ProjectHeader = "PJ名称"

// Layout describes where the P&L ends and the cost report starts.
type Layout struct {
	HeaderRows    int    // preamble rows dropped before the P&L header
	EndLabel      string // last P&L row, e.g. 当期純利益
	SubjectHeader string // first cost report row, e.g. 科目名
}

func DefaultLayout() Layout {
	return Layout{HeaderRows: 7, EndLabel: "当期純利益", SubjectHeader: "科目名"}
}

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// Department codes are a letter other than P plus three digits; project
// codes are P plus five digits. The separator after either becomes "_".
var projectRewrites = []rewrite{
	{regexp.MustCompile(`^([A-OQ-Z]\d{3})[ 　]+`), "${1}_"},
	{regexp.MustCompile(`^([A-OQ-Z]\d{3})(【)`), "${1}_${2}"},
	{regexp.MustCompile(`^(P\d{5})[ 　]+`), "${1}_"},
	{regexp.MustCompile(`^(P\d{5})(【)`), "${1}_${2}"},
}

// NormalizeProjectName joins the code prefix of a project label to its name
// with "_" and replaces embedded tabs.
func NormalizeProjectName(name string) string {
	if name == "" {
		return name
	}
	name = strings.ReplaceAll(name, "\t", "_")
	for _, rw := range projectRewrites {
		name = rw.re.ReplaceAllString(name, rw.repl)
	}
	return name
}

// NormalizeProjectRow rewrites row i in place. Out of range is a no-op.
func NormalizeProjectRow(rows [][]string, i int) {
	if i < 0 || i >= len(rows) {
		return
	}
	for j, v := range rows[i] {
		rows[i][j] = NormalizeProjectName(v)
	}
}

// FindSubjectHeaderRow returns the first row at or after start holding the
// subject header cell, or -1.
func FindSubjectHeaderRow(rows [][]string, start int, header string) int {
	if start < 0 {
		start = 0
	}
	for i := start; i < len(rows); i++ {
		for _, v := range rows[i] {
			if strings.Contains(v, header+"\t") || strings.TrimSpace(v) == header {
				return i
			}
		}
	}
	return -1
}

// Split separates the P&L from the cost report that follows it in the same
// sheet. The boundary is the EndLabel row directly followed by a
// SubjectHeader row; without one the whole sheet is P&L and cost is nil.
// Both results are copies.
func Split(rows [][]string, l Layout) (pl, cost [][]string) {
	for i := l.HeaderRows; i+1 < len(rows); i++ {
		cur, next := rows[i], rows[i+1]
		if len(cur) > 0 && len(next) > 0 && cur[0] == l.EndLabel && next[0] == l.SubjectHeader {
			return util.CloneRows(rows, l.HeaderRows, i+1), util.CloneRows(rows, i+1, len(rows))
		}
	}
	return util.CloneRows(rows, l.HeaderRows, len(rows)), nil
}

// InsertExpenseColumns inserts columns right after the anchor header cell,
// filling "0" below them. Short rows are padded so the zeros line up.
// It reports whether the anchor was found.
func InsertExpenseColumns(rows [][]string, anchor string, columns []string) bool {
	if len(rows) == 0 || len(columns) == 0 {
		return false
	}
	at := -1
	for i, v := range rows[0] {
		if v == anchor {
			at = i + 1
			break
		}
	}
	if at < 0 {
		return false
	}
	zeros := make([]string, len(columns))
	for i := range zeros {
		zeros[i] = "0"
	}
	rows[0] = insertAt(rows[0], at, columns)
	for i := 1; i < len(rows); i++ {
		for len(rows[i]) < at {
			rows[i] = append(rows[i], "")
		}
		rows[i] = insertAt(rows[i], at, zeros)
	}
	return true
}

func insertAt(row []string, at int, vals []string) []string {
	out := make([]string, 0, len(row)+len(vals))
	out = append(out, row[:at]...)
	out = append(out, vals...)
	return append(out, row[at:]...)
}

// ReplaceLabels swaps every cell exactly matching a key. It returns the
// number of cells changed.
func ReplaceLabels(rows [][]string, repl map[string]string) int {
	n := 0
	for _, row := range rows {
		for j, v := range row {
			if to, ok := repl[v]; ok {
				row[j] = to
				n++
			}
		}
	}
	return n
}

// ProjectVertical transposes the P&L so each project column becomes a row:
// the first row lists the item names, then one row per project.
func ProjectVertical(rows [][]string) [][]string {
	if len(rows) == 0 {
		return nil
	}
	header, items := rows[0], rows[1:]

	first := make([]string, 0, len(items)+1)
	first = append(first, ProjectHeader)
	for _, item := range items {
		first = append(first, util.Cell(item, 0))
	}
	out := [][]string{first}

	for j := 1; j < len(header); j++ {
		row := make([]string, 0, len(items)+1)
		row = append(row, header[j])
		for _, item := range items {
			row = append(row, util.Cell(item, j))
		}
		out = append(out, row)
	}
	return out
}
