package util

// Cell returns row[i], or "" when the row is too short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// CloneRows deep-copies rows[start:end].
func CloneRows(rows [][]string, start, end int) [][]string {
	if start < 0 {
		start = 0
	}
	if end > len(rows) {
		end = len(rows)
	}
	if start >= end {
		return nil
	}
	out := make([][]string, 0, end-start)
	for _, r := range rows[start:end] {
		out = append(out, append([]string(nil), r...))
	}
	return out
}

// FirstColumn keeps only the first cell of each row.
func FirstColumn(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{Cell(r, 0)}
	}
	return out
}

// Column wraps values as a one-column table.
func Column(values []string) [][]string {
	out := make([][]string, len(values))
	for i, v := range values {
		out[i] = []string{v}
	}
	return out
}
