package convert

import (
	"fmt"
	"path/filepath"
	"strings"

	"plsummary-service/internal/models"
	"plsummary-service/internal/parser"
)

func PLPath(dir string, p models.Period) string {
	return filepath.Join(dir, fmt.Sprintf("損益計算書_%s.tsv", p.Label()))
}

func CostPath(dir string, p models.Period) string {
	return filepath.Join(dir, fmt.Sprintf("製造原価報告書_%s.tsv", p.Label()))
}

func SubjectVerticalPath(dir string, p models.Period) string {
	return filepath.Join(dir, fmt.Sprintf("製造原価報告書_%s%s", p.Label(), subjectVerticalSuffix))
}

func ProjectVerticalPath(dir string, p models.Period) string {
	return filepath.Join(dir, fmt.Sprintf("損益計算書_%s_PJ名称_vertical.tsv", p.Label()))
}

// ErrorPath names the error file after the target month when the filename
// yields one, else after the input's base name.
func ErrorPath(dir, input string) string {
	if p, err := parser.PeriodFromFilename(input); err == nil {
		return filepath.Join(dir, fmt.Sprintf("損益計算書_%s_error.txt", p.Label()))
	}
	return filepath.Join(dir, filepath.Base(input)+"_error.txt")
}

// UnionPath is where the merged subject order is written for one subject
// vertical file. Files not following the naming scheme get "_A∪B" before
// their extension.
func UnionPath(subjectFile string) string {
	if strings.HasSuffix(subjectFile, subjectVerticalSuffix) {
		return strings.TrimSuffix(subjectFile, subjectVerticalSuffix) + unionVerticalSuffix
	}
	ext := filepath.Ext(subjectFile)
	return strings.TrimSuffix(subjectFile, ext) + "_A∪B" + ext
}
