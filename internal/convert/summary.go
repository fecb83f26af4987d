package convert

import (
	"fmt"
	"strings"
)

// HumanSummary renders s for a terminal.
func HumanSummary(s Summary) string {
	var b strings.Builder
	if s.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", s.RunID)
	}
	fmt.Fprintf(&b, "Total files: %d\n", s.TotalFiles)
	fmt.Fprintf(&b, "Converted: %d\n", s.Converted)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed)

	if len(s.Files) > 0 {
		fmt.Fprintf(&b, "\nFiles:\n")
		for _, f := range s.Files {
			if f.Error != "" {
				fmt.Fprintf(&b, "- %s: FAILED: %s\n", f.Input, f.Error)
				if f.ErrorFile != "" {
					fmt.Fprintf(&b, "    error file: %s\n", f.ErrorFile)
				}
				continue
			}
			fmt.Fprintf(&b, "- %s (%s, %s)\n", f.Input, f.Period, f.Encoding)
			for _, o := range f.Outputs {
				fmt.Fprintf(&b, "    %s\n", o)
			}
		}
	}

	if s.Union != nil {
		b.WriteString("\n")
		writeUnion(&b, s.Union)
	}
	if s.UnionError != "" {
		fmt.Fprintf(&b, "\nUnion step failed: %s\n", s.UnionError)
	}
	return b.String()
}

// HumanUnion renders the result of a merge-only run.
func HumanUnion(u *UnionResult) string {
	var b strings.Builder
	if u == nil {
		b.WriteString("No subject files to merge\n")
		return b.String()
	}
	writeUnion(&b, u)
	return b.String()
}

func writeUnion(b *strings.Builder, u *UnionResult) {
	fmt.Fprintf(b, "Merged subjects: %d from %d file(s)\n", len(u.Subjects), len(u.Sources))
	if u.Cyclic {
		fmt.Fprintf(b, "Subject order conflicts (appearance order used):\n")
		for _, e := range u.Conflicts {
			fmt.Fprintf(b, "- %s -> %s\n", e.Before, e.After)
		}
	}
	for _, o := range u.Outputs {
		fmt.Fprintf(b, "    %s\n", o)
	}
}
