// Package config loads plsummary.yaml. Every key is optional; missing keys
// keep the values from the embedded default document.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"plsummary-service/internal/models"
	"plsummary-service/internal/report"
)

// DefaultFile is looked up in the working directory when --config is not given.
const DefaultFile = "plsummary.yaml"

const defaultConfigYAML = `# plsummary configuration
output_dir: .
debug_log: debug.txt
workers: 1

split:
  header_rows: 7
  end_label: 当期純利益
  subject_header: 科目名

# Months up to and including cutoff predate the per-company expense columns
# in the export, so they are inserted after the anchor column.
expense:
  anchor: 本部
  cutoff: "2025-07"
  columns:
    - 1Cカンパニー販管費
    - 2Cカンパニー販管費
    - 3Cカンパニー販管費
    - 4Cカンパニー販管費
    - 事業開発カンパニー販管費
    - 社長室カンパニー販管費
    - 本部カンパニー販管費

label_replacements:
  - {from: 1Cカンパニー販管費, to: C001_1Cカンパニー販管費}
  - {from: 2Cカンパニー販管費, to: C002_2Cカンパニー販管費}
  - {from: 3Cカンパニー販管費, to: C003_3Cカンパニー販管費}
  - {from: 4Cカンパニー販管費, to: C004_4Cカンパニー販管費}
  - {from: 事業開発カンパニー販管費, to: C005_事業開発カンパニー販管費}
  - {from: 社長室カンパニー販管費, to: C006_社長室カンパニー販管費}
  - {from: 本部カンパニー販管費, to: C007_本部カンパニー販管費}
`

type SplitConfig struct {
	HeaderRows    int    `yaml:"header_rows"`
	EndLabel      string `yaml:"end_label"`
	SubjectHeader string `yaml:"subject_header"`
}

type ExpenseConfig struct {
	Anchor  string   `yaml:"anchor"`
	Cutoff  string   `yaml:"cutoff"`
	Columns []string `yaml:"columns"`
}

// Replacement renames one exact cell value.
type Replacement struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Config holds everything the converter needs besides the input paths.
type Config struct {
	OutputDir         string        `yaml:"output_dir"`
	DebugLog          string        `yaml:"debug_log"`
	Workers           int           `yaml:"workers"`
	Split             SplitConfig   `yaml:"split"`
	Expense           ExpenseConfig `yaml:"expense"`
	LabelReplacements []Replacement `yaml:"label_replacements"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded default is invalid: %v", err))
	}
	return cfg
}

// Load overlays the YAML file at path on top of Default. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve picks the explicit path, else DefaultFile when it exists.
func Resolve(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile
	}
	return ""
}

// WriteDefault writes the default document to path without overwriting.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be >= 1, got %d", c.Workers))
	}
	if c.Split.HeaderRows < 0 {
		problems = append(problems, "split.header_rows must not be negative")
	}
	if c.Split.EndLabel == "" || c.Split.SubjectHeader == "" {
		problems = append(problems, "split.end_label and split.subject_header are required")
	}
	if _, err := models.ParsePeriod(c.Expense.Cutoff); err != nil {
		problems = append(problems, "expense.cutoff: "+err.Error())
	}
	for i, r := range c.LabelReplacements {
		if r.From == "" || r.To == "" {
			problems = append(problems, fmt.Sprintf("label_replacements[%d] needs both from and to", i))
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Layout() report.Layout {
	return report.Layout{
		HeaderRows:    c.Split.HeaderRows,
		EndLabel:      c.Split.EndLabel,
		SubjectHeader: c.Split.SubjectHeader,
	}
}

// ExpenseCutoff is only safe to call on a validated config.
func (c Config) ExpenseCutoff() models.Period {
	p, _ := models.ParsePeriod(c.Expense.Cutoff)
	return p
}

// Replacements returns the label map; later entries win on duplicate keys.
func (c Config) Replacements() map[string]string {
	out := make(map[string]string, len(c.LabelReplacements))
	for _, r := range c.LabelReplacements {
		out[r.From] = r.To
	}
	return out
}

// DebugLogPath resolves DebugLog against OutputDir. Empty disables the log.
func (c Config) DebugLogPath() string {
	if c.DebugLog == "" || filepath.IsAbs(c.DebugLog) {
		return c.DebugLog
	}
	return filepath.Join(c.OutputDir, c.DebugLog)
}
