package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"plsummary-service/internal/config"
	"plsummary-service/internal/logging"
	"plsummary-service/internal/models"
	"plsummary-service/internal/parser"
	"plsummary-service/internal/reconcile"
	"plsummary-service/internal/report"
	"plsummary-service/internal/util"
)

var (
	ErrMissingInput   = errors.New("input file does not exist")
	ErrTooFewRows     = errors.New("not enough rows to read the aggregation period")
	ErrPeriodMismatch = errors.New("filename and aggregation period disagree on target year/month")
)

// A B2 cell containing this marker is an opening-balance reversal export
// whose period cell does not name the month; the filename is trusted instead.
const reversalMarker = "期首振戻"

const (
	subjectVerticalSuffix = "_科目名_vertical.tsv"
	unionVerticalSuffix   = "_科目名_A∪B_vertical.tsv"
)

type FileResult struct {
	Input              string   `json:"input"`
	Period             string   `json:"period,omitempty"`
	Encoding           string   `json:"encoding,omitempty"`
	PeriodCheckSkipped bool     `json:"periodCheckSkipped,omitempty"`
	ExpenseInserted    bool     `json:"expenseInserted,omitempty"`
	LabelsReplaced     int      `json:"labelsReplaced"`
	Outputs            []string `json:"outputs"`
	SubjectFile        string   `json:"subjectFile,omitempty"`
	Error              string   `json:"error,omitempty"`
	ErrorFile          string   `json:"errorFile,omitempty"`
}

type UnionResult struct {
	Sources   []string         `json:"sources"`
	Subjects  []string         `json:"subjects"`
	Cyclic    bool             `json:"cyclic"`
	Conflicts []reconcile.Edge `json:"conflicts,omitempty"`
	Outputs   []string         `json:"outputs"`
}

type Summary struct {
	RunID      string       `json:"runID,omitempty"`
	TotalFiles int          `json:"totalFiles"`
	Converted  int          `json:"converted"`
	Failed     int          `json:"failed"`
	Files      []FileResult `json:"files"`
	Union      *UnionResult `json:"union,omitempty"`
	UnionError string       `json:"unionError,omitempty"`
}

// OK reports whether every file converted and the union step succeeded.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.UnionError == ""
}

// Converter turns monthly P&L exports into TSV reports.
type Converter struct {
	cfg config.Config
	log *logging.Logger
}

// New expects a validated config. log may be nil.
func New(cfg config.Config, log *logging.Logger) *Converter {
	return &Converter{cfg: cfg, log: log}
}

// Run converts every path, then merges the cost report subject orders of
// the files that succeeded. A failing file never stops the others. Files
// are converted concurrently up to the configured worker count, but results
// keep input order so the merge tie-break follows the command line.
func (c *Converter) Run(ctx context.Context, paths []string) Summary {
	sum := Summary{
		RunID:      c.log.RunID(),
		TotalFiles: len(paths),
		Files:      make([]FileResult, len(paths)),
	}
	c.log.Printf("start: %d file(s), workers=%d", len(paths), c.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.cfg.Workers, 1))
	for i, p := range paths {
		if err := gctx.Err(); err != nil {
			sum.Files[i] = FileResult{Input: p, Error: err.Error()}
			continue
		}
		i, p := i, p
		g.Go(func() error {
			sum.Files[i], _ = c.ConvertFile(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	var subjectFiles []string
	for _, f := range sum.Files {
		if f.Error != "" {
			sum.Failed++
			continue
		}
		sum.Converted++
		if f.SubjectFile != "" {
			subjectFiles = append(subjectFiles, f.SubjectFile)
		}
	}

	if err := ctx.Err(); err != nil {
		sum.UnionError = err.Error()
		return sum
	}
	union, err := c.Union(subjectFiles)
	if err != nil {
		sum.UnionError = err.Error()
		c.log.Printf("error: %v", err)
	}
	sum.Union = union
	c.log.Printf("finish: converted=%d failed=%d", sum.Converted, sum.Failed)
	return sum
}

// ConvertFile converts one export. On failure the message is also written
// to an error file in the output directory.
func (c *Converter) ConvertFile(ctx context.Context, path string) (FileResult, error) {
	res := FileResult{Input: path}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res, err
	}
	log := c.log.For(filepath.Base(path))
	log.Printf("start")
	if err := c.convert(path, &res, log); err != nil {
		res.Error = err.Error()
		log.Printf("error: %v", err)
		res.ErrorFile = c.writeErrorFile(path, err, log)
		return res, err
	}
	log.Printf("done: %d output(s)", len(res.Outputs))
	return res, nil
}

func (c *Converter) convert(path string, res *FileResult, log *logging.Source) error {
	period, err := parser.PeriodFromFilename(path)
	if err != nil {
		return err
	}
	res.Period = period.String()
	log.Printf("filename parsed: %s", period)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return err
	}
	sheet, err := parser.ReadSheet(path)
	if err != nil {
		return err
	}
	res.Encoding = string(sheet.Encoding)
	log.Printf("input decoded as %s", sheet.Encoding)

	rows := sheet.Rows
	if len(rows) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewRows, len(rows))
	}
	log.Printf("rows read: %d", len(rows))

	layout := c.cfg.Layout()
	report.NormalizeProjectRow(rows, layout.HeaderRows)
	if i := report.FindSubjectHeaderRow(rows, layout.HeaderRows+1, layout.SubjectHeader); i >= 0 {
		report.NormalizeProjectRow(rows, i)
	}
	log.Printf("project names normalized")

	if err := c.checkPeriod(period, util.Cell(rows[1], 1), res, log); err != nil {
		return err
	}

	pl, cost := report.Split(rows, layout)
	log.Printf("output rows prepared: %d (cost report rows: %d)", len(pl), len(cost))

	if !period.After(c.cfg.ExpenseCutoff()) {
		res.ExpenseInserted = report.InsertExpenseColumns(pl, c.cfg.Expense.Anchor, c.cfg.Expense.Columns)
		log.Printf("company expense columns inserted: %t", res.ExpenseInserted)
	}
	res.LabelsReplaced = report.ReplaceLabels(pl, c.cfg.Replacements())
	log.Printf("company expense labels replaced: %d", res.LabelsReplaced)

	if err := c.write(res, log, PLPath(c.cfg.OutputDir, period), pl); err != nil {
		return err
	}
	if len(cost) > 0 {
		if err := c.write(res, log, CostPath(c.cfg.OutputDir, period), cost); err != nil {
			return err
		}
		subjects := SubjectVerticalPath(c.cfg.OutputDir, period)
		if err := c.write(res, log, subjects, util.FirstColumn(cost)); err != nil {
			return err
		}
		res.SubjectFile = subjects
	}
	return c.write(res, log, ProjectVerticalPath(c.cfg.OutputDir, period), report.ProjectVertical(pl))
}

func (c *Converter) checkPeriod(fromName models.Period, cell string, res *FileResult, log *logging.Source) error {
	log.Printf("B2 value: %s", cell)
	if strings.Contains(parser.StripSpaces(cell), reversalMarker) {
		res.PeriodCheckSkipped = true
		log.Printf("period parse skipped due to %s; using filename", reversalMarker)
		return nil
	}
	fromCell, err := parser.PeriodFromCell(cell)
	if err != nil {
		return err
	}
	log.Printf("period parsed: %s", fromCell)
	if fromCell != fromName {
		return fmt.Errorf("%w: filename=%s period=%s", ErrPeriodMismatch, fromName, fromCell)
	}
	log.Printf("period matches filename")
	return nil
}

func (c *Converter) write(res *FileResult, log *logging.Source, path string, rows [][]string) error {
	if err := parser.WriteTSV(path, rows); err != nil {
		return err
	}
	res.Outputs = append(res.Outputs, path)
	log.Printf("tsv written: %s", path)
	return nil
}

func (c *Converter) writeErrorFile(input string, cause error, log *logging.Source) string {
	path := ErrorPath(c.cfg.OutputDir, input)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("error file not written: %v", err)
		return ""
	}
	if err := os.WriteFile(path, []byte(cause.Error()), 0o644); err != nil {
		log.Printf("error file not written: %v", err)
		return ""
	}
	return path
}

// Union merges the subject order of every subject vertical file and writes
// the merged order next to each of them. No files is a no-op.
func (c *Converter) Union(subjectFiles []string) (*UnionResult, error) {
	if len(subjectFiles) == 0 {
		return nil, nil
	}
	seqs := make([][]string, 0, len(subjectFiles))
	for _, f := range subjectFiles {
		rows, err := parser.ReadTSV(f)
		if err != nil {
			return nil, fmt.Errorf("read subjects: %w", err)
		}
		seqs = append(seqs, reconcile.UniqueSubjectsFromRows(rows))
	}

	merged := reconcile.Reconcile(seqs)
	out := &UnionResult{
		Sources:   subjectFiles,
		Subjects:  merged.Order,
		Cyclic:    merged.Cyclic,
		Conflicts: merged.Conflicts,
	}
	c.log.Printf("union merged %d subject(s) from %d file(s), edges=%d", len(merged.Order), merged.Sources, merged.Edges)
	if merged.Cyclic {
		for _, e := range merged.Conflicts {
			c.log.Printf("union order conflict: %s -> %s; using appearance order", e.Before, e.After)
		}
	}

	table := util.Column(merged.Order)
	for _, f := range subjectFiles {
		dst := UnionPath(f)
		if err := parser.WriteTSV(dst, table); err != nil {
			return out, err
		}
		out.Outputs = append(out.Outputs, dst)
		c.log.Printf("union vertical tsv written: %s", dst)
	}
	return out, nil
}
