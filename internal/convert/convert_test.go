package convert_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"

	"plsummary-service/internal/config"
	"plsummary-service/internal/convert"
	"plsummary-service/internal/logging"
	"plsummary-service/internal/models"
	"plsummary-service/internal/parser"
	"plsummary-service/internal/reconcile"
)

func newConverter(t *testing.T, workers int) (*convert.Converter, string, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.Workers = workers
	var buf bytes.Buffer
	return convert.New(cfg, logging.NewWriter(&buf)), cfg.OutputDir, &buf
}

func readTSV(t *testing.T, path string) [][]string {
	t.Helper()
	rows, err := parser.ReadTSV(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

// writeExport lays out a sheet the way the accounting system exports it:
// seven preamble rows with the period in B2, then the P&L and cost report.
func writeExport(t *testing.T, dir, name, period string, body ...[]string) string {
	t.Helper()
	rows := [][]string{
		{"損益計算書"},
		{"集計期間", period},
		{"会社名", "テスト"},
		{}, {}, {}, {},
	}
	rows = append(rows, body...)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_FixturesEndToEnd(t *testing.T) {
	conv, out, logBuf := newConverter(t, 2)
	inputs := []string{
		filepath.Join("..", "..", "testdata", "pl", "PL_25.6.csv"),
		filepath.Join("..", "..", "testdata", "pl", "PL_25.8.csv"),
	}

	sum := conv.Run(context.Background(), inputs)

	if !sum.OK() || sum.Converted != 2 || sum.Failed != 0 {
		t.Fatalf("summary: %+v", sum)
	}
	if sum.Files[0].Input != inputs[0] || sum.Files[1].Input != inputs[1] {
		t.Fatalf("results out of input order: %+v", sum.Files)
	}

	june := models.Period{Year: 2025, Month: 6}
	pl := readTSV(t, convert.PLPath(out, june))
	wantHeader := []string{
		"科目名", "A001_本社", "本部",
		"C001_1Cカンパニー販管費", "C002_2Cカンパニー販管費", "C003_3Cカンパニー販管費",
		"C004_4Cカンパニー販管費", "C005_事業開発カンパニー販管費", "C006_社長室カンパニー販管費",
		"C007_本部カンパニー販管費", "P00001_新工場",
	}
	if !reflect.DeepEqual(pl[0], wantHeader) {
		t.Fatalf("june header got=%q want=%q", pl[0], wantHeader)
	}
	wantSales := []string{"売上高", "100", "200", "0", "0", "0", "0", "0", "0", "0", "300"}
	if !reflect.DeepEqual(pl[1], wantSales) {
		t.Fatalf("june sales got=%q want=%q", pl[1], wantSales)
	}
	if len(pl) != 3 || pl[2][0] != "当期純利益" {
		t.Fatalf("june pl rows: %q", pl)
	}
	if !sum.Files[0].ExpenseInserted || sum.Files[0].LabelsReplaced != 7 {
		t.Fatalf("june result: %+v", sum.Files[0])
	}

	cost := readTSV(t, convert.CostPath(out, june))
	if !reflect.DeepEqual(cost[0], []string{"科目名", "P00001_新工場", "P00002_【保守】"}) {
		t.Fatalf("june cost header got=%q", cost[0])
	}

	vertical := readTSV(t, convert.ProjectVerticalPath(out, june))
	if !reflect.DeepEqual(vertical[0], []string{"PJ名称", "売上高", "当期純利益"}) {
		t.Fatalf("june project vertical header got=%q", vertical[0])
	}
	if last := vertical[len(vertical)-1]; !reflect.DeepEqual(last, []string{"P00001_新工場", "300", "30"}) {
		t.Fatalf("june project vertical last got=%q", last)
	}

	august := models.Period{Year: 2025, Month: 8}
	augPL := readTSV(t, convert.PLPath(out, august))
	wantAug := []string{"科目名", "A001_本社", "本部", "C001_1Cカンパニー販管費", "P00001_新工場"}
	if !reflect.DeepEqual(augPL[0], wantAug) {
		t.Fatalf("august header got=%q want=%q", augPL[0], wantAug)
	}
	if sum.Files[1].ExpenseInserted {
		t.Fatalf("august is after the cutoff: %+v", sum.Files[1])
	}

	wantUnion := []string{"科目名", "材料費", "外注費", "労務費", "経費", "当期製品製造原価"}
	if sum.Union == nil || !reflect.DeepEqual(sum.Union.Subjects, wantUnion) || sum.Union.Cyclic {
		t.Fatalf("union got=%+v want subjects=%q", sum.Union, wantUnion)
	}
	for _, p := range []models.Period{june, august} {
		unionFile := convert.UnionPath(convert.SubjectVerticalPath(out, p))
		got := reconcile.UniqueSubjectsFromRows(readTSV(t, unionFile))
		if !reflect.DeepEqual(got, wantUnion) {
			t.Fatalf("%s got=%q want=%q", unionFile, got, wantUnion)
		}
	}

	log := logBuf.String()
	for _, want := range []string{
		"PL_25.6.csv: input decoded as utf-8",
		"PL_25.8.csv: period matches filename",
		"company expense columns inserted: true",
		"union vertical tsv written:",
	} {
		if !strings.Contains(log, want) {
			t.Fatalf("debug log missing %q:\n%s", want, log)
		}
	}
}

func TestConvertFile_PeriodMismatchWritesErrorFile(t *testing.T) {
	conv, out, _ := newConverter(t, 1)
	in := writeExport(t, t.TempDir(), "PL_25.9.csv", "自 2025年8月度",
		[]string{"科目名", "本部"},
		[]string{"当期純利益", "1"},
	)

	res, err := conv.ConvertFile(context.Background(), in)
	if !errors.Is(err, convert.ErrPeriodMismatch) {
		t.Fatalf("err got=%v want ErrPeriodMismatch", err)
	}
	wantFile := filepath.Join(out, "損益計算書_2025年09月_error.txt")
	if res.ErrorFile != wantFile {
		t.Fatalf("ErrorFile got=%q want=%q", res.ErrorFile, wantFile)
	}
	data, err := os.ReadFile(wantFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != res.Error {
		t.Fatalf("error file got=%q want=%q", data, res.Error)
	}
	if len(res.Outputs) != 0 {
		t.Fatalf("no outputs expected on failure: %q", res.Outputs)
	}
}

func TestConvertFile_ReversalSkipsPeriodCheck(t *testing.T) {
	conv, out, _ := newConverter(t, 1)
	in := writeExport(t, t.TempDir(), "PL_25.4.csv", "期首 振戻",
		[]string{"科目名", "本部"},
		[]string{"当期純利益", "1"},
	)
	res, err := conv.ConvertFile(context.Background(), in)
	if err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	if !res.PeriodCheckSkipped {
		t.Fatalf("expected period check to be skipped: %+v", res)
	}
	if res.SubjectFile != "" {
		t.Fatalf("no cost report, no subject file: %+v", res)
	}
	want := []string{
		convert.PLPath(out, models.Period{Year: 2025, Month: 4}),
		convert.ProjectVerticalPath(out, models.Period{Year: 2025, Month: 4}),
	}
	if !reflect.DeepEqual(res.Outputs, want) {
		t.Fatalf("outputs got=%q want=%q", res.Outputs, want)
	}
}

func TestConvertFile_Failures(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "PL_25.2.csv")
	if err := os.WriteFile(short, []byte("only one row\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	badCell := writeExport(t, dir, "PL_25.3.csv", "期間なし", []string{"科目名"})

	cases := []struct {
		name      string
		path      string
		want      error
		errorFile string
	}{
		{"bad filename", filepath.Join(dir, "report.csv"), parser.ErrFilenamePeriod, "report.csv_error.txt"},
		{"missing input", filepath.Join(dir, "PL_25.1.csv"), convert.ErrMissingInput, "損益計算書_2025年01月_error.txt"},
		{"too few rows", short, convert.ErrTooFewRows, "損益計算書_2025年02月_error.txt"},
		{"unreadable period", badCell, parser.ErrCellPeriod, "損益計算書_2025年03月_error.txt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conv, out, _ := newConverter(t, 1)
			res, err := conv.ConvertFile(context.Background(), tc.path)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err got=%v want=%v", err, tc.want)
			}
			if res.ErrorFile != filepath.Join(out, tc.errorFile) {
				t.Fatalf("ErrorFile got=%q want=%q", res.ErrorFile, tc.errorFile)
			}
			if _, err := os.Stat(res.ErrorFile); err != nil {
				t.Fatalf("error file not written: %v", err)
			}
		})
	}
}

func TestConvertFile_CP932(t *testing.T) {
	conv, out, _ := newConverter(t, 1)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{"損益計算書"}, {"集計期間", "自 2025年10月度"}, {}, {}, {}, {}, {},
		{"科目名", "P12345 工事"},
		{"当期純利益", "5"},
		{"科目名", "P12345 工事"},
		{"材料費", "5"},
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatal(err)
	}
	encoded, err := japanese.ShiftJIS.NewEncoder().Bytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(t.TempDir(), "PL_25.10.csv")
	if err := os.WriteFile(in, encoded, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := conv.ConvertFile(context.Background(), in)
	if err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	if res.Encoding != string(models.EncodingCP932) {
		t.Fatalf("Encoding got=%q", res.Encoding)
	}
	october := models.Period{Year: 2025, Month: 10}
	pl := readTSV(t, convert.PLPath(out, october))
	if !reflect.DeepEqual(pl[0], []string{"科目名", "P12345_工事"}) {
		t.Fatalf("header got=%q", pl[0])
	}
	subjects := readTSV(t, convert.SubjectVerticalPath(out, october))
	if !reflect.DeepEqual(subjects, [][]string{{"科目名"}, {"材料費"}}) {
		t.Fatalf("subjects got=%q", subjects)
	}
}

func TestRun_ConflictingSubjectOrderFallsBack(t *testing.T) {
	conv, out, logBuf := newConverter(t, 3)
	dir := t.TempDir()
	a := writeExport(t, dir, "PL_25.1.csv", "2025/01",
		[]string{"当期純利益", "1"},
		[]string{"科目名", "x"},
		[]string{"材料費", "1"},
		[]string{"労務費", "1"},
	)
	b := writeExport(t, dir, "PL_25.2.csv", "2025/02",
		[]string{"当期純利益", "1"},
		[]string{"科目名", "x"},
		[]string{"労務費", "1"},
		[]string{"材料費", "1"},
	)
	bad := filepath.Join(dir, "notes.csv")

	sum := conv.Run(context.Background(), []string{a, bad, b})
	if sum.Converted != 2 || sum.Failed != 1 || sum.OK() {
		t.Fatalf("summary: %+v", sum)
	}
	if sum.Files[1].Input != bad || sum.Files[1].Error == "" {
		t.Fatalf("failed file result: %+v", sum.Files[1])
	}
	u := sum.Union
	if u == nil || !u.Cyclic {
		t.Fatalf("expected cyclic union: %+v", u)
	}
	if want := []string{"科目名", "材料費", "労務費"}; !reflect.DeepEqual(u.Subjects, want) {
		t.Fatalf("subjects got=%q want=%q", u.Subjects, want)
	}
	if want := []reconcile.Edge{{Before: "労務費", After: "材料費"}}; !reflect.DeepEqual(u.Conflicts, want) {
		t.Fatalf("conflicts got=%+v want=%+v", u.Conflicts, want)
	}
	if len(u.Outputs) != 2 {
		t.Fatalf("union outputs got=%q", u.Outputs)
	}
	if _, err := os.Stat(convert.UnionPath(convert.SubjectVerticalPath(out, models.Period{Year: 2025, Month: 2}))); err != nil {
		t.Fatalf("union file missing: %v", err)
	}
	if !strings.Contains(logBuf.String(), "union order conflict: 労務費 -> 材料費") {
		t.Fatalf("conflict not logged:\n%s", logBuf.String())
	}
}

func TestRun_CanceledContext(t *testing.T) {
	conv, _, _ := newConverter(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := conv.Run(ctx, []string{filepath.Join("..", "..", "testdata", "pl", "PL_25.6.csv")})
	if sum.Failed != 1 || sum.Converted != 0 || sum.UnionError == "" || sum.Union != nil {
		t.Fatalf("summary: %+v", sum)
	}
}

func TestUnion_NoFilesIsNoop(t *testing.T) {
	conv, _, _ := newConverter(t, 1)
	u, err := conv.Union(nil)
	if err != nil || u != nil {
		t.Fatalf("got=%+v err=%v", u, err)
	}
}

func TestUnionPath(t *testing.T) {
	cases := map[string]string{
		filepath.Join("out", "製造原価報告書_2025年06月_科目名_vertical.tsv"): filepath.Join("out", "製造原価報告書_2025年06月_科目名_A∪B_vertical.tsv"),
		"subjects.tsv": "subjects_A∪B.tsv",
	}
	for in, want := range cases {
		if got := convert.UnionPath(in); got != want {
			t.Fatalf("%s: got=%q want=%q", in, got, want)
		}
	}
}

func TestHumanSummary(t *testing.T) {
	s := convert.Summary{
		TotalFiles: 2,
		Converted:  1,
		Failed:     1,
		Files: []convert.FileResult{
			{Input: "PL_25.6.csv", Period: "2025-06", Encoding: "utf-8", Outputs: []string{"損益計算書_2025年06月.tsv"}},
			{Input: "bad.csv", Error: "boom", ErrorFile: "bad.csv_error.txt"},
		},
		Union: &convert.UnionResult{
			Sources:   []string{"a"},
			Subjects:  []string{"X", "Y"},
			Cyclic:    true,
			Conflicts: []reconcile.Edge{{Before: "Y", After: "X"}},
		},
	}
	out := convert.HumanSummary(s)
	for _, want := range []string{
		"Total files: 2",
		"- bad.csv: FAILED: boom",
		"error file: bad.csv_error.txt",
		"Merged subjects: 2 from 1 file(s)",
		"- Y -> X",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
