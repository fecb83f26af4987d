package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"plsummary-service/internal/models"
)

var ErrUnsupportedInput = errors.New("unsupported input file type")

// Sheet is one exported report, read as a ragged table of cells.
type Sheet struct {
	Path     string
	Encoding models.Encoding
	Rows     [][]string
}

// ReadSheet reads a .csv or .xlsx export.
// CSV bytes are tried as UTF-8 (BOM optional) first and fall back to CP932,
// which is what the accounting system emits on Windows.
func ReadSheet(path string) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		rows, enc, err := DecodeCSV(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return &Sheet{Path: path, Encoding: enc, Rows: rows}, nil
	case ".xlsx":
		rows, err := readXLSX(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return &Sheet{Path: path, Encoding: models.EncodingXLSX, Rows: rows}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, filepath.Base(path))
	}
}

// DecodeCSV parses comma separated bytes, detecting the encoding.
func DecodeCSV(data []byte) ([][]string, models.Encoding, error) {
	var (
		src io.Reader
		enc models.Encoding
	)
	if utf8.Valid(data) {
		src = transform.NewReader(bytes.NewReader(data), unicode.UTF8BOM.NewDecoder())
		enc = models.EncodingUTF8
	} else {
		src = transform.NewReader(bytes.NewReader(data), japanese.ShiftJIS.NewDecoder())
		enc = models.EncodingCP932
	}
	rows, err := readDelimited(src, ',')
	if err != nil {
		return nil, enc, fmt.Errorf("read csv (%s): %w", enc, err)
	}
	return rows, enc, nil
}

// readDelimited keeps blank lines as empty rows; encoding/csv drops them,
// which would shift the fixed row positions the report layout relies on.
func readDelimited(r io.Reader, comma rune) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	var out [][]string
	lastLine := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		start, _ := cr.FieldPos(0)
		for ; lastLine+1 < start; lastLine++ {
			out = append(out, []string{})
		}
		last := len(rec) - 1
		endLine, _ := cr.FieldPos(last)
		lastLine = endLine + strings.Count(rec[last], "\n")
		out = append(out, rec)
	}
	return out, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
