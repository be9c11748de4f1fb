package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"goboot/domain/core"
	"goboot/domain/dataset"
	"goboot/internal"

	"github.com/xuri/excelize/v2"
)

// Reader loads xlsx workbooks and csv files into datasets. Column kinds
// are resolved here, at the ingestion boundary.
type Reader struct {
	logger *internal.Logger
}

func NewReader(logger *internal.Logger) *Reader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Reader{logger: logger}
}

// Extensions lists the file extensions this reader accepts.
func (r *Reader) Extensions() []string {
	return []string{".xlsx", ".xlsm", ".csv"}
}

// Read loads the file at source into a dataset. The first row is the
// header; every later row is data.
func (r *Reader) Read(ctx context.Context, source string) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCancelled, err)
	}
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: data file %s", core.ErrNotFound, source)
	}

	start := time.Now()
	var rows [][]string
	var err error

	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".csv":
		rows, err = r.readCSVRows(source)
	case ".xlsx", ".xlsm":
		rows, err = r.readWorkbookRows(source)
	default:
		return nil, core.NewInvalidInputError("source", fmt.Sprintf("unsupported file extension %q", ext))
	}
	if err != nil {
		return nil, err
	}

	ds, err := r.toDataset(rows)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Loaded %s (%d rows, %d columns) in %.2fms",
		filepath.Base(source), ds.Rows(), ds.ColumnCount(),
		float64(time.Since(start).Nanoseconds())/1e6)
	return ds, nil
}

func (r *Reader) readWorkbookRows(source string) ([][]string, error) {
	f, err := excelize.OpenFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.NewInvalidInputError("workbook", "no sheets found")
	}

	// Data always comes from the first sheet.
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	r.logger.Debug("Read sheet %s (%d raw rows)", sheets[0], len(rows))
	return rows, nil
}

func (r *Reader) readCSVRows(source string) ([][]string, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// toDataset converts raw string rows into a typed dataset. Ragged rows
// are padded with empty cells so every column keeps the full row count.
func (r *Reader) toDataset(rows [][]string) (*dataset.Dataset, error) {
	if len(rows) < 2 {
		return nil, core.NewInvalidInputError("source",
			"file must have a header row and at least one data row")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	raw := make([][]string, len(headers))
	for i := range raw {
		raw[i] = make([]string, len(rows)-1)
	}
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		for colIdx := range headers {
			if colIdx < len(rows[rowIdx]) {
				raw[colIdx][rowIdx-1] = rows[rowIdx][colIdx]
			}
		}
	}

	columns := make([]dataset.Column, len(headers))
	for i, header := range headers {
		columns[i] = dataset.InferColumn(header, raw[i])
	}
	return dataset.New(columns...)
}
