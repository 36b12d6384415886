package audit

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// Excel limits sheet names to 31 characters.
const maxSheetName = 31

// ExcelWriter writes tabular data as an xlsx workbook.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	Close() error
}

// ExcelizeWriter implements ExcelWriter using excelize.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
	headerStyle  int
}

func NewExcelizeWriter() ExcelWriter {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		style = 0
	}
	return &ExcelizeWriter{file: f, headerStyle: style}
}

func (w *ExcelizeWriter) AddSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &columns); err != nil {
		return err
	}

	if w.headerStyle != 0 && len(columns) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, cell, end, w.headerStyle)
	}
	if err := w.file.SetPanes(w.currentSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	w.currentRow++
	return nil
}

// WriteRow writes one data row. Times are rendered as RFC 3339 UTC strings.
func (w *ExcelizeWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	values := make([]any, len(row))
	for i, v := range row {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339)
		}
		values[i] = v
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &values); err != nil {
		return err
	}

	w.currentRow++
	return nil
}

func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
