// Package audit exports the booking tables as an xlsx workbook, on demand
// and on a schedule.
package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// TableSource provides the tables to export.
type TableSource interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// Exporter renders every exportable table into its own sheet.
type Exporter struct {
	source    TableSource
	newWriter func() ExcelWriter
	logger    zerolog.Logger
}

func NewExporter(source TableSource, logger zerolog.Logger) *Exporter {
	return &Exporter{
		source:    source,
		newWriter: NewExcelizeWriter,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

// Export writes the workbook to w. A table that fails to load is skipped and
// logged; the workbook still contains the others.
func (e *Exporter) Export(ctx context.Context, w io.Writer) error {
	tables, err := e.source.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		return fmt.Errorf("no tables to export")
	}

	excel := e.newWriter()
	defer excel.Close()

	sheets := 0
	for _, table := range tables {
		rows, columns, err := e.source.GetTableData(ctx, table)
		if err != nil {
			e.logger.Error().Err(err).Str("table", table).Msg("failed to get table data")
			continue
		}
		if err := excel.AddSheet(table); err != nil {
			return err
		}
		if err := excel.WriteHeader(columns); err != nil {
			return fmt.Errorf("write header %s: %w", table, err)
		}
		for _, row := range rows {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := excel.WriteRow(values); err != nil {
				return fmt.Errorf("write row %s: %w", table, err)
			}
		}
		sheets++
		e.logger.Debug().Str("table", table).Int("rows", len(rows)).Msg("exported table")
	}
	if sheets == 0 {
		return fmt.Errorf("every table failed to export")
	}

	return excel.Save(w)
}

// Filename names an export taken at t.
func Filename(t time.Time) string {
	return "auditorium_" + t.UTC().Format("2006-01-02_150405") + ".xlsx"
}
