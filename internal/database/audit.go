package database

import (
	"context"
	"fmt"
	"strings"
)

// exportTable names a table and the columns that may leave the database.
type exportTable struct {
	name    string
	columns []string
}

// Password hashes never appear in exports.
var exportTables = []exportTable{
	{"bookings", []string{"id", "owner_id", "title", "description", "start_time", "end_time", "status", "created_at", "updated_at"}},
	{"booking_events", []string{"id", "booking_id", "from_status", "to_status", "actor_id", "created_at"}},
	{"users", []string{"id", "name", "email", "role", "created_at"}},
}

// GetTableNames returns the tables included in audit exports.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	names := make([]string, len(exportTables))
	for i, t := range exportTables {
		names[i] = t.name
	}
	return names, nil
}

// GetTableData returns all exportable rows from a table as maps.
func (db *DB) GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error) {
	var table *exportTable
	for i := range exportTables {
		if exportTables[i].name == tableName {
			table = &exportTables[i]
			break
		}
	}
	if table == nil {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid",
		strings.Join(table.columns, ", "), table.name))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(table.columns))
		ptrs := make([]any, len(table.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(table.columns))
		for i, col := range table.columns {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}

	return result, table.columns, rows.Err()
}
