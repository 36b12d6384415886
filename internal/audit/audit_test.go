package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeSource struct {
	tables map[string][]map[string]any
	order  []string
	broken string
}

func (f *fakeSource) GetTableNames(ctx context.Context) ([]string, error) {
	return f.order, nil
}

func (f *fakeSource) GetTableData(ctx context.Context, table string) ([]map[string]any, []string, error) {
	if table == f.broken {
		return nil, nil, errors.New("no such table")
	}
	return f.tables[table], []string{"id", "title", "start_time"}, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		order: []string{"bookings", "booking_events"},
		tables: map[string][]map[string]any{
			"bookings": {
				{"id": "b1", "title": "Lecture", "start_time": time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)},
				{"id": "b2", "title": "Concert", "start_time": time.Date(2030, 5, 2, 18, 0, 0, 0, time.UTC)},
			},
			"booking_events": {},
		},
	}
}

func TestExporter_Export(t *testing.T) {
	src := newFakeSource()
	exp := NewExporter(src, zerolog.New(io.Discard))

	var buf bytes.Buffer
	require.NoError(t, exp.Export(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"bookings", "booking_events"}, f.GetSheetList())

	rows, err := f.GetRows("bookings")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "title", "start_time"}, rows[0])
	assert.Equal(t, []string{"b1", "Lecture", "2030-05-01T09:00:00Z"}, rows[1])
}

func TestExporter_SkipsBrokenTable(t *testing.T) {
	src := newFakeSource()
	src.broken = "booking_events"
	exp := NewExporter(src, zerolog.New(io.Discard))

	var buf bytes.Buffer
	require.NoError(t, exp.Export(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"bookings"}, f.GetSheetList())
}

func TestExporter_NothingToExport(t *testing.T) {
	exp := NewExporter(&fakeSource{}, zerolog.New(io.Discard))
	assert.Error(t, exp.Export(context.Background(), io.Discard))
}

func TestService_ExportNow(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(NewExporter(newFakeSource(), zerolog.New(io.Discard)), DirSink{Dir: dir}, time.Hour, zerolog.New(io.Discard))
	svc.now = func() time.Time { return time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC) }

	location, err := svc.ExportNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "auditorium_2030-01-02_030405.xlsx"), location)

	info, err := os.Stat(location)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestService_StartStop(t *testing.T) {
	svc := NewService(NewExporter(newFakeSource(), zerolog.New(io.Discard)), DirSink{Dir: t.TempDir()}, time.Hour, zerolog.New(io.Discard))
	svc.Start()
	svc.Start()
	svc.Stop()
	svc.Stop()
}
