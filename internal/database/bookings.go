package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/google/uuid"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const overlapsApproved = `EXISTS (
	SELECT 1 FROM bookings o
	WHERE o.status = 'approved' AND o.id <> ? AND o.start_time < ? AND o.end_time > ?)`

var allColumns = columnList(models.AllFields)

func columnList(fields []models.Field) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column()
	}
	return strings.Join(cols, ", ")
}

func scanTargets(b *models.Booking, fields []models.Field) []any {
	dest := make([]any, len(fields))
	for i, f := range fields {
		switch f {
		case models.FieldID:
			dest[i] = &b.ID
		case models.FieldOwnerID:
			dest[i] = &b.OwnerID
		case models.FieldTitle:
			dest[i] = &b.Title
		case models.FieldDescription:
			dest[i] = &b.Description
		case models.FieldStartTime:
			dest[i] = &b.StartTime
		case models.FieldEndTime:
			dest[i] = &b.EndTime
		case models.FieldStatus:
			dest[i] = &b.Status
		case models.FieldCreatedAt:
			dest[i] = &b.CreatedAt
		case models.FieldUpdatedAt:
			dest[i] = &b.UpdatedAt
		}
	}
	return dest
}

// bindValue converts typed filter values into driver values.
func bindValue(v any) any {
	switch val := v.(type) {
	case models.Status:
		return string(val)
	case time.Time:
		return val.UTC()
	default:
		return v
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// CreateBooking stores a new pending booking and records its first status event.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	b.Normalize()
	if err := b.Validate(); err != nil {
		return err
	}

	ts := now()
	b.ID = uuid.NewString()
	b.Status = models.StatusPending
	b.CreatedAt = ts
	b.UpdatedAt = ts

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, owner_id, title, description, start_time, end_time, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.Title, b.Description, b.StartTime, b.EndTime, string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := insertEvent(ctx, tx, models.StatusEvent{
		BookingID: b.ID,
		To:        models.StatusPending,
		ActorID:   b.OwnerID,
		At:        ts,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// GetBooking returns a booking by ID.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func getBooking(ctx context.Context, q querier, id string) (*models.Booking, error) {
	var b models.Booking
	err := q.QueryRowContext(ctx,
		`SELECT `+allColumns+` FROM bookings WHERE id = ?`, id,
	).Scan(scanTargets(&b, models.AllFields)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.BookingNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

func buildWhere(conds []models.Condition) (string, []any) {
	if len(conds) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	for _, c := range conds {
		col := c.Field.Column()
		if c.Op == models.OpIn {
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, placeholders))
			for _, v := range c.Values {
				args = append(args, bindValue(v))
			}
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", col, c.Op.SQL()))
		args = append(args, bindValue(c.Values[0]))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildOrder(keys []models.SortKey) string {
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, k.Field.Column()+" "+dir)
	}
	// Stable order across pages for equal sort keys.
	parts = append(parts, "id ASC")
	return " ORDER BY " + strings.Join(parts, ", ")
}

// ListBookings returns one page of bookings matching the query plus the total match count.
func (db *DB) ListBookings(ctx context.Context, q models.ListQuery) (*models.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.Normalize()

	where, args := buildWhere(q.Conditions)

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}

	fields := q.Columns()
	query := `SELECT ` + columnList(fields) + ` FROM bookings` + where + buildOrder(q.Sort) + ` LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, q.Limit, q.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	items := make([]models.Booking, 0, q.Limit)
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(scanTargets(&b, fields)...); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return models.NewPage(q, items, total), nil
}

// UpdateBooking merges the patch into the stored booking. Status is never changed here.
// An approved booking may not be moved onto another approved booking, and a
// patch with RequireStatus is refused once the booking has left that status.
func (db *DB) UpdateBooking(ctx context.Context, id string, patch models.BookingPatch) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b, err := getBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.CheckStatus(b); err != nil {
		return nil, err
	}

	moved := patch.ChangesInterval(b)
	if err := patch.Apply(b); err != nil {
		return nil, err
	}

	if moved && b.Status == models.StatusApproved {
		var clash bool
		if err := tx.QueryRowContext(ctx, `SELECT `+overlapsApproved, id, b.EndTime, b.StartTime).Scan(&clash); err != nil {
			return nil, fmt.Errorf("check overlap: %w", err)
		}
		if clash {
			return nil, domain.Conflict("This time slot is already booked by another approved event")
		}
	}

	b.UpdatedAt = now()
	_, err = tx.ExecContext(ctx, `
		UPDATE bookings
		SET title = ?, description = ?, start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ?`,
		b.Title, b.Description, b.StartTime, b.EndTime, b.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// DeleteBooking removes a booking and its status history.
func (db *DB) DeleteBooking(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_events WHERE booking_id = ?`, id); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.BookingNotFound(id)
	}
	return tx.Commit()
}

// FindOverlapping returns bookings in the given statuses whose range intersects
// [iv.Start, iv.End), skipping excludeID when it is set.
func (db *DB) FindOverlapping(ctx context.Context, iv models.Interval, statuses []models.Status, excludeID string) ([]models.Booking, error) {
	query := `SELECT ` + allColumns + ` FROM bookings WHERE start_time < ? AND end_time > ?`
	args := []any{iv.End.UTC(), iv.Start.UTC()}

	if len(statuses) > 0 {
		query += ` AND status IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ") + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	if excludeID != "" {
		query += ` AND id <> ?`
		args = append(args, excludeID)
	}
	query += ` ORDER BY start_time ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find overlapping: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(scanTargets(&b, models.AllFields)...); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetBookingStatus moves a booking to change.To in one conditional write.
// The write succeeds only if the current status differs from the target and,
// for approvals, no other approved booking overlaps.
func (db *DB) SetBookingStatus(ctx context.Context, id string, change models.StatusChange) (*models.Booking, error) {
	if !change.To.Valid() {
		return nil, domain.Validation("Invalid status %q", change.To)
	}
	if change.At.IsZero() {
		change.At = now()
	}
	change.At = change.At.UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`
	args := []any{string(change.To), change.At, id, string(change.To)}
	if change.To == models.StatusApproved {
		query += ` AND NOT ` + overlapsApproved
		args = append(args, id, current.EndTime, current.StartTime)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if current.Status == change.To {
			return nil, domain.InvalidState("This booking is already %s", change.To)
		}
		return nil, domain.Conflict("This time slot is already booked by another approved event")
	}

	if err := insertEvent(ctx, tx, models.StatusEvent{
		BookingID: id,
		From:      current.Status,
		To:        change.To,
		ActorID:   change.ActorID,
		At:        change.At,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	current.Status = change.To
	current.UpdatedAt = change.At
	return current, nil
}

func insertEvent(ctx context.Context, q querier, e models.StatusEvent) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO booking_events (booking_id, from_status, to_status, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.BookingID, string(e.From), string(e.To), e.ActorID, e.At,
	)
	if err != nil {
		return fmt.Errorf("insert status event: %w", err)
	}
	return nil
}

// BookingHistory returns the status transitions of a booking, oldest first.
func (db *DB) BookingHistory(ctx context.Context, id string) ([]models.StatusEvent, error) {
	if _, err := db.GetBooking(ctx, id); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_id, created_at
		FROM booking_events WHERE booking_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var events []models.StatusEvent
	for rows.Next() {
		var e models.StatusEvent
		if err := rows.Scan(&e.ID, &e.BookingID, &e.From, &e.To, &e.ActorID, &e.At); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ApprovedOverlaps returns every pair of approved bookings whose ranges intersect.
func (db *DB) ApprovedOverlaps(ctx context.Context) ([]models.OverlapPair, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT a.id, b.id FROM bookings a
		JOIN bookings b ON a.id < b.id
		WHERE a.status = 'approved' AND b.status = 'approved'
		  AND a.start_time < b.end_time AND a.end_time > b.start_time
		ORDER BY a.id, b.id`)
	if err != nil {
		return nil, fmt.Errorf("approved overlaps: %w", err)
	}
	defer rows.Close()

	var pairs []models.OverlapPair
	for rows.Next() {
		var p models.OverlapPair
		if err := rows.Scan(&p.First, &p.Second); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
