// Package postgres is the PostgreSQL booking and user store built on GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// approvalLockKey serializes approvals across processes via pg_advisory_xact_lock.
const approvalLockKey = 7_310_001

type bookingRecord struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	OwnerID     string    `gorm:"type:uuid;not null;index"`
	Title       string    `gorm:"size:100;not null"`
	Description string    `gorm:"size:500;not null"`
	StartTime   time.Time `gorm:"not null;index:idx_bookings_status_times,priority:2"`
	EndTime     time.Time `gorm:"not null;index:idx_bookings_status_times,priority:3"`
	Status      string    `gorm:"size:16;not null;default:pending;index:idx_bookings_status_times,priority:1"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (bookingRecord) TableName() string { return "bookings" }

func (r *bookingRecord) toModel() *models.Booking {
	return &models.Booking{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		StartTime:   r.StartTime.UTC(),
		EndTime:     r.EndTime.UTC(),
		Status:      models.Status(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type eventRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	BookingID  string    `gorm:"type:uuid;not null;index"`
	FromStatus string    `gorm:"size:16;not null;default:''"`
	ToStatus   string    `gorm:"size:16;not null"`
	ActorID    string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (eventRecord) TableName() string { return "booking_events" }

type userRecord struct {
	ID           string    `gorm:"primaryKey;type:uuid"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"size:16;not null;default:user"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (userRecord) TableName() string { return "users" }

// Store implements the booking and user stores on PostgreSQL.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to dsn and migrates the schema.
func Open(dsn string, logger *zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, logger: logger.With().Str("component", "postgres").Logger()}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	s.logger.Info().Msg("Database initialized")
	return s, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&userRecord{}, &bookingRecord{}, &eventRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	b.Normalize()
	if err := b.Validate(); err != nil {
		return err
	}

	ts := time.Now().UTC()
	b.ID = uuid.NewString()
	b.Status = models.StatusPending
	b.CreatedAt = ts
	b.UpdatedAt = ts

	rec := bookingRecord{
		ID: b.ID, OwnerID: b.OwnerID, Title: b.Title, Description: b.Description,
		StartTime: b.StartTime, EndTime: b.EndTime, Status: string(b.Status),
		CreatedAt: ts, UpdatedAt: ts,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return tx.Create(&eventRecord{
			BookingID: b.ID, ToStatus: string(models.StatusPending), ActorID: b.OwnerID, CreatedAt: ts,
		}).Error
	})
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(s.db.WithContext(ctx), id)
}

func getBooking(tx *gorm.DB, id string) (*models.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.BookingNotFound(id)
	}
	var rec bookingRecord
	err := tx.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.BookingNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return rec.toModel(), nil
}

// applyConditions adds typed filter predicates; columns come from the fixed field set.
func applyConditions(tx *gorm.DB, conds []models.Condition) *gorm.DB {
	for _, c := range conds {
		col := c.Field.Column()
		values := make([]any, len(c.Values))
		for i, v := range c.Values {
			if st, ok := v.(models.Status); ok {
				v = string(st)
			}
			values[i] = v
		}
		if c.Op == models.OpIn {
			tx = tx.Where(col+" IN ?", values)
			continue
		}
		tx = tx.Where(col+" "+c.Op.SQL()+" ?", values[0])
	}
	return tx
}

func (s *Store) ListBookings(ctx context.Context, q models.ListQuery) (*models.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.Normalize()

	base := applyConditions(s.db.WithContext(ctx).Model(&bookingRecord{}), q.Conditions)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}

	fields := q.Columns()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column()
	}

	query := base.Session(&gorm.Session{}).Select(cols)
	for _, k := range q.Sort {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: k.Field.Column()}, Desc: k.Desc})
	}
	query = query.Order("id ASC").Offset(q.Offset()).Limit(q.Limit)

	var recs []bookingRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	items := make([]models.Booking, len(recs))
	for i := range recs {
		items[i] = *recs[i].toModel()
	}
	return models.NewPage(q, items, int(total)), nil
}

func overlappingApproved(tx *gorm.DB, excludeID string, iv models.Interval) (bool, error) {
	var n int64
	err := tx.Model(&bookingRecord{}).
		Where("status = ? AND id <> ?", string(models.StatusApproved), excludeID).
		Where("start_time < ? AND end_time > ?", iv.End, iv.Start).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) UpdateBooking(ctx context.Context, id string, patch models.BookingPatch) (*models.Booking, error) {
	var out *models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Same lock order as SetBookingStatus: advisory lock, then the row.
		if patch.MovesTime() {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", approvalLockKey).Error; err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		}

		b, err := getBooking(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if err != nil {
			return err
		}
		if err := patch.CheckStatus(b); err != nil {
			return err
		}

		moved := patch.ChangesInterval(b)
		if err := patch.Apply(b); err != nil {
			return err
		}
		if moved && b.Status == models.StatusApproved {
			clash, err := overlappingApproved(tx, id, b.Interval())
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if clash {
				return domain.Conflict("This time slot is already booked by another approved event")
			}
		}

		b.UpdatedAt = time.Now().UTC()
		err = tx.Model(&bookingRecord{}).Where("id = ?", id).Updates(map[string]any{
			"title":       b.Title,
			"description": b.Description,
			"start_time":  b.StartTime,
			"end_time":    b.EndTime,
			"updated_at":  b.UpdatedAt,
		}).Error
		if err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		out = b
		return nil
	})
	return out, err
}

func (s *Store) DeleteBooking(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.BookingNotFound(id)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("booking_id = ?", id).Delete(&eventRecord{}).Error; err != nil {
			return fmt.Errorf("delete history: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&bookingRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete booking: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.BookingNotFound(id)
		}
		return nil
	})
}

func (s *Store) FindOverlapping(ctx context.Context, iv models.Interval, statuses []models.Status, excludeID string) ([]models.Booking, error) {
	tx := s.db.WithContext(ctx).Where("start_time < ? AND end_time > ?", iv.End.UTC(), iv.Start.UTC())
	if len(statuses) > 0 {
		st := make([]string, len(statuses))
		for i, v := range statuses {
			st[i] = string(v)
		}
		tx = tx.Where("status IN ?", st)
	}
	if excludeID != "" {
		tx = tx.Where("id <> ?", excludeID)
	}

	var recs []bookingRecord
	if err := tx.Order("start_time ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("find overlapping: %w", err)
	}
	out := make([]models.Booking, len(recs))
	for i := range recs {
		out[i] = *recs[i].toModel()
	}
	return out, nil
}

// SetBookingStatus applies a status transition inside a transaction. Approvals
// hold a transaction-scoped advisory lock so the overlap check and the write
// cannot interleave with another approval.
func (s *Store) SetBookingStatus(ctx context.Context, id string, change models.StatusChange) (*models.Booking, error) {
	if !change.To.Valid() {
		return nil, domain.Validation("Invalid status %q", change.To)
	}
	if change.At.IsZero() {
		change.At = time.Now()
	}
	change.At = change.At.UTC()

	var out *models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if change.To == models.StatusApproved {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", approvalLockKey).Error; err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		}

		b, err := getBooking(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if err != nil {
			return err
		}
		if b.Status == change.To {
			return domain.InvalidState("This booking is already %s", change.To)
		}
		if change.To == models.StatusApproved {
			clash, err := overlappingApproved(tx, id, b.Interval())
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if clash {
				return domain.Conflict("This time slot is already booked by another approved event")
			}
		}

		err = tx.Model(&bookingRecord{}).Where("id = ?", id).
			Updates(map[string]any{"status": string(change.To), "updated_at": change.At}).Error
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		err = tx.Create(&eventRecord{
			BookingID:  id,
			FromStatus: string(b.Status),
			ToStatus:   string(change.To),
			ActorID:    change.ActorID,
			CreatedAt:  change.At,
		}).Error
		if err != nil {
			return fmt.Errorf("insert status event: %w", err)
		}

		b.Status = change.To
		b.UpdatedAt = change.At
		out = b
		return nil
	})
	return out, err
}

func (s *Store) BookingHistory(ctx context.Context, id string) ([]models.StatusEvent, error) {
	if _, err := s.GetBooking(ctx, id); err != nil {
		return nil, err
	}
	var recs []eventRecord
	if err := s.db.WithContext(ctx).Where("booking_id = ?", id).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	events := make([]models.StatusEvent, len(recs))
	for i, r := range recs {
		events[i] = models.StatusEvent{
			ID:        r.ID,
			BookingID: r.BookingID,
			From:      models.Status(r.FromStatus),
			To:        models.Status(r.ToStatus),
			ActorID:   r.ActorID,
			At:        r.CreatedAt.UTC(),
		}
	}
	return events, nil
}

func (s *Store) ApprovedOverlaps(ctx context.Context) ([]models.OverlapPair, error) {
	var pairs []models.OverlapPair
	err := s.db.WithContext(ctx).Raw(`
		SELECT a.id AS first, b.id AS second FROM bookings a
		JOIN bookings b ON a.id < b.id
		WHERE a.status = 'approved' AND b.status = 'approved'
		  AND a.start_time < b.end_time AND a.end_time > b.start_time
		ORDER BY a.id, b.id`).Scan(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("approved overlaps: %w", err)
	}
	return pairs, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&userRecord{}).Where("email = ?", u.Email).Count(&existing).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if existing > 0 {
		return domain.Validation("User already exists with email %s", u.Email)
	}

	err := s.db.WithContext(ctx).Create(&userRecord{
		ID: u.ID, Name: u.Name, Email: u.Email, PasswordHash: u.PasswordHash,
		Role: string(u.Role), CreatedAt: u.CreatedAt,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Validation("User already exists with email %s", u.Email)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, query, arg).Error; err != nil {
		return nil, err
	}
	return &models.User{
		ID: rec.ID, Name: rec.Name, Email: rec.Email, PasswordHash: rec.PasswordHash,
		Role: models.Role(rec.Role), CreatedAt: rec.CreatedAt.UTC(),
	}, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.findUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("User not found with email %s", email)
	}
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFound("User not found with id of %s", id)
	}
	u, err := s.findUser(ctx, "id = ?", id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("User not found with id of %s", id)
	}
	return u, err
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	var recs []userRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", valid).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get users by id: %w", err)
	}
	users := make([]models.User, len(recs))
	for i, rec := range recs {
		users[i] = models.User{
			ID: rec.ID, Name: rec.Name, Email: rec.Email, PasswordHash: rec.PasswordHash,
			Role: models.Role(rec.Role), CreatedAt: rec.CreatedAt.UTC(),
		}
	}
	return users, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&userRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}

var exportColumns = map[string][]string{
	"bookings":       {"id", "owner_id", "title", "description", "start_time", "end_time", "status", "created_at", "updated_at"},
	"booking_events": {"id", "booking_id", "from_status", "to_status", "actor_id", "created_at"},
	"users":          {"id", "name", "email", "role", "created_at"},
}

func (s *Store) GetTableNames(ctx context.Context) ([]string, error) {
	return []string{"bookings", "booking_events", "users"}, nil
}

func (s *Store) GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error) {
	cols, ok := exportColumns[tableName]
	if !ok {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}
	var rows []map[string]any
	if err := s.db.WithContext(ctx).Table(tableName).Select(cols).Order("created_at").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	return rows, cols, nil
}
