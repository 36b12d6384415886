package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"auditorium/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "auditorium_"

type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logger.With().Str("component", "backup").Logger(),
	}
}

// Start runs backups on the configured interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := s.config.Interval()
	s.logger.Info().Dur("interval", interval).Str("path", s.config.Path).Msg("Backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
			if _, err := s.CleanupOldBackups(); err != nil {
				s.logger.Error().Err(err).Msg("Backup cleanup failed")
			}
		}
	}
}

// PerformBackup writes a consistent snapshot of the live database and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.Path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405.000")
	dest := filepath.Join(s.config.Path, fmt.Sprintf("%s%s.db", backupPrefix, timestamp))

	s.logger.Info().Str("path", dest).Msg("Performing database backup")

	// VACUUM INTO produces a snapshot that is safe to take while WAL writers are active.
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dest, err)
	}

	s.logger.Info().Msg("Backup completed successfully")
	return dest, nil
}

// CleanupOldBackups removes backups older than the retention period and returns how many were deleted.
func (s *BackupService) CleanupOldBackups() (int, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(s.config.Path)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	deleted := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.Path, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete backup")
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}
