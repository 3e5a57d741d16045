package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"reqmon/internal/config"
	"reqmon/internal/logger"
)

// AlertRow is one fired rule as persisted in the alert table.
type AlertRow struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	RecordID         string `gorm:"size:64;index" json:"record_id"`
	RuleName         string `gorm:"index" json:"name"`
	RuleType         string `gorm:"size:64" json:"type"`
	Severity         string `gorm:"size:32;index" json:"severity"`
	URL              string `json:"url"`
	Method           string `gorm:"size:16" json:"method"`
	RequestTimestamp string `gorm:"size:64" json:"request_timestamp"`
	// Evidence is the full alert encoded as JSON
	Evidence  string    `json:"evidence"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// AlertStore is an append-only, queryable alert table backed by SQLite.
type AlertStore struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database and migrates the
// alert table.
func Open(cfg config.SQLiteConfig) (*AlertStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlite dsn is required")
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger:         NewGormLogger(logger.WithComponent("sqlite")),
		NamingStrategy: schema.NamingStrategy{TablePrefix: cfg.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", cfg.DSN, err)
	}

	if err := db.AutoMigrate(&AlertRow{}); err != nil {
		return nil, fmt.Errorf("migrate alert table: %w", err)
	}

	return &AlertStore{db: db}, nil
}

// Save appends rows in a single transaction.
func (s *AlertStore) Save(ctx context.Context, rows []AlertRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// Recent returns up to limit rows, newest first.
func (s *AlertStore) Recent(ctx context.Context, limit int) ([]AlertRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []AlertRow
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}
	return rows, nil
}

// CountBySeverity returns how many alerts were stored per severity.
func (s *AlertStore) CountBySeverity(ctx context.Context) (map[string]int64, error) {
	var results []struct {
		Severity string
		Count    int64
	}
	err := s.db.WithContext(ctx).
		Model(&AlertRow{}).
		Select("severity, count(*) as count").
		Group("severity").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}

	counts := make(map[string]int64, len(results))
	for _, r := range results {
		counts[r.Severity] = r.Count
	}
	return counts, nil
}

// Close closes the underlying database handle.
func (s *AlertStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
