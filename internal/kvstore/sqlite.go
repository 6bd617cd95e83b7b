package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type SQLiteConfig struct {
	BusyTimeoutMs int
	WAL           bool
}

type Config struct {
	DSN    string
	SQLite SQLiteConfig
}

func DefaultConfig() Config {
	return Config{
		SQLite: SQLiteConfig{
			BusyTimeoutMs: 5000,
			WAL:           true,
		},
	}
}

// ResolveSQLiteDSN picks the database location when none is configured.
//
// Precedence:
// 1) existing $HOME/.topicbridge/topicbridge.sqlite
// 2) existing ./topicbridge.sqlite
// 3) create + use $HOME/.topicbridge/topicbridge.sqlite
func ResolveSQLiteDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn != "" {
		return dsn, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	homeDir := filepath.Join(home, ".topicbridge")
	homeDB := filepath.Join(homeDir, "topicbridge.sqlite")
	localDB := filepath.Clean("./topicbridge.sqlite")

	if _, err := os.Stat(homeDB); err == nil {
		return homeDB, nil
	}
	if _, err := os.Stat(localDB); err == nil {
		return localDB, nil
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return "", err
	}
	return homeDB, nil
}

// Entry is a single stored key. ExpiresAt is nil for entries without a ttl.
type Entry struct {
	Key       string `gorm:"primaryKey;size:512"`
	Value     string
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (Entry) TableName() string { return "kv_entries" }

// SQLiteStore persists entries in a single SQLite table via gorm. Expired
// entries are filtered on read and removed by SweepExpired.
type SQLiteStore struct {
	db  *gorm.DB
	now func() time.Time
}

func OpenSQLite(cfg Config) (*SQLiteStore, error) {
	dsn, err := ResolveSQLiteDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	params := []string{}
	if cfg.SQLite.BusyTimeoutMs > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", cfg.SQLite.BusyTimeoutMs))
	}
	if cfg.SQLite.WAL {
		params = append(params, "_journal_mode=WAL")
	}
	if len(params) > 0 {
		dsn = dsn + "?" + strings.Join(params, "&")
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := gdb.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &SQLiteStore{db: gdb, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(s.now()) {
		// Lazy expiry; the sweep catches whatever reads miss.
		_ = s.db.WithContext(ctx).Delete(&Entry{}, "key = ?", key).Error
		return "", false, nil
	}
	return e.Value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	e := Entry{Key: key, Value: value, UpdatedAt: s.now()}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		e.ExpiresAt = &exp
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&Entry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	q := s.db.WithContext(ctx).Model(&Entry{}).
		Where(`key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Where("expires_at IS NULL OR expires_at > ?", s.now())
	if err := q.Order("key").Pluck("key", &keys).Error; err != nil {
		return nil, fmt.Errorf("list %s*: %w", prefix, err)
	}
	return keys, nil
}

// SweepExpired removes entries whose ttl has elapsed. Meant to run
// opportunistically in the background; safe to call at any time.
func (s *SQLiteStore) SweepExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&Entry{}, "expires_at IS NOT NULL AND expires_at <= ?", s.now())
	if res.Error != nil {
		return 0, fmt.Errorf("sweep expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
