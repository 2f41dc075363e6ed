package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/reelforge-backend/internal/data/db"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

var (
	pgOnce sync.Once
	pgDB   *gorm.DB
	pgErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	memSeq atomic.Int64
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated database. By default every call gets a fresh in-memory
// SQLite database; set TEST_POSTGRES_DSN to run against Postgres instead.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		pgOnce.Do(func() {
			pgDB, pgErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
				DisableForeignKeyConstraintWhenMigrating: true,
				TranslateError:                           true,
				Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
				NowFunc:                                  func() time.Time { return time.Now().UTC() },
			})
			if pgErr != nil {
				return
			}
			pgErr = db.AutoMigrateAll(pgDB)
		})
		if pgErr != nil {
			tb.Fatalf("failed to init test db: %v", pgErr)
		}
		truncateAll(tb, pgDB)
		return pgDB
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	path := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, memSeq.Add(1))
	conn, err := db.OpenSQLite(path)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	conn.Logger = gormLogger.Default.LogMode(gormLogger.Silent)
	if err := db.AutoMigrateAll(conn); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func truncateAll(tb testing.TB, conn *gorm.DB) {
	tb.Helper()
	for _, table := range []string{"automation", "processed_video", "automation_log", "outbound_post", "video_job"} {
		if err := conn.Exec("DELETE FROM " + table).Error; err != nil {
			tb.Fatalf("truncate %s: %v", table, err)
		}
	}
}
