package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/utils"
)

type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

// NewService opens the database selected by DB_DRIVER (postgres or sqlite).
func NewService(logg *logger.Logger) (*Service, error) {
	driver := strings.ToLower(utils.GetEnv("DB_DRIVER", "postgres", logg))
	switch driver {
	case "sqlite":
		return NewSQLiteService(logg, utils.GetEnv("SQLITE_PATH", "reelforge.db", logg))
	case "postgres", "postgresql":
		return NewPostgresService(logg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

func NewPostgresService(logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "PostgresService")

	dsn := utils.GetEnv("DATABASE_URL", "", logg)
	if dsn == "" {
		postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", logg)
		postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", logg)
		postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", logg)
		postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", logg)
		postgresName := utils.GetEnv("POSTGRES_NAME", "reelforge", logg)
		sslMode := utils.GetEnv("POSTGRES_SSLMODE", "disable", logg)
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=%s",
			postgresUser,
			postgresPassword,
			postgresHost,
			postgresPort,
			postgresName,
			sslMode,
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	serviceLog.Info("Connected to Postgres")
	return &Service{db: db, driver: "postgres", log: serviceLog}, nil
}

func NewSQLiteService(logg *logger.Logger, path string) (*Service, error) {
	serviceLog := logg.With("service", "SQLiteService")
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	serviceLog.Info("Opened SQLite database", "path", path)
	return &Service{db: db, driver: "sqlite", log: serviceLog}, nil
}

// OpenSQLite opens a SQLite database with a single connection so conditional
// updates from concurrent goroutines serialize instead of failing with SQLITE_BUSY.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLog,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Driver() string { return s.driver }

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
