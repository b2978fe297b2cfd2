package config

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// registers the pure-Go "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

var DB *gorm.DB

// InitDB opens the configured database and stores it in DB.
func InitDB(s *Settings) error {
	db, err := OpenDatabase(s)
	if err != nil {
		return err
	}
	DB = db
	log.Printf("Database connected successfully (driver=%s)", s.DBDriver)
	return nil
}

// OpenDatabase connects to mysql, postgres or sqlite depending on DB_DRIVER.
func OpenDatabase(s *Settings) (*gorm.DB, error) {
	cfg := gormConfig(s)

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(s.DBDriver) {
	case "mysql":
		port := s.DBPort
		if port == "" {
			port = "3306"
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
			s.DBUsername, s.DBPassword, s.DBHost, port, s.DBDatabase)
		db, err = gorm.Open(mysql.Open(dsn), cfg)
	case "postgres":
		port := s.DBPort
		if port == "" {
			port = "5432"
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			s.DBHost, s.DBUsername, s.DBPassword, s.DBDatabase, port)
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite", "":
		if dir := filepath.Dir(s.DBPath); dir != "." {
			if mkErr := os.MkdirAll(dir, os.ModePerm); mkErr != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", mkErr)
			}
		}
		dsn := s.DBPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_time_format=sqlite"
		return OpenSQLite(dsn, s.DBMaxOpenConns, cfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", s.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(s.DBMaxOpenConns)
	return db, nil
}

// OpenSQLite opens a SQLite database through the modernc driver. A ":memory:"
// dsn must be used with maxOpenConns=1, every connection gets its own database.
func OpenSQLite(dsn string, maxOpenConns int, cfg *gorm.Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = &gorm.Config{
			TranslateError: true,
			NowFunc:        utcNow,
			Logger:         logger.Default.LogMode(logger.Silent),
		}
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", Conn: sqlDB}), cfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func gormConfig(s *Settings) *gorm.Config {
	// In production, suppress SQL logs unless explicitly re-enabled via DEBUG_SQL=true.
	logLevel := logger.Info
	if s.IsProduction() && !s.DebugSQL {
		logLevel = logger.Warn
	}

	return &gorm.Config{
		TranslateError: true,
		NowFunc:        utcNow,
		Logger: logger.New(
			log.New(LogWriter, "\r\n", log.LstdFlags),
			logger.Config{LogLevel: logLevel},
		),
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}
