package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Database bundles the database/sql pool used by the hand-written storages
// and a gorm handle sharing the same pool. Both are nil for the memory backend.
type Database struct {
	SQL  *sql.DB
	Gorm *gorm.DB
	URL  string
}

func NewDatabase(ctx context.Context, url string, log *zap.Logger) (*Database, error) {
	sqlDB, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SetMaxIdleConns sets the maximum number of connections in the idle connection pool.
	sqlDB.SetMaxIdleConns(10)

	// SetMaxOpenConns sets the maximum number of open connections to the database.
	sqlDB.SetMaxOpenConns(50)

	// SetConnMaxLifetime sets the maximum amount of time a connection may be reused.
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}

	log.Info("connected to database")
	return &Database{SQL: sqlDB, Gorm: gormDB, URL: url}, nil
}

// Memory returns the placeholder used when every store runs in process.
func Memory() *Database {
	return &Database{}
}

func (db *Database) Enabled() bool {
	return db != nil && db.SQL != nil
}

func (db *Database) Migrate(ctx context.Context, log *zap.Logger) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.SQL, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("database migration completed")
	return nil
}

func (db *Database) Close() error {
	if !db.Enabled() {
		return nil
	}
	return db.SQL.Close()
}
