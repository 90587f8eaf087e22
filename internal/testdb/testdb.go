// Package testdb opens the integration-test database. Tests that need real
// Postgres call Open and are skipped when TEST_POSTGRES_DSN is unset, so the
// default `go test ./...` run stays hermetic.
package testdb

import (
	"fmt"
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/solacegrove/solace-backend/internal/types"
)

var tables = []interface{}{
	&types.User{},
	&types.EmotionObservation{},
	&types.LifeEvent{},
	&types.UserClusterProfile{},
	&types.SharedWoundGroup{},
	&types.Circle{},
	&types.CircleMembership{},
	&types.GroupReviewRun{},
}

// Open connects to TEST_POSTGRES_DSN, migrates the schema and truncates every
// table so each test starts clean.
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("TEST_POSTGRES_DSN not set; skipping database test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		tb.Fatalf("create uuid extension: %v", err)
	}
	if err := db.AutoMigrate(tables...); err != nil {
		tb.Fatalf("migrate test schema: %v", err)
	}
	Reset(tb, db)
	return db
}

// Reset truncates all tables.
func Reset(tb testing.TB, db *gorm.DB) {
	tb.Helper()
	for _, model := range tables {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			tb.Fatalf("parse model: %v", err)
		}
		if err := db.Exec(fmt.Sprintf(`TRUNCATE TABLE %q CASCADE`, stmt.Schema.Table)).Error; err != nil {
			tb.Fatalf("truncate %s: %v", stmt.Schema.Table, err)
		}
	}
}
