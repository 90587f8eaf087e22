package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
	"github.com/solacegrove/solace-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "solace", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.EmotionObservation{},
		&types.LifeEvent{},
		&types.UserClusterProfile{},
		&types.SharedWoundGroup{},
		&types.Circle{},
		&types.CircleMembership{},
		&types.GroupReviewRun{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := s.db.Exec(`
		ALTER TABLE "circle"
		ADD CONSTRAINT "fk_circle_shared_wound_group_id"
		FOREIGN KEY ("shared_wound_group_id")
		REFERENCES "shared_wound_group"("id")
		ON DELETE CASCADE
	`).Error; err != nil && !isDuplicateConstraint(err) {
		return fmt.Errorf("add fk_circle_shared_wound_group_id: %w", err)
	}
	if err := s.db.Exec(`
		ALTER TABLE "circle_membership"
		ADD CONSTRAINT "fk_circle_membership_circle_id"
		FOREIGN KEY ("circle_id")
		REFERENCES "circle"("id")
		ON DELETE CASCADE
	`).Error; err != nil && !isDuplicateConstraint(err) {
		return fmt.Errorf("add fk_circle_membership_circle_id: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

func isDuplicateConstraint(err error) bool {
	if err == nil {
		return false
	}
	// 42710: duplicate_object, raised when the constraint already exists.
	return strings.Contains(err.Error(), "42710") || strings.Contains(err.Error(), "already exists")
}
