package database

import (
	"context"
	"fmt"
	"time"

	"helparo/internal/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

func Connect(cfg *config.Config, log *zap.SugaredLogger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if cfg.DBAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Infow("Database schema ensured")
	}

	log.Infow("Connected to database successfully", "sslmode", cfg.DBSSLMode)
	return db, nil
}
