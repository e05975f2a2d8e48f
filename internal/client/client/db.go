package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/greenmission/internal/client/migrations"
	"github.com/dmitrijs2005/greenmission/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/greenmission/internal/client/snapshot"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Metadata  *metadata.SQLiteRepository
	Snapshots *snapshot.Store
}

func NewRepositories(db *sql.DB) *Repositories {
	md := metadata.NewSQLiteRepository(db)
	return &Repositories{
		Metadata:  md,
		Snapshots: snapshot.NewStore(db, md),
	}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InitDatabase opens the local SQLite file at dsn and applies migrations.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; SQLite serialises anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
