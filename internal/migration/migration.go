package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"github.com/smallbiznis/opspulse/internal/queue"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

var errNoHandle = errors.New("migration: database handle is required")

// Models lists every table the pipeline owns. Dialects other than postgres
// get these through AutoMigrate instead of the SQL files.
func Models() []any {
	return []any{
		&snapshotdomain.Snapshot{},
		&thresholddomain.Threshold{},
		&alertdomain.Alert{},
		&exportdomain.ExportJob{},
		&queue.Job{},
	}
}

// Result reports what Run did. Version is zero for AutoMigrate.
type Result struct {
	Dialect string
	Version uint
	Dirty   bool
}

func Run(conn *gorm.DB) (Result, error) {
	if conn == nil {
		return Result{}, errNoHandle
	}
	res := Result{Dialect: conn.Dialector.Name()}
	if res.Dialect != "postgres" {
		return res, conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return res, err
	}
	res.Version, res.Dirty, err = migrateUp(sqlDB)
	return res, err
}

// migrateUp leaves the migrator open: closing it closes the shared *sql.DB.
func migrateUp(db *sql.DB) (uint, bool, error) {
	if db == nil {
		return 0, false, errNoHandle
	}
	source, err := iofs.New(embeddedMigrations, "sql")
	if err != nil {
		return 0, false, fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "opspulse_schema_migrations"})
	if err != nil {
		return 0, false, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, false, fmt.Errorf("migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
