package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// MigrationsTable records the applied schema version
const MigrationsTable = "medmap_schema_migrations"

// MigrationRunner applies the SQL files under migrations/ to PostgreSQL
type MigrationRunner struct {
	m   *migrate.Migrate
	log *logrus.Logger
}

// NewMigrationRunner opens a dedicated database/sql connection for
// golang-migrate and points it at the file:// source in migrationsPath
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("preparing postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("loading migrations from %s: %w", migrationsPath, err)
	}
	m.Log = migrateLogger{logger}

	return &MigrationRunner{m: m, log: logger}, nil
}

// Up applies every pending migration
func (r *MigrationRunner) Up(ctx context.Context) error {
	return r.apply(ctx, "up", r.m.Up)
}

// Down rolls back the most recent migration
func (r *MigrationRunner) Down(ctx context.Context) error {
	return r.Steps(ctx, -1)
}

// Steps moves n migrations forward, or back when n is negative
func (r *MigrationRunner) Steps(ctx context.Context, n int) error {
	if n == 0 {
		return nil
	}
	op := fmt.Sprintf("up %d", n)
	if n < 0 {
		op = fmt.Sprintf("down %d", -n)
	}
	return r.apply(ctx, op, func() error { return r.m.Steps(n) })
}

// Force records version as applied and clears the dirty flag without running
// any SQL. It is the way out after a migration failed halfway.
func (r *MigrationRunner) Force(version int) error {
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("forcing schema version %d: %w", version, err)
	}
	r.log.WithField("version", version).Warn("Schema version forced")
	return nil
}

// Version returns the applied version and whether the last run left the
// schema dirty. migrate.ErrNilVersion means nothing was applied yet.
func (r *MigrationRunner) Version() (uint, bool, error) {
	return r.m.Version()
}

// Close releases the source and database handles
func (r *MigrationRunner) Close() error {
	sourceErr, dbErr := r.m.Close()
	return errors.Join(sourceErr, dbErr)
}

// apply runs fn while honouring ctx: on cancellation golang-migrate is asked
// to stop after the file in progress. ErrNoChange is success.
func (r *MigrationRunner) apply(ctx context.Context, op string, fn func() error) error {
	entry := r.log.WithField("direction", op)
	entry.Info("Applying schema migrations")

	done := make(chan error, 1)
	go func() { done <- fn() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		r.m.GracefulStop <- true
		<-done
		err = ctx.Err()
	}

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		entry.Info("Schema already at target version")
		return nil
	case err != nil:
		return fmt.Errorf("migrating %s: %w", op, err)
	}

	version, dirty, verr := r.m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		entry.WithError(verr).Warn("Migrations applied but version is unreadable")
		return nil
	}
	entry.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("Schema migrations applied")
	return nil
}

// migrateLogger sends golang-migrate progress lines to logrus at debug level
type migrateLogger struct {
	log *logrus.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf(strings.TrimRight(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}
