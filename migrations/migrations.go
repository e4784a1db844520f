// Package migrations embeds the goose SQL migrations and runs them against Postgres.
package migrations

import (
	"context"
	"database/sql"
	"embed"

	"github.com/go-faster/errors"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed *.sql
var FS embed.FS

type Runner struct {
	db       *sql.DB
	provider *goose.Provider
	logger   *logrus.Logger
}

// Open connects with lib/pq; goose drives database/sql rather than pgx pools.
func Open(dsn string, logger *logrus.Logger) (*Runner, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open migration connection")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, FS)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create goose provider")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{db: db, provider: provider, logger: logger}, nil
}

func (r *Runner) Close() error {
	return r.db.Close()
}

func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	for _, res := range results {
		r.logResult(res)
	}
	if err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	if len(results) == 0 {
		r.logger.Info("migrations: schema is up to date")
	}
	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	res, err := r.provider.Down(ctx)
	if res != nil {
		r.logResult(res)
	}
	if err != nil {
		return errors.Wrap(err, "roll back migration")
	}
	return nil
}

type Status struct {
	Version int64  `json:"version"`
	Path    string `json:"path"`
	Applied bool   `json:"applied"`
}

func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "migration status")
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

func (r *Runner) logResult(res *goose.MigrationResult) {
	entry := r.logger.WithFields(logrus.Fields{
		"version":   res.Source.Version,
		"path":      res.Source.Path,
		"direction": res.Direction,
		"duration":  res.Duration,
	})
	if res.Error != nil {
		entry.WithError(res.Error).Error("migrations: failed")
		return
	}
	entry.Info("migrations: applied")
}
