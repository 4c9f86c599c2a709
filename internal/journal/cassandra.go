// Package journal keeps a per-user activity log in Cassandra, written by
// the worker from domain events.
package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	config "example.com/postfeed/internal/init"
	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var logg = logger.New()

// --- Interfaces ---

type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	Close()
}

// Journal is the activity log surface used by the worker and the API.
type Journal interface {
	Append(ctx context.Context, userID int64, ev models.Event) error
	Recent(ctx context.Context, userID int64, limit int) ([]models.Event, error)
	Close()
}

type CassandraConfig struct {
	Host          string
	Keyspace      string
	Username      string
	Password      string
	Timeout       time.Duration
	DC            string
	MigrationsDir string
}

// --- Journal Implementation ---

type CassandraJournal struct {
	Session SessionInterface
}

// New connects using the loaded config.
func New() (*CassandraJournal, error) {
	cfg := config.Get()
	return Open(CassandraConfig{
		Host:          cfg.CassandraHost,
		Keyspace:      cfg.CassandraKeyspace,
		Username:      cfg.CassandraUsername,
		Password:      cfg.CassandraPassword,
		Timeout:       cfg.CassandraTimeout,
		DC:            cfg.CassandraDC,
		MigrationsDir: cfg.MigrationsDir,
	})
}

// Open ensures the keyspace, applies migrationsDir/cassandra and opens a session.
func Open(cfg CassandraConfig) (*CassandraJournal, error) {
	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := newCluster(cfg)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum

	if cfg.DC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.DC)
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("journal", "Connected to Cassandra keyspace", "keyspace", cfg.Keyspace)
	return &CassandraJournal{Session: sess}, nil
}

func newCluster(cfg CassandraConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Host)
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	return cluster
}

// --- Ensure keyspace exists before migrations ---

func ensureKeyspace(cfg CassandraConfig) error {
	cluster := newCluster(cfg)
	cluster.Keyspace = "system"
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.Keyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}
	return nil
}

// --- Migration runner ---

func runMigrations(cfg CassandraConfig) error {
	sourceURL := fmt.Sprintf("file://%s", filepath.Join(cfg.MigrationsDir, "cassandra"))
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.Host, cfg.Keyspace,
	)

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if err == migrate.ErrNoChange {
		logg.Info("journal", "No new migrations to apply")
	} else {
		logg.Info("journal", "Migrations applied successfully")
	}
	return nil
}

// Close gracefully closes Cassandra session.
func (j *CassandraJournal) Close() {
	if j.Session != nil {
		j.Session.Close()
		logg.Info("journal", "Cassandra session closed")
	}
}
