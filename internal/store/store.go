package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	config "example.com/postfeed/internal/init"
	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/models"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var logg = logger.New()

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrUnknownDriver = errors.New("unknown database driver")
)

// --- Interfaces ---

type StoreInterface interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroupBySlug(ctx context.Context, slug string) (models.Group, error)
	GetGroupByID(ctx context.Context, id int64) (models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	DeleteGroup(ctx context.Context, slug string) error

	AddPost(ctx context.Context, post *models.Post) error
	UpdatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, authorID, postID int64) (models.Post, error)
	ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error)
	CountPosts(ctx context.Context, filter models.PostFilter) (int64, error)
	DeletePost(ctx context.Context, id int64) error

	AddComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, postID int64) ([]models.Comment, error)

	CreateFollow(ctx context.Context, userID, authorID int64) (bool, error)
	DeleteFollow(ctx context.Context, userID, authorID int64) (bool, error)
	FollowExists(ctx context.Context, userID, authorID int64) (bool, error)
	GetFollowers(ctx context.Context, authorID int64) ([]models.Follow, error)
	GetFollowing(ctx context.Context, userID int64) ([]models.Follow, error)

	Close()
}

// --- Store Implementation ---

type Store struct {
	db *gorm.DB
}

// New opens the relational store described by the loaded config.
func New() (StoreInterface, error) {
	cfg := config.Get()
	return Open(cfg.DBDriver, cfg.DatabaseDSN, cfg.MigrationsDir)
}

// Open applies pending migrations from migrationsDir/<driver> and connects with gorm.
func Open(driver, dsn, migrationsDir string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dsn = sqliteDSN(dsn)
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	if err := runMigrations(driver, dsn, migrationsDir); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite serializes writers; one connection avoids "database is locked".
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	logg.Info("store", "Connected to relational store", "driver", driver)
	return &Store{db: db}, nil
}

// sqliteDSN turns on foreign key enforcement, which SQLite leaves off per
// connection. The cascade rules in the schema depend on it.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// --- Migration runner ---

func runMigrations(driver, dsn, migrationsDir string) error {
	sourceURL := fmt.Sprintf("file://%s", filepath.Join(migrationsDir, driver))

	var dbURL string
	switch driver {
	case "postgres":
		// golang-migrate's pgx v5 driver registers the pgx5 scheme
		dbURL = "pgx5://" + strings.TrimPrefix(strings.TrimPrefix(dsn, "postgres://"), "postgresql://")
	case "sqlite":
		dbURL = "sqlite3://" + dsn
	}

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
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// Close gracefully closes the database pool.
func (s *Store) Close() {
	if s.db == nil {
		return
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
		logg.Info("store", "Database connection closed")
	}
}

// translate maps gorm errors to the store's sentinels.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

var (
	_ StoreInterface = (*Store)(nil)
	_ StoreInterface = (*MockStore)(nil)
	_ StoreInterface = (*MockStoreFail)(nil)
)
