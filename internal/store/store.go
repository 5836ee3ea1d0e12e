package store

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/assistant/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: record not found")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const opStoreNew = "store.new"

// Config describes the dependencies of the state store.
type Config struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store is the single writer of user, daily action, reward, setting, reminder and log rows.
// Every method is a single statement; Transaction groups several into one atomic unit.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New constructs a Store over an already-migrated database.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opStoreNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, logger: logger}, nil
}

// Transaction runs fn against a Store bound to a single database transaction.
// The transaction commits only when fn returns nil.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) logError(operation string, err error, fields ...zap.Field) {
	attrs := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	attrs = append(attrs, fields...)
	s.logger.Error("store error", attrs...)
}
