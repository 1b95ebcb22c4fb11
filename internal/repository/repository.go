// Package repository implements the ledger store and user directory on GORM.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

// Repository is a ledger.Store over a *gorm.DB. The value handed to Atomic
// callbacks wraps the open transaction.
type Repository struct {
	db *gorm.DB
}

// New wraps db.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ ledger.Store = (*Repository)(nil)

// errDuplicate marks a unique constraint violation.
var errDuplicate = errors.New("repository: duplicate key")

// Atomic runs fn inside one database transaction.
func (r *Repository) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
	return mapError(err)
}

var _ ledger.SnapshotReader = (*Repository)(nil)

// ReadSnapshot runs fn in a read-only REPEATABLE READ transaction, so every
// read sees the state as of the first one. SQLite transactions already read
// from a single snapshot and take no options.
func (r *Repository) ReadSnapshot(ctx context.Context, fn func(tx ledger.Tx) error) error {
	var opts []*sql.TxOptions
	if r.db.Dialector.Name() != "sqlite" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	}, opts...)
	return mapError(err)
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// mapError turns driver errors the engine can act on into ledger errors.
// Deadlocks and serialization failures become ErrConflict so the unit is
// retried; anything unrecognised is returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var le *ledger.Error
	if errors.As(err, &le) || errors.Is(err, ledger.ErrConflict) || errors.Is(err, errDuplicate) || errors.Is(err, domain.ErrEmailTaken) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", errDuplicate, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1213, 1205: // deadlock, lock wait timeout
			return fmt.Errorf("%w: %w", ledger.ErrConflict, err)
		case 1062:
			return fmt.Errorf("%w: %w", errDuplicate, err)
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %w", ledger.ErrConflict, err)
		case "23505":
			return fmt.Errorf("%w: %w", errDuplicate, err)
		}
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		// Extended codes such as BUSY_SNAPSHOT carry the primary code in the low byte.
		primary := []sqlite3.ErrNo{liteErr.Code & 0xff, sqlite3.ErrNo(liteErr.ExtendedCode & 0xff)}
		switch {
		case slices.Contains(primary, sqlite3.ErrBusy) || slices.Contains(primary, sqlite3.ErrLocked):
			return fmt.Errorf("%w: %w", ledger.ErrConflict, err)
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%w: %w", errDuplicate, err)
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", errDuplicate, err)
	}
	return err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return mapError(err)
}

func paginate(q *gorm.DB, page ledger.Page) *gorm.DB {
	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	return q
}
