package storage

import (
	"errors"

	"github.com/agribeta/agribeta/libs/db"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	// ErrConflict means a conditional update matched no row because the row
	// changed since it was read.
	ErrConflict = errors.New("concurrent modification")
)

// Store is the PostgreSQL implementation of the api-service repositories.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool, outbox: outbox.NewRepository(pool)}
}

func notFound(err error) error {
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

// checkID rejects ids that cannot match a UUID key, so a malformed path
// parameter reads as a missing row instead of a driver error.
func checkID(id string) error {
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}
	return nil
}
