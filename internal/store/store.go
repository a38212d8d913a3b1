// Package store owns every persisted record. Batch writes run inside a
// single transaction: either the whole batch commits or none of it does.
package store

import (
	"errors"

	"github.com/hsltracker-data/internal/common/db"
	"github.com/hsltracker-data/internal/common/logger"
)

// ErrNotFound signals a lookup miss for a single-entity query. It is a
// valid empty result, not a failure.
var ErrNotFound = errors.New("store: not found")

// ErrStoreFailed wraps transaction failures. The scheduler treats the whole
// cycle as failed and retries on the next interval.
var ErrStoreFailed = errors.New("store: transaction failed")

// Store is the dedup-and-upsert layer over the four logical tables.
type Store struct {
	db     *db.DB
	logger logger.Logger
}

// UpsertResult reports how a batch upsert split between fresh inserts and
// in-place updates.
type UpsertResult struct {
	Inserted int
	Updated  int
}

func New(database *db.DB, log logger.Logger) *Store {
	return &Store{
		db:     database,
		logger: log,
	}
}
