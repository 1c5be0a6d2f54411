package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// KeyState records whether an existing fact is already linked to an invoice.
type KeyState struct {
	Linked bool
}

// Repository is the storage contract for toll records. Callers pass the
// gorm handle (or an open transaction) per call so operations compose into
// one transaction where atomicity matters.
type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, records []*TollRecord) error
	ExistingKeys(ctx context.Context, db *gorm.DB) (map[string]KeyState, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]TollRecord, error)
	ListUnapplied(ctx context.Context, db *gorm.DB) ([]TollRecord, error)
	ListLinkedTo(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]TollRecord, error)
	ListSince(ctx context.Context, db *gorm.DB, since time.Time) ([]TollRecord, error)
	// Link sets the application link on every given record. It only touches
	// records that are unlinked or already linked to the same invoice, and
	// returns ErrAlreadyLinked when any record is held by another invoice, so
	// concurrent applies cannot overwrite each other's links.
	Link(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, at time.Time) error
	Unlink(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error
	Delete(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (int64, error)
}

var (
	ErrRecordNotFound = errors.New("toll_record_not_found")
	ErrNoRecordIDs    = errors.New("no_record_ids")
	ErrAlreadyLinked  = errors.New("record_already_linked")
)
