package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tollrecorddomain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, records []*tollrecorddomain.TollRecord) error {
	if len(records) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(records).Error
}

func (r *repo) ExistingKeys(ctx context.Context, db *gorm.DB) (map[string]tollrecorddomain.KeyState, error) {
	var rows []tollrecorddomain.TollRecord
	err := db.WithContext(ctx).
		Select("license_plate", "usage_date", "usage_time", "country", "amount", "vat_rate", "applied_invoice_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	keys := make(map[string]tollrecorddomain.KeyState, len(rows))
	for _, row := range rows {
		keys[row.DedupKey()] = tollrecorddomain.KeyState{Linked: row.Applied()}
	}
	return keys, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]tollrecorddomain.TollRecord, error) {
	if len(ids) == 0 {
		return nil, tollrecorddomain.ErrNoRecordIDs
	}
	var rows []tollrecorddomain.TollRecord
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("usage_date, usage_time, id").
		Find(&rows).Error
	return rows, err
}

func (r *repo) ListUnapplied(ctx context.Context, db *gorm.DB) ([]tollrecorddomain.TollRecord, error) {
	var rows []tollrecorddomain.TollRecord
	err := db.WithContext(ctx).
		Where("applied_invoice_id IS NULL").
		Order("usage_date, usage_time, id").
		Find(&rows).Error
	return rows, err
}

func (r *repo) ListLinkedTo(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]tollrecorddomain.TollRecord, error) {
	var rows []tollrecorddomain.TollRecord
	err := db.WithContext(ctx).
		Where("applied_invoice_id = ?", invoiceID).
		Order("usage_date, usage_time, id").
		Find(&rows).Error
	return rows, err
}

func (r *repo) ListSince(ctx context.Context, db *gorm.DB, since time.Time) ([]tollrecorddomain.TollRecord, error) {
	var rows []tollrecorddomain.TollRecord
	err := db.WithContext(ctx).
		Where("usage_date >= ?", since).
		Order("usage_date, usage_time, id").
		Find(&rows).Error
	return rows, err
}

func (r *repo) Link(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return tollrecorddomain.ErrNoRecordIDs
	}
	// The link predicate makes the update a compare-and-set: a record grabbed
	// by a concurrent apply no longer matches, RowsAffected comes up short,
	// and the surrounding transaction rolls back.
	res := db.WithContext(ctx).
		Model(&tollrecorddomain.TollRecord{}).
		Where("id IN ?", ids).
		Where("applied_invoice_id IS NULL OR applied_invoice_id = ?", invoiceID).
		Updates(map[string]any{
			"applied_invoice_id": invoiceID,
			"applied_at":         at,
			"updated_at":         at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return tollrecorddomain.ErrAlreadyLinked
	}
	return nil
}

func (r *repo) Unlink(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return tollrecorddomain.ErrNoRecordIDs
	}
	return db.WithContext(ctx).
		Model(&tollrecorddomain.TollRecord{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"applied_invoice_id": nil,
			"applied_at":         nil,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, tollrecorddomain.ErrNoRecordIDs
	}
	result := db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&tollrecorddomain.TollRecord{})
	return result.RowsAffected, result.Error
}
