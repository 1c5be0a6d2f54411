package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
)

func newTestDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tollrecorddomain.TollRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return db, node
}

func seedRecord(t *testing.T, db *gorm.DB, node *snowflake.Node, plate string, amount string) tollrecorddomain.TollRecord {
	t.Helper()

	value, err := decimal.NewFromString(amount)
	require.NoError(t, err)

	rec := tollrecorddomain.TollRecord{
		ID:           node.Generate(),
		Country:      "BE",
		LicensePlate: plate,
		UsageDate:    time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Amount:       value,
		VATRate:      21,
		WeekID:       "2026-02",
		Source:       "test",
	}
	require.NoError(t, db.Create(&rec).Error)
	return rec
}

func linkedTo(t *testing.T, db *gorm.DB, id snowflake.ID) *snowflake.ID {
	t.Helper()

	var rec tollrecorddomain.TollRecord
	require.NoError(t, db.First(&rec, "id = ?", id).Error)
	return rec.AppliedInvoiceID
}

func TestLinkIsCompareAndSet(t *testing.T) {
	db, node := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	r1 := seedRecord(t, db, node, "AB-12-CD", "12.50")
	r2 := seedRecord(t, db, node, "AB-12-CD", "15.00")
	ids := []snowflake.ID{r1.ID, r2.ID}
	invoiceA := node.Generate()
	invoiceB := node.Generate()

	require.NoError(t, repo.Link(ctx, db, ids, invoiceA, now))
	require.Equal(t, invoiceA, *linkedTo(t, db, r1.ID))
	require.Equal(t, invoiceA, *linkedTo(t, db, r2.ID))

	t.Run("held records reject a second invoice", func(t *testing.T) {
		err := repo.Link(ctx, db, ids, invoiceB, now)
		require.ErrorIs(t, err, tollrecorddomain.ErrAlreadyLinked)
		assert.Equal(t, invoiceA, *linkedTo(t, db, r1.ID))
		assert.Equal(t, invoiceA, *linkedTo(t, db, r2.ID))
	})

	t.Run("relinking the same invoice succeeds", func(t *testing.T) {
		assert.NoError(t, repo.Link(ctx, db, ids, invoiceA, now))
	})

	t.Run("unlinked records accept a new invoice", func(t *testing.T) {
		require.NoError(t, repo.Unlink(ctx, db, ids))
		require.NoError(t, repo.Link(ctx, db, ids, invoiceB, now))
		assert.Equal(t, invoiceB, *linkedTo(t, db, r1.ID))
	})
}

func TestLinkPartialClaimRollsBack(t *testing.T) {
	db, node := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	free := seedRecord(t, db, node, "AB-12-CD", "12.50")
	held := seedRecord(t, db, node, "AB-12-CD", "15.00")
	invoiceA := node.Generate()
	invoiceB := node.Generate()

	require.NoError(t, repo.Link(ctx, db, []snowflake.ID{held.ID}, invoiceA, now))

	// Linking inside a transaction, the way apply does: one held record
	// fails the whole group and the rollback leaves the free record untouched.
	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.Link(ctx, tx, []snowflake.ID{free.ID, held.ID}, invoiceB, now)
	})
	require.ErrorIs(t, err, tollrecorddomain.ErrAlreadyLinked)
	assert.Nil(t, linkedTo(t, db, free.ID))
	assert.Equal(t, invoiceA, *linkedTo(t, db, held.ID))
}
