package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fleetops/tollsync/internal/config"
	dashboarddomain "github.com/fleetops/tollsync/internal/dashboard/domain"
	invoicingdomain "github.com/fleetops/tollsync/internal/invoicing/domain"
	invoicingrepository "github.com/fleetops/tollsync/internal/invoicing/repository"
	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
	tollrecordrepository "github.com/fleetops/tollsync/internal/tollrecord/repository"
)

type stubTimesheet struct {
	expected []dashboarddomain.ExpectedToll
}

func (s stubTimesheet) ExpectedTollDays(context.Context, time.Time) ([]dashboarddomain.ExpectedToll, error) {
	return s.expected, nil
}

type fixture struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tollrecorddomain.TollRecord{},
		&invoicingdomain.Invoice{},
		&invoicingdomain.InvoiceLine{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return &fixture{db: db, genID: node}
}

func (f *fixture) service(timesheet dashboarddomain.TimesheetSource) dashboarddomain.Service {
	return NewService(ServiceParam{
		DB:        f.db,
		Log:       zap.NewNop(),
		Engine:    config.NewStaticEngineConfigHolder(config.EngineConfig{}),
		TollRepo:  tollrecordrepository.Provide(),
		InvRepo:   invoicingrepository.Provide(),
		Timesheet: timesheet,
	})
}

func (f *fixture) record(t *testing.T, plate string, date time.Time, amount string, invoiceID *snowflake.ID) tollrecorddomain.TollRecord {
	t.Helper()

	value, err := decimal.NewFromString(amount)
	require.NoError(t, err)

	rec := tollrecorddomain.TollRecord{
		ID:               f.genID.Generate(),
		Country:          "BE",
		LicensePlate:     plate,
		UsageDate:        date,
		Amount:           value,
		VATRate:          21,
		WeekID:           tollrecorddomain.WeekID(date),
		AppliedInvoiceID: invoiceID,
	}
	if invoiceID != nil {
		now := time.Now().UTC()
		rec.AppliedAt = &now
	}
	require.NoError(t, f.db.Create(&rec).Error)
	return rec
}

func TestQueryPartitionsMatchedAndUnmatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := time.Now().UTC().AddDate(0, 0, -3).Truncate(24 * time.Hour)
	weekday := tollrecorddomain.WeekdayName(date)

	inv := invoicingdomain.Invoice{
		ID:        f.genID.Generate(),
		Reference: "Week 02 - 2026 (AB-12-CD)",
		Status:    invoicingdomain.InvoiceStatusConcept,
	}
	require.NoError(t, f.db.Create(&inv).Error)

	line := invoicingdomain.InvoiceLine{
		ID:          f.genID.Generate(),
		InvoiceID:   inv.ID,
		Description: "Toll charges " + weekday + " " + date.Format("2006-01-02") + " BE (21% VAT)",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.NewFromFloat(12.50),
		VATRate:     21,
		Total:       decimal.NewFromFloat(12.50),
	}
	require.NoError(t, f.db.Create(&line).Error)

	f.record(t, "AB-12-CD", date, "12.50", &inv.ID)
	f.record(t, "XY-98-ZZ", date, "9.99", nil)

	result, err := f.service(nil).Query(ctx, 7)
	require.NoError(t, err)

	require.Len(t, result.Matched, 1)
	assert.Equal(t, "AB-12-CD", result.Matched[0].Group.Plate)
	assert.Equal(t, line.ID, result.Matched[0].LineID)
	assert.Equal(t, inv.Reference, result.Matched[0].InvoiceRef)

	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "XY-98-ZZ", result.Unmatched[0].Group.Plate)
	assert.Equal(t, "no_target", result.Unmatched[0].Reason)
	assert.Nil(t, result.Unmatched[0].SuggestedInvoiceID)
}

func TestQuerySuggestsTargetForUnmatchedGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := time.Now().UTC().AddDate(0, 0, -3).Truncate(24 * time.Hour)

	year, week := date.ISOWeek()
	ref := weekReference(week, year, "AB-12-CD")
	inv := invoicingdomain.Invoice{
		ID:        f.genID.Generate(),
		Reference: ref,
		Status:    invoicingdomain.InvoiceStatusConcept,
	}
	require.NoError(t, f.db.Create(&inv).Error)

	f.record(t, "AB-12-CD", date, "12.50", nil)

	result, err := f.service(nil).Query(ctx, 7)
	require.NoError(t, err)

	require.Len(t, result.Unmatched, 1)
	require.NotNil(t, result.Unmatched[0].SuggestedInvoiceID)
	assert.Equal(t, inv.ID, *result.Unmatched[0].SuggestedInvoiceID)
	assert.Equal(t, ref, result.Unmatched[0].SuggestedReference)
	assert.Equal(t, "pending", result.Unmatched[0].Reason)
}

func TestQueryMissingToll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := time.Now().UTC().AddDate(0, 0, -2).Truncate(24 * time.Hour)

	f.record(t, "AB-12-CD", date, "12.50", nil)

	timesheet := stubTimesheet{expected: []dashboarddomain.ExpectedToll{
		{LicensePlate: "AB-12-CD", Date: date, Source: "timesheet"},
		{LicensePlate: "XY-98-ZZ", Date: date, Source: "timesheet"},
	}}

	result, err := f.service(timesheet).Query(ctx, 7)
	require.NoError(t, err)

	require.Len(t, result.MissingToll, 1)
	assert.Equal(t, "XY-98-ZZ", result.MissingToll[0].LicensePlate)
	assert.Equal(t, tollrecorddomain.WeekID(date), result.MissingToll[0].WeekID)
}

func TestQueryWeekOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := time.Now().UTC().AddDate(0, 0, -3).Truncate(24 * time.Hour)

	invID := f.genID.Generate()
	require.NoError(t, f.db.Create(&invoicingdomain.Invoice{
		ID:        invID,
		Reference: "Week 99 - 2099 (AB-12-CD)",
		Status:    invoicingdomain.InvoiceStatusConcept,
	}).Error)

	f.record(t, "AB-12-CD", date, "12.50", &invID)
	f.record(t, "AB-12-CD", date, "8.20", nil)

	result, err := f.service(nil).Query(ctx, 7)
	require.NoError(t, err)

	require.Len(t, result.WeekOverview, 1)
	entry := result.WeekOverview[0]
	assert.Equal(t, "AB-12-CD", entry.LicensePlate)
	assert.Equal(t, 2, entry.RecordCount)
	assert.Equal(t, 1, entry.AppliedCount)
	assert.Equal(t, 1, entry.UnappliedCount)
	assert.Equal(t, "20.70", entry.Total.StringFixed(2))
	assert.Equal(t, "12.50", entry.AppliedTotal.StringFixed(2))
}

func weekReference(week, year int, plate string) string {
	return fmt.Sprintf("Week %02d - %d (%s)", week, year, plate)
}
