// Package domain defines the reporting read contract. Everything here is
// pure relational aggregation over toll records and invoice lines; nothing
// in this package mutates state.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
)

// MatchedEntry pairs an applied group with the invoice line that bills it.
type MatchedEntry struct {
	Group           tollrecorddomain.GroupKey `json:"group"`
	RecordCount     int                       `json:"record_count"`
	Total           decimal.Decimal           `json:"total"`
	InvoiceID       snowflake.ID              `json:"invoice_id"`
	InvoiceRef      string                    `json:"invoice_reference"`
	LineID          snowflake.ID              `json:"line_id,omitempty"`
	LineDescription string                    `json:"line_description,omitempty"`
}

// UnmatchedGroup is an unapplied group, with a suggested target invoice when
// one concept invoice unambiguously matches.
type UnmatchedGroup struct {
	Group              tollrecorddomain.GroupKey `json:"group"`
	RecordCount        int                       `json:"record_count"`
	Total              decimal.Decimal           `json:"total"`
	SuggestedInvoiceID *snowflake.ID             `json:"suggested_invoice_id,omitempty"`
	SuggestedReference string                    `json:"suggested_reference,omitempty"`
	Reason             string                    `json:"reason"`
}

// MissingTollEntry is a plate/date combination that external timesheet data
// expects toll for, while no toll record exists.
type MissingTollEntry struct {
	LicensePlate string    `json:"license_plate"`
	Date         time.Time `json:"date"`
	WeekID       string    `json:"week_id"`
	Source       string    `json:"source,omitempty"`
}

// WeekOverviewEntry aggregates one week's toll usage per plate.
type WeekOverviewEntry struct {
	WeekID         string          `json:"week_id"`
	LicensePlate   string          `json:"license_plate"`
	RecordCount    int             `json:"record_count"`
	AppliedCount   int             `json:"applied_count"`
	UnappliedCount int             `json:"unapplied_count"`
	Total          decimal.Decimal `json:"total"`
	AppliedTotal   decimal.Decimal `json:"applied_total"`
}

// Result is one dashboard snapshot. Reads run concurrently with writes and
// tolerate eventually consistent data; callers re-fetch after mutations.
type Result struct {
	Matched      []MatchedEntry      `json:"matched"`
	Unmatched    []UnmatchedGroup    `json:"unmatched"`
	MissingToll  []MissingTollEntry  `json:"missing_toll"`
	WeekOverview []WeekOverviewEntry `json:"week_overview"`
}

// ExpectedToll is one plate/date the timesheet system expects toll charges
// for.
type ExpectedToll struct {
	LicensePlate string
	Date         time.Time
	Source       string
}

// TimesheetSource feeds expected toll days from an external timesheet
// system. The default wiring has no such system and reports nothing.
type TimesheetSource interface {
	ExpectedTollDays(ctx context.Context, since time.Time) ([]ExpectedToll, error)
}

// Service answers dashboard queries.
type Service interface {
	Query(ctx context.Context, daysBack int) (Result, error)
}
