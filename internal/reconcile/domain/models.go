// Package domain defines the apply/unapply/reconcile contract that links
// toll records to invoice lines.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
)

// ConflictReason classifies why an apply attempt was rejected. Conflicts are
// returned to the caller as-is and never retried.
type ConflictReason string

const (
	// ReasonPlateMismatch means the invoice reference encodes a different
	// license plate than the group being applied.
	ReasonPlateMismatch ConflictReason = "plate_mismatch"
	// ReasonAlreadyApplied means at least one record in the group is linked
	// to a different invoice.
	ReasonAlreadyApplied ConflictReason = "already_applied"
	// ReasonDuplicateLine means the invoice already carries a charged line
	// for this group's weekday, country, week and vat rate.
	ReasonDuplicateLine ConflictReason = "duplicate_line"
	// ReasonNoTarget means no concept invoice matches the group's week and
	// plate.
	ReasonNoTarget ConflictReason = "no_target"
	// ReasonAmbiguousTarget means more than one concept invoice matches.
	// Ambiguity is surfaced instead of picking a candidate.
	ReasonAmbiguousTarget ConflictReason = "ambiguous_target"
)

// ApplyRequest targets one group of records at one invoice. The records must
// all share the same group key.
type ApplyRequest struct {
	RecordIDs []snowflake.ID `json:"record_ids"`
	InvoiceID snowflake.ID   `json:"invoice_id"`
}

// ApplyResult reports the outcome of an apply attempt. Reason is set only
// when OK is false.
type ApplyResult struct {
	OK          bool            `json:"ok"`
	Reason      ConflictReason  `json:"reason,omitempty"`
	InvoiceID   snowflake.ID    `json:"invoice_id"`
	LineID      snowflake.ID    `json:"line_id,omitempty"`
	RecordCount int             `json:"record_count"`
	Total       decimal.Decimal `json:"total"`
}

// UnmatchedGroup is a group reconciliation could not place, with the reason
// it stayed unmatched.
type UnmatchedGroup struct {
	Group       tollrecorddomain.GroupKey `json:"group"`
	RecordCount int                       `json:"record_count"`
	Total       decimal.Decimal           `json:"total"`
	Reason      ConflictReason            `json:"reason"`
}

// Inconsistency surfaces a broken line/link pairing left behind by a partial
// failure. Reconciliation reports these; repairing them is an operator call.
type Inconsistency struct {
	Kind      string       `json:"kind"`
	InvoiceID snowflake.ID `json:"invoice_id"`
	Detail    string       `json:"detail"`
}

const (
	// InconsistencyLineWithoutLinks is a charged toll line with no records
	// linked to its invoice for that group.
	InconsistencyLineWithoutLinks = "line_without_links"
	// InconsistencyLinksWithoutLine is a set of linked records whose invoice
	// carries no matching line.
	InconsistencyLinksWithoutLine = "links_without_line"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	MatchedCount    int              `json:"matched_count"`
	UnmatchedGroups []UnmatchedGroup `json:"unmatched_groups"`
	Inconsistencies []Inconsistency  `json:"inconsistencies,omitempty"`
}

// Service drives the unapplied/applied state machine.
type Service interface {
	// Apply links one group of records to an invoice and writes or updates
	// the matching line. Guard rejections come back in the result with a
	// specific reason; only storage failures return an error.
	Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error)
	// Unapply clears the application link on the given records. The invoice
	// line is left untouched.
	Unapply(ctx context.Context, recordIDs []snowflake.ID) error
	// Reconcile groups every unapplied record, locates a target invoice per
	// group and applies what it can.
	Reconcile(ctx context.Context) (ReconcileResult, error)
}

var (
	ErrNoRecordIDs = errors.New("no record ids given")
	ErrMixedGroups = errors.New("records span multiple groups")
)
