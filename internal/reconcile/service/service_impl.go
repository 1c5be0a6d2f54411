package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fleetops/tollsync/internal/config"
	invoicingdomain "github.com/fleetops/tollsync/internal/invoicing/domain"
	obsmetrics "github.com/fleetops/tollsync/internal/observability/metrics"
	reconciledomain "github.com/fleetops/tollsync/internal/reconcile/domain"
	"github.com/fleetops/tollsync/internal/reconcile/matcher"
	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Engine   *config.EngineConfigHolder
	TollRepo tollrecorddomain.Repository
	InvRepo  invoicingdomain.Repository
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	engine   *config.EngineConfigHolder
	tollrepo tollrecorddomain.Repository
	invrepo  invoicingdomain.Repository
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) reconciledomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("reconcile.service"),

		genID:    p.GenID,
		engine:   p.Engine,
		tollrepo: p.TollRepo,
		invrepo:  p.InvRepo,
		metrics:  p.Metrics,
	}
}

func (s *Service) newMatcher() (*matcher.Matcher, error) {
	return matcher.New(s.engine.Get().InvoiceReference)
}

// Apply links one group of records to an invoice and writes the matching
// line. The guards and the write run inside one transaction, and the link
// write is a compare-and-set, so of two concurrent applies on the same
// records at most one commits; the loser rejects with already_applied.
func (s *Service) Apply(ctx context.Context, req reconciledomain.ApplyRequest) (reconciledomain.ApplyResult, error) {
	if len(req.RecordIDs) == 0 {
		return reconciledomain.ApplyResult{}, reconciledomain.ErrNoRecordIDs
	}

	m, err := s.newMatcher()
	if err != nil {
		return reconciledomain.ApplyResult{}, err
	}

	var result reconciledomain.ApplyResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result, err = s.applyTx(ctx, tx, m, req)
		return err
	})
	if errors.Is(err, tollrecorddomain.ErrAlreadyLinked) {
		// A concurrent apply claimed a record between guard 2 and the link
		// write. The transaction rolled the line back; report the conflict.
		result = reconciledomain.ApplyResult{
			InvoiceID: req.InvoiceID,
			Reason:    reconciledomain.ReasonAlreadyApplied,
		}
		err = nil
	}
	if err != nil {
		return reconciledomain.ApplyResult{}, err
	}

	if result.OK {
		s.metrics.RecordApply(ctx)
		s.log.Info("group applied",
			zap.String("invoice_id", result.InvoiceID.String()),
			zap.String("line_id", result.LineID.String()),
			zap.Int("record_count", result.RecordCount),
			zap.String("total", result.Total.StringFixed(2)),
		)
	} else {
		s.metrics.RecordConflict(ctx)
		s.log.Warn("apply rejected",
			zap.String("invoice_id", req.InvoiceID.String()),
			zap.String("reason", string(result.Reason)),
		)
	}
	return result, nil
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, m *matcher.Matcher, req reconciledomain.ApplyRequest) (reconciledomain.ApplyResult, error) {
	records, err := s.tollrepo.FindByIDs(ctx, tx, req.RecordIDs)
	if err != nil {
		return reconciledomain.ApplyResult{}, err
	}
	if len(records) != len(req.RecordIDs) {
		return reconciledomain.ApplyResult{}, tollrecorddomain.ErrRecordNotFound
	}

	groups := tollrecorddomain.GroupRecords(records)
	if len(groups) != 1 {
		return reconciledomain.ApplyResult{}, reconciledomain.ErrMixedGroups
	}
	group := groups[0]

	invoice, err := s.invrepo.FindByID(ctx, tx, req.InvoiceID)
	if err != nil {
		return reconciledomain.ApplyResult{}, err
	}
	if invoice.Status != invoicingdomain.InvoiceStatusConcept {
		return reconciledomain.ApplyResult{}, invoicingdomain.ErrNotConcept
	}

	result := reconciledomain.ApplyResult{
		InvoiceID:   invoice.ID,
		RecordCount: len(group.Records),
		Total:       group.Total(),
	}
	reject := func(reason reconciledomain.ConflictReason) (reconciledomain.ApplyResult, error) {
		result.OK = false
		result.Reason = reason
		return result, nil
	}

	// Guard 1: the invoice must bill the group's plate.
	if ref, ok := m.ParseReference(invoice.Reference); ok {
		if !ref.MatchesPlate(group.Key.Plate) {
			return reject(reconciledomain.ReasonPlateMismatch)
		}
	}

	// Guard 2: no record may already be linked to another invoice. The read
	// is not locked; the conditional Link below re-checks this at write time.
	for _, r := range group.Records {
		if r.AppliedInvoiceID != nil && *r.AppliedInvoiceID != invoice.ID {
			return reject(reconciledomain.ReasonAlreadyApplied)
		}
	}

	// Guard 3: the invoice must not already charge this group.
	lines, err := s.invrepo.ListLines(ctx, tx, invoice.ID)
	if err != nil {
		return reconciledomain.ApplyResult{}, err
	}
	for _, line := range lines {
		if !line.Total.IsZero() && m.MatchesCharge(line.Description, group.Key, group.Date()) {
			return reject(reconciledomain.ReasonDuplicateLine)
		}
	}

	// Write the line and persist the links in this same transaction. A line
	// without links, or links without a line, must not be committable.
	now := time.Now().UTC()
	line := findPlaceholder(lines, m, group.Date())
	if line != nil {
		line.Description = m.LineDescription(group.Key, group.Date())
		line.Quantity = decimal.NewFromInt(1)
		line.UnitPrice = group.Total()
		line.VATRate = group.Key.VATRate
		line.Total = group.Total()
		line.UpdatedAt = now
		if err := s.invrepo.UpdateLine(ctx, tx, line); err != nil {
			return reconciledomain.ApplyResult{}, err
		}
	} else {
		line = &invoicingdomain.InvoiceLine{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Description: m.LineDescription(group.Key, group.Date()),
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   group.Total(),
			VATRate:     group.Key.VATRate,
			Total:       group.Total(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.invrepo.InsertLine(ctx, tx, line); err != nil {
			return reconciledomain.ApplyResult{}, err
		}
	}

	if err := s.tollrepo.Link(ctx, tx, group.RecordIDs(), invoice.ID, now); err != nil {
		return reconciledomain.ApplyResult{}, err
	}

	result.OK = true
	result.LineID = line.ID
	return result, nil
}

// Unapply clears the application link on the given records. The invoice line
// is intentionally left alone; removing the now-orphaned line is a separate
// operator action.
func (s *Service) Unapply(ctx context.Context, recordIDs []snowflake.ID) error {
	if len(recordIDs) == 0 {
		return reconciledomain.ErrNoRecordIDs
	}
	if err := s.tollrepo.Unlink(ctx, s.db, recordIDs); err != nil {
		return err
	}
	s.log.Info("records unapplied", zap.Int("record_count", len(recordIDs)))
	return nil
}

// Reconcile groups every unapplied record and applies each group to its
// target invoice. Concept invoices are fetched once per pass; each apply
// still re-reads its own state inside its transaction.
func (s *Service) Reconcile(ctx context.Context) (reconciledomain.ReconcileResult, error) {
	result := reconciledomain.ReconcileResult{
		UnmatchedGroups: []reconciledomain.UnmatchedGroup{},
	}

	m, err := s.newMatcher()
	if err != nil {
		return result, err
	}

	unapplied, err := s.tollrepo.ListUnapplied(ctx, s.db)
	if err != nil {
		return result, err
	}
	invoices, err := s.invrepo.ListConcept(ctx, s.db)
	if err != nil {
		return result, err
	}

	for _, group := range tollrecorddomain.GroupRecords(unapplied) {
		unmatched := func(reason reconciledomain.ConflictReason) {
			result.UnmatchedGroups = append(result.UnmatchedGroups, reconciledomain.UnmatchedGroup{
				Group:       group.Key,
				RecordCount: len(group.Records),
				Total:       group.Total(),
				Reason:      reason,
			})
		}

		target, reason := m.FindTarget(invoices, group.Key)
		if target == nil {
			s.metrics.RecordConflict(ctx)
			unmatched(reason)
			continue
		}

		applied, err := s.Apply(ctx, reconciledomain.ApplyRequest{
			RecordIDs: group.RecordIDs(),
			InvoiceID: target.ID,
		})
		if err != nil {
			return result, err
		}
		if !applied.OK {
			unmatched(applied.Reason)
			continue
		}
		result.MatchedCount++
	}

	inconsistencies, err := s.findInconsistencies(ctx, m, invoices)
	if err != nil {
		return result, err
	}
	result.Inconsistencies = inconsistencies

	s.log.Info("reconcile pass finished",
		zap.Int("matched", result.MatchedCount),
		zap.Int("unmatched", len(result.UnmatchedGroups)),
		zap.Int("inconsistencies", len(result.Inconsistencies)),
	)
	return result, nil
}

// findInconsistencies surfaces broken line/link pairings: a charged toll
// line whose invoice carries no linked group for it, or linked records whose
// invoice carries no matching line. Both can only appear through partial
// failures or out-of-band edits; they are reported, never auto-repaired.
func (s *Service) findInconsistencies(ctx context.Context, m *matcher.Matcher, invoices []invoicingdomain.Invoice) ([]reconciledomain.Inconsistency, error) {
	var found []reconciledomain.Inconsistency

	for _, invoice := range invoices {
		lines, err := s.invrepo.ListLines(ctx, s.db, invoice.ID)
		if err != nil {
			return nil, err
		}
		linked, err := s.tollrepo.ListLinkedTo(ctx, s.db, invoice.ID)
		if err != nil {
			return nil, err
		}
		groups := tollrecorddomain.GroupRecords(linked)

		for _, line := range lines {
			if line.Total.IsZero() || !m.IsTollLine(line) {
				continue
			}
			covered := false
			for _, group := range groups {
				if m.MatchesCharge(line.Description, group.Key, group.Date()) {
					covered = true
					break
				}
			}
			if !covered {
				found = append(found, reconciledomain.Inconsistency{
					Kind:      reconciledomain.InconsistencyLineWithoutLinks,
					InvoiceID: invoice.ID,
					Detail:    fmt.Sprintf("charged line %q has no linked records", line.Description),
				})
			}
		}

		for _, group := range groups {
			covered := false
			for _, line := range lines {
				if !line.Total.IsZero() && m.MatchesCharge(line.Description, group.Key, group.Date()) {
					covered = true
					break
				}
			}
			if !covered {
				found = append(found, reconciledomain.Inconsistency{
					Kind:      reconciledomain.InconsistencyLinksWithoutLine,
					InvoiceID: invoice.ID,
					Detail: fmt.Sprintf("%d linked records for %s %s have no matching line",
						len(group.Records), group.Key.WeekID, group.Key.Plate),
				})
			}
		}
	}
	return found, nil
}

func findPlaceholder(lines []invoicingdomain.InvoiceLine, m *matcher.Matcher, date time.Time) *invoicingdomain.InvoiceLine {
	for i := range lines {
		if m.IsPlaceholder(lines[i], date) {
			return &lines[i]
		}
	}
	return nil
}

