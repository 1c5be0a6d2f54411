package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fleetops/tollsync/internal/config"
	dashboarddomain "github.com/fleetops/tollsync/internal/dashboard/domain"
	invoicingdomain "github.com/fleetops/tollsync/internal/invoicing/domain"
	"github.com/fleetops/tollsync/internal/reconcile/matcher"
	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
)

const defaultDaysBack = 42

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Engine    *config.EngineConfigHolder
	TollRepo  tollrecorddomain.Repository
	InvRepo   invoicingdomain.Repository
	Timesheet dashboarddomain.TimesheetSource `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	engine    *config.EngineConfigHolder
	tollrepo  tollrecorddomain.Repository
	invrepo   invoicingdomain.Repository
	timesheet dashboarddomain.TimesheetSource
}

func NewService(p ServiceParam) dashboarddomain.Service {
	timesheet := p.Timesheet
	if timesheet == nil {
		timesheet = NoopTimesheetSource{}
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("dashboard.service"),

		engine:    p.Engine,
		tollrepo:  p.TollRepo,
		invrepo:   p.InvRepo,
		timesheet: timesheet,
	}
}

// NoopTimesheetSource is wired when no external timesheet system exists; it
// never reports missing toll.
type NoopTimesheetSource struct{}

func (NoopTimesheetSource) ExpectedTollDays(context.Context, time.Time) ([]dashboarddomain.ExpectedToll, error) {
	return nil, nil
}

// Query builds one dashboard snapshot over the records of the last daysBack
// days. Everything is fetched once up front; the rest is in-memory joins.
func (s *Service) Query(ctx context.Context, daysBack int) (dashboarddomain.Result, error) {
	result := dashboarddomain.Result{
		Matched:      []dashboarddomain.MatchedEntry{},
		Unmatched:    []dashboarddomain.UnmatchedGroup{},
		MissingToll:  []dashboarddomain.MissingTollEntry{},
		WeekOverview: []dashboarddomain.WeekOverviewEntry{},
	}

	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	since := time.Now().UTC().AddDate(0, 0, -daysBack).Truncate(24 * time.Hour)

	m, err := matcher.New(s.engine.Get().InvoiceReference)
	if err != nil {
		return result, err
	}

	records, err := s.tollrepo.ListSince(ctx, s.db, since)
	if err != nil {
		return result, err
	}
	invoices, err := s.invrepo.ListConcept(ctx, s.db)
	if err != nil {
		return result, err
	}

	var applied, unapplied []tollrecorddomain.TollRecord
	for _, r := range records {
		if r.Applied() {
			applied = append(applied, r)
		} else {
			unapplied = append(unapplied, r)
		}
	}

	if result.Matched, err = s.matched(ctx, m, applied); err != nil {
		return result, err
	}
	result.Unmatched = s.unmatched(m, unapplied, invoices)
	if result.MissingToll, err = s.missingToll(ctx, since, records); err != nil {
		return result, err
	}
	result.WeekOverview = weekOverview(records)

	return result, nil
}

// matched pairs each applied group with its invoice line. Lines are fetched
// once per invoice within this call.
func (s *Service) matched(ctx context.Context, m *matcher.Matcher, applied []tollrecorddomain.TollRecord) ([]dashboarddomain.MatchedEntry, error) {
	entries := []dashboarddomain.MatchedEntry{}
	invoiceCache := map[snowflake.ID]*invoicingdomain.Invoice{}
	lineCache := map[snowflake.ID][]invoicingdomain.InvoiceLine{}

	byInvoice := map[snowflake.ID][]tollrecorddomain.TollRecord{}
	var order []snowflake.ID
	for _, r := range applied {
		id := *r.AppliedInvoiceID
		if _, ok := byInvoice[id]; !ok {
			order = append(order, id)
		}
		byInvoice[id] = append(byInvoice[id], r)
	}

	for _, invoiceID := range order {
		invoice, ok := invoiceCache[invoiceID]
		if !ok {
			found, err := s.invrepo.FindByID(ctx, s.db, invoiceID)
			// A dangling link to a deleted invoice still renders its group.
			if err != nil && !errors.Is(err, invoicingdomain.ErrInvoiceNotFound) {
				return nil, err
			}
			invoice = found
			invoiceCache[invoiceID] = invoice
		}
		lines, ok := lineCache[invoiceID]
		if !ok {
			var err error
			if lines, err = s.invrepo.ListLines(ctx, s.db, invoiceID); err != nil {
				return nil, err
			}
			lineCache[invoiceID] = lines
		}

		for _, group := range tollrecorddomain.GroupRecords(byInvoice[invoiceID]) {
			entry := dashboarddomain.MatchedEntry{
				Group:       group.Key,
				RecordCount: len(group.Records),
				Total:       group.Total(),
				InvoiceID:   invoiceID,
			}
			if invoice != nil {
				entry.InvoiceRef = invoice.Reference
			}
			for _, line := range lines {
				if !line.Total.IsZero() && m.MatchesCharge(line.Description, group.Key, group.Date()) {
					entry.LineID = line.ID
					entry.LineDescription = line.Description
					break
				}
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *Service) unmatched(m *matcher.Matcher, unapplied []tollrecorddomain.TollRecord, invoices []invoicingdomain.Invoice) []dashboarddomain.UnmatchedGroup {
	entries := []dashboarddomain.UnmatchedGroup{}
	for _, group := range tollrecorddomain.GroupRecords(unapplied) {
		entry := dashboarddomain.UnmatchedGroup{
			Group:       group.Key,
			RecordCount: len(group.Records),
			Total:       group.Total(),
		}
		target, reason := m.FindTarget(invoices, group.Key)
		if target != nil {
			entry.SuggestedInvoiceID = &target.ID
			entry.SuggestedReference = target.Reference
			entry.Reason = "pending"
		} else {
			entry.Reason = string(reason)
		}
		entries = append(entries, entry)
	}
	return entries
}

// missingToll reports timesheet-expected plate/days that have no toll record
// at all.
func (s *Service) missingToll(ctx context.Context, since time.Time, records []tollrecorddomain.TollRecord) ([]dashboarddomain.MissingTollEntry, error) {
	expected, err := s.timesheet.ExpectedTollDays(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(expected) == 0 {
		return []dashboarddomain.MissingTollEntry{}, nil
	}

	seen := map[string]bool{}
	for _, r := range records {
		seen[plateDayKey(r.LicensePlate, r.UsageDate)] = true
	}

	entries := []dashboarddomain.MissingTollEntry{}
	for _, e := range expected {
		if seen[plateDayKey(e.LicensePlate, e.Date)] {
			continue
		}
		entries = append(entries, dashboarddomain.MissingTollEntry{
			LicensePlate: e.LicensePlate,
			Date:         e.Date,
			WeekID:       tollrecorddomain.WeekID(e.Date),
			Source:       e.Source,
		})
	}
	return entries, nil
}

func plateDayKey(plate string, date time.Time) string {
	return plate + "|" + date.Format("2006-01-02")
}

func weekOverview(records []tollrecorddomain.TollRecord) []dashboarddomain.WeekOverviewEntry {
	type weekKey struct {
		weekID string
		plate  string
	}
	index := map[weekKey]int{}
	entries := []dashboarddomain.WeekOverviewEntry{}

	for _, r := range records {
		key := weekKey{weekID: r.WeekID, plate: r.LicensePlate}
		i, ok := index[key]
		if !ok {
			i = len(entries)
			index[key] = i
			entries = append(entries, dashboarddomain.WeekOverviewEntry{
				WeekID:       r.WeekID,
				LicensePlate: r.LicensePlate,
				Total:        decimal.Zero,
				AppliedTotal: decimal.Zero,
			})
		}
		entries[i].RecordCount++
		entries[i].Total = entries[i].Total.Add(r.Amount)
		if r.Applied() {
			entries[i].AppliedCount++
			entries[i].AppliedTotal = entries[i].AppliedTotal.Add(r.Amount)
		} else {
			entries[i].UnappliedCount++
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].WeekID != entries[j].WeekID {
			return entries[i].WeekID < entries[j].WeekID
		}
		return entries[i].LicensePlate < entries[j].LicensePlate
	})
	return entries
}
