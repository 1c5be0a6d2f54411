package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetops/tollsync/internal/config"
	obsmetrics "github.com/fleetops/tollsync/internal/observability/metrics"
	"github.com/fleetops/tollsync/internal/tollimport/columns"
	tollimportdomain "github.com/fleetops/tollsync/internal/tollimport/domain"
	"github.com/fleetops/tollsync/internal/tollimport/normalize"
	"github.com/fleetops/tollsync/internal/tollimport/sheet"
	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
	pkgdb "github.com/fleetops/tollsync/pkg/db"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Engine   *config.EngineConfigHolder
	TollRepo tollrecorddomain.Repository
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	engine   *config.EngineConfigHolder
	tollrepo tollrecorddomain.Repository
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) tollimportdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("tollimport.service"),

		genID:    p.GenID,
		engine:   p.Engine,
		tollrepo: p.TollRepo,
		metrics:  p.Metrics,
	}
}

// Import normalizes, deduplicates, and inserts one batch of raw rows.
// Inserts run in chunks, but the dedup key set spans the whole batch: a
// later chunk sees every key accepted by an earlier one. A storage failure
// mid-batch leaves earlier chunks committed; re-running the import is safe
// because every committed row deduplicates.
func (s *Service) Import(ctx context.Context, req tollimportdomain.ImportRequest) (tollimportdomain.ImportResult, error) {
	result := tollimportdomain.ImportResult{
		BatchID:  uuid.NewString(),
		Warnings: []string{},
	}
	if len(req.Rows) == 0 {
		return result, tollimportdomain.ErrNoRows
	}

	engineCfg := s.engine.Get()

	mapping, dataStart, err := s.resolveMapping(req, engineCfg)
	if err != nil {
		return result, err
	}
	result.Mapping = mappingResponse(mapping)

	existing, err := s.tollrepo.ExistingKeys(ctx, s.db)
	if err != nil {
		return result, err
	}

	now := time.Now().UTC()
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "import"
	}

	var pending []*tollrecorddomain.TollRecord
	for i := dataStart; i < len(req.Rows); i++ {
		record, reason := s.normalizeRow(req.Rows[i], mapping, req.DefaultCountry, engineCfg)
		if record == nil {
			if reason != "" {
				result.Warnings = append(result.Warnings, fmt.Sprintf("row %d skipped: %s", i+1, reason))
			}
			continue
		}

		key := record.DedupKey()
		if state, dup := existing[key]; dup {
			if state.Linked {
				result.DuplicatesLinked++
				result.Warnings = append(result.Warnings, fmt.Sprintf("row %d duplicate: already billed", i+1))
			} else {
				result.DuplicatesUnlinked++
				result.Warnings = append(result.Warnings, fmt.Sprintf("row %d duplicate: already imported", i+1))
			}
			continue
		}
		existing[key] = tollrecorddomain.KeyState{}

		record.ID = s.genID.Generate()
		record.Source = source
		record.Metadata = datatypes.JSONMap{"import_batch": result.BatchID}
		record.CreatedAt = now
		record.UpdatedAt = now
		pending = append(pending, record)
	}

	chunkSize := engineCfg.ImportChunkSize
	for start := 0; start < len(pending); start += chunkSize {
		end := start + chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		inserted, insertErr := s.insertChunk(ctx, pending[start:end], &result)
		result.Inserted += inserted
		if insertErr != nil {
			s.recordMetrics(ctx, result)
			return result, insertErr
		}
	}

	s.recordMetrics(ctx, result)
	s.log.Info("import completed",
		zap.String("batch_id", result.BatchID),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates_unlinked", result.DuplicatesUnlinked),
		zap.Int("duplicates_linked", result.DuplicatesLinked),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// ImportFile reads an uploaded workbook or CSV export and runs the regular
// import over its rows.
func (s *Service) ImportFile(ctx context.Context, file io.Reader, req tollimportdomain.FileImportRequest) (tollimportdomain.ImportResult, error) {
	rows, err := sheet.ReadRows(file)
	if err != nil {
		return tollimportdomain.ImportResult{}, err
	}
	return s.Import(ctx, tollimportdomain.ImportRequest{
		Rows:           rows,
		DefaultCountry: req.DefaultCountry,
		Source:         req.Source,
	})
}

// DeleteRecords removes records by explicit operator action, the only
// terminal exit from a record's lifecycle.
func (s *Service) DeleteRecords(ctx context.Context, ids []snowflake.ID) (int64, error) {
	deleted, err := s.tollrepo.Delete(ctx, s.db, ids)
	if err != nil {
		return 0, err
	}
	s.log.Info("records deleted", zap.Int64("count", deleted))
	return deleted, nil
}

// insertChunk writes one chunk. On a unique-constraint failure the chunk is
// retried row by row so the offending rows classify as duplicates instead of
// failing the batch; any other storage error propagates verbatim.
func (s *Service) insertChunk(ctx context.Context, chunk []*tollrecorddomain.TollRecord, result *tollimportdomain.ImportResult) (int, error) {
	if len(chunk) == 0 {
		return 0, nil
	}

	err := s.tollrepo.InsertBatch(ctx, s.db, chunk)
	if err == nil {
		return len(chunk), nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return 0, err
	}

	inserted := 0
	for _, record := range chunk {
		rowErr := s.tollrepo.InsertBatch(ctx, s.db, []*tollrecorddomain.TollRecord{record})
		switch {
		case rowErr == nil:
			inserted++
		case pkgdb.IsDuplicateKeyErr(rowErr):
			result.DuplicatesUnlinked++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("record %s duplicate at storage layer", record.DedupKey()))
		default:
			return inserted, rowErr
		}
	}
	return inserted, nil
}

func (s *Service) resolveMapping(req tollimportdomain.ImportRequest, engineCfg config.EngineConfig) (columns.Mapping, int, error) {
	if len(req.Mapping) > 0 {
		mapping := columns.Mapping{}
		for name, col := range req.Mapping {
			field, known := tollimportdomain.FieldNames[name]
			if !known || col < 0 {
				return nil, 0, tollimportdomain.ErrInvalidMapping
			}
			mapping[field] = col
		}
		if !mappingUsable(mapping, req.DefaultCountry) {
			return nil, 0, tollimportdomain.ErrUnresolvedColumns
		}
		return mapping, 0, nil
	}

	mapping, dataStart := columns.Resolve(req.Rows, engineCfg.HeaderScanRows, engineCfg.InferSampleRows)
	if !mappingUsable(mapping, req.DefaultCountry) {
		return nil, 0, tollimportdomain.ErrUnresolvedColumns
	}
	return mapping, dataStart, nil
}

// mappingUsable accepts a mapping without a country column only when the
// caller supplied an explicit default country.
func mappingUsable(mapping columns.Mapping, defaultCountry string) bool {
	for _, field := range columns.RequiredFields {
		if _, ok := mapping[field]; ok {
			continue
		}
		if field == columns.FieldCountry && strings.TrimSpace(defaultCountry) != "" {
			continue
		}
		return false
	}
	return true
}

// normalizeRow converts one raw row into a record candidate. A row without
// usable date, plate, country, or amount returns nil with the skip reason.
func (s *Service) normalizeRow(row []string, mapping columns.Mapping, defaultCountry string, engineCfg config.EngineConfig) (*tollrecorddomain.TollRecord, string) {
	if rowEmpty(row) {
		return nil, ""
	}

	dateCell := cellAt(row, mapping, columns.FieldDate)
	usageDate, ok := normalize.ParseDate(dateCell)
	if !ok {
		return nil, "unparseable date"
	}

	plate := strings.ToUpper(strings.TrimSpace(cellAt(row, mapping, columns.FieldPlate)))
	if plate == "" {
		return nil, "missing license plate"
	}

	country := ""
	if _, mapped := mapping[columns.FieldCountry]; mapped {
		country = normalize.MapCountry(cellAt(row, mapping, columns.FieldCountry))
	}
	if country == "" {
		country = strings.ToUpper(strings.TrimSpace(defaultCountry))
	}
	if country == "" {
		return nil, "missing country"
	}

	amount, ok := normalize.ParseMoney(cellAt(row, mapping, columns.FieldAmount))
	if !ok {
		return nil, "unparseable amount"
	}
	if amount.IsNegative() {
		return nil, "negative amount"
	}

	vatRate, ok := normalize.ParseVAT(cellAt(row, mapping, columns.FieldVAT))
	if !ok {
		vatRate = s.defaultVAT(country, engineCfg)
	}

	usageTime := ""
	if timeCell := cellAt(row, mapping, columns.FieldTime); timeCell != "" {
		usageTime, _ = normalize.ParseUsageTime(timeCell)
	}
	if usageTime == "" {
		// Date cells exported as datetimes carry the clock themselves.
		if t, ok := normalize.ParseUsageTime(dateCell); ok && t != "00:00:00" {
			usageTime = t
		}
	}

	return &tollrecorddomain.TollRecord{
		Country:      country,
		LicensePlate: plate,
		UsageDate:    usageDate,
		UsageTime:    usageTime,
		Amount:       amount,
		VATRate:      vatRate,
		WeekID:       tollrecorddomain.WeekID(usageDate),
	}, ""
}

func (s *Service) defaultVAT(country string, engineCfg config.EngineConfig) int {
	if rate, ok := engineCfg.VATOverrides[country]; ok {
		return rate
	}
	return normalize.DefaultVATForCountry(country)
}

func (s *Service) recordMetrics(ctx context.Context, result tollimportdomain.ImportResult) {
	duplicates := result.DuplicatesUnlinked + result.DuplicatesLinked
	skipped := len(result.Warnings) - duplicates
	if skipped < 0 {
		skipped = 0
	}
	s.metrics.RecordImport(ctx, result.Inserted, duplicates, skipped)
}

func cellAt(row []string, mapping columns.Mapping, field columns.Field) string {
	col, ok := mapping[field]
	if !ok || col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func mappingResponse(mapping columns.Mapping) map[string]int {
	out := make(map[string]int, len(mapping))
	for name, field := range tollimportdomain.FieldNames {
		if col, ok := mapping[field]; ok {
			out[name] = col
		}
	}
	return out
}
