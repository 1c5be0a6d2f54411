// Package domain defines the import contract: raw spreadsheet rows in,
// classified toll records out.
package domain

import (
	"context"
	"errors"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetops/tollsync/internal/tollimport/columns"
)

// ImportRequest carries one batch of raw rows. Mapping, when present, is an
// operator-confirmed column assignment that overrides detection; keys are
// the canonical field names. DefaultCountry covers single-country exports
// that omit a country column entirely; the operator supplies it explicitly.
type ImportRequest struct {
	Rows           [][]string     `json:"rows"`
	Mapping        map[string]int `json:"column_mapping,omitempty"`
	DefaultCountry string         `json:"default_country,omitempty"`
	Source         string         `json:"source,omitempty"`
}

// FileImportRequest configures a file upload import (.xlsx or CSV).
type FileImportRequest struct {
	DefaultCountry string
	Source         string
}

// ImportResult reports how every row of the batch was classified.
type ImportResult struct {
	BatchID            string         `json:"batch_id"`
	Inserted           int            `json:"inserted"`
	DuplicatesUnlinked int            `json:"duplicates_unlinked"`
	DuplicatesLinked   int            `json:"duplicates_linked"`
	Warnings           []string       `json:"warnings"`
	Mapping            map[string]int `json:"column_mapping"`
}

// Service ingests operator exports and owns explicit record deletion.
type Service interface {
	Import(ctx context.Context, req ImportRequest) (ImportResult, error)
	ImportFile(ctx context.Context, file io.Reader, req FileImportRequest) (ImportResult, error)
	DeleteRecords(ctx context.Context, ids []snowflake.ID) (int64, error)
}

var (
	ErrNoRows            = errors.New("no_rows")
	ErrUnresolvedColumns = errors.New("unresolved_columns")
	ErrInvalidMapping    = errors.New("invalid_column_mapping")
)

// FieldNames enumerates the canonical mapping keys accepted from callers.
var FieldNames = map[string]columns.Field{
	"country":       columns.FieldCountry,
	"license_plate": columns.FieldPlate,
	"usage_date":    columns.FieldDate,
	"usage_time":    columns.FieldTime,
	"amount":        columns.FieldAmount,
	"vat_rate":      columns.FieldVAT,
}
