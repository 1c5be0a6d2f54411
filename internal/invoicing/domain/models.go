// Package domain holds the read/write contract against the invoicing
// subsystem. Invoices and their lines are owned elsewhere; this engine only
// reads concept invoices and mutates toll-tagged lines.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	// InvoiceStatusConcept marks a draft invoice not yet sent, eligible for
	// line edits.
	InvoiceStatusConcept InvoiceStatus = "CONCEPT"
	InvoiceStatusSent    InvoiceStatus = "SENT"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
)

// Invoice mirrors the invoicing subsystem's invoice header.
type Invoice struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Reference string        `gorm:"type:text;not null;index" json:"reference"`
	Status    InvoiceStatus `gorm:"type:text;not null;default:'CONCEPT'" json:"status"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLine mirrors one line on an invoice.
type InvoiceLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	VATRate     int             `gorm:"not null" json:"vat_rate"`
	Total       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }

// Repository is the persistence contract the engine uses against the
// invoicing subsystem. The gorm handle is passed per call so line writes and
// record links can share one transaction. FindByID returns
// ErrInvoiceNotFound for unknown IDs.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListConcept(ctx context.Context, db *gorm.DB) ([]Invoice, error)
	ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceLine, error)
	InsertLine(ctx context.Context, db *gorm.DB, line *InvoiceLine) error
	UpdateLine(ctx context.Context, db *gorm.DB, line *InvoiceLine) error
}

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrNotConcept      = errors.New("invoice_not_concept")
)
