package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invoicingdomain "github.com/fleetops/tollsync/internal/invoicing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() invoicingdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicingdomain.Invoice, error) {
	var invoice invoicingdomain.Invoice
	err := db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicingdomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) ListConcept(ctx context.Context, db *gorm.DB) ([]invoicingdomain.Invoice, error) {
	var invoices []invoicingdomain.Invoice
	err := db.WithContext(ctx).
		Where("status = ?", invoicingdomain.InvoiceStatusConcept).
		Order("id").
		Find(&invoices).Error
	return invoices, err
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]invoicingdomain.InvoiceLine, error) {
	var lines []invoicingdomain.InvoiceLine
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id").
		Find(&lines).Error
	return lines, err
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, line *invoicingdomain.InvoiceLine) error {
	return db.WithContext(ctx).Create(line).Error
}

func (r *repo) UpdateLine(ctx context.Context, db *gorm.DB, line *invoicingdomain.InvoiceLine) error {
	return db.WithContext(ctx).
		Model(&invoicingdomain.InvoiceLine{}).
		Where("id = ?", line.ID).
		Updates(map[string]any{
			"description": line.Description,
			"quantity":    line.Quantity,
			"unit_price":  line.UnitPrice,
			"vat_rate":    line.VATRate,
			"total":       line.Total,
			"updated_at":  line.UpdatedAt,
		}).Error
}
