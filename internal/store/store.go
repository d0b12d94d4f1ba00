package store

import (
	"context"
	"errors"
	"time"

	"mobistock/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable marks transient connection failures. Idempotent reads may
	// retry a bounded number of times on it; writes must not.
	ErrUnavailable = errors.New("store unavailable")
)

// SaleUnit is one physical unit being sold inside a sale transaction. The
// store flips its status IN_STOCK -> SOLD with a conditional update; a unit
// that is no longer IN_STOCK fails the whole transaction.
type SaleUnit struct {
	ProductID     string
	SalePrice     int64
	CustomerName  string
	CustomerPhone string
	Note          string
}

type Repository interface {
	// Categories.
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	// Import batches.
	CreateBatch(ctx context.Context, batch domain.ImportBatch) (*domain.ImportBatch, error)
	GetBatch(ctx context.Context, id string) (*domain.ImportBatch, error)
	// ListBatches returns newest-first pages; offset skips already-seen rows
	// so callers that must visit every batch can walk the full set.
	ListBatches(ctx context.Context, status string, limit, offset int) ([]domain.ImportBatch, error)
	UpdateBatch(ctx context.Context, batch domain.ImportBatch) (*domain.ImportBatch, error)
	DeleteBatch(ctx context.Context, id string) error
	SetBatchStatus(ctx context.Context, id string, status string) error
	CountProductsInBatch(ctx context.Context, batchID string) (int, error)
	// PropagateImportPrice rewrites the per-unit import price on every product
	// row of the batch and returns the number of rows touched.
	PropagateImportPrice(ctx context.Context, batchID string, importPrice int64) (int, error)

	// Products. CreateProduct enforces IMEI uniqueness and the batch capacity
	// guard, and rolls the unit's import price into the batch's total import
	// value, all inside one transaction.
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// FindCheapestInStock picks the accessory candidate: lowest import price,
	// then earliest created_at. batchID narrows the search when non-empty.
	FindCheapestInStock(ctx context.Context, categoryID string, batchID string) (*domain.Product, error)
	AverageImportPrice(ctx context.Context, categoryID string) (int64, error)

	// Sales. RecordSale creates the invoice and its detail rows and marks
	// every unit SOLD in one transaction; the invoice number is generated
	// inside (per-year sequence, retried on collision).
	RecordSale(ctx context.Context, saleDate time.Time, paymentMethod string, createdBy string, units []SaleUnit) (*domain.SalesInvoice, error)
	ListInvoices(ctx context.Context, limit int) ([]domain.SalesInvoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.SalesInvoice, error)

	// Batch aggregate maintenance.
	GetBatchSoldStats(ctx context.Context, batchID string) (soldQuantity int, soldValue int64, err error)
	// RecomputeBatch recounts the batch's SOLD units and persists the derived
	// fields atomically. The bool reports whether anything changed.
	RecomputeBatch(ctx context.Context, batchID string) (*domain.ImportBatch, bool, error)

	// Reporting.
	GetDashboardStats(ctx context.Context) (domain.DashboardStats, error)
	GetCategoryRevenue(ctx context.Context) ([]domain.CategoryRevenue, error)
	GetInventoryReport(ctx context.Context) ([]domain.InventoryRow, error)

	// Audit trail.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// Auth accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
