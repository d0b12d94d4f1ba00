package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mobistock/backend/internal/cache"
	"mobistock/backend/internal/domain"
	"mobistock/backend/internal/store"
	"mobistock/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	statsCacheKey           = "dashboard:stats"
	categoryRevenueCacheKey = "dashboard:category-revenue"
)

type Service struct {
	repo                  store.Repository
	stats                 cache.StatsCache
	statsTTL              time.Duration
	accessoryCategoryName string
	defaultAccessoryPrice int64
}

func New(repo store.Repository, stats cache.StatsCache, statsTTL time.Duration, accessoryCategoryName string, defaultAccessoryPrice int64) *Service {
	if stats == nil {
		stats = cache.NoopStatsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}
	if accessoryCategoryName == "" {
		accessoryCategoryName = "Accessory"
	}

	return &Service{
		repo:                  repo,
		stats:                 stats,
		statsTTL:              statsTTL,
		accessoryCategoryName: accessoryCategoryName,
		defaultAccessoryPrice: defaultAccessoryPrice,
	}
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Category{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return domain.Category{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if id == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "category_delete", "category", id, "")
	return nil
}

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.ImportBatch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ImportBatch{}, fmt.Errorf("admin role required")
	}

	if req.CategoryID == "" {
		return domain.ImportBatch{}, fmt.Errorf("%w: category_id is required", store.ErrInvalidInput)
	}
	if req.TotalQuantity < 1 {
		return domain.ImportBatch{}, fmt.Errorf("%w: total_quantity must be positive", store.ErrInvalidInput)
	}
	if req.TotalImportValue < 1 {
		return domain.ImportBatch{}, fmt.Errorf("%w: total_import_value must be positive", store.ErrInvalidInput)
	}

	importDate := time.Now().UTC()
	if req.ImportDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ImportDate)
		if err != nil {
			return domain.ImportBatch{}, fmt.Errorf("%w: import_date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		importDate = parsed
	}

	perUnit := req.ImportPricePerUnit
	if perUnit <= 0 {
		perUnit = req.TotalImportValue / int64(req.TotalQuantity)
	}

	batch := domain.ImportBatch{
		Code:               fmt.Sprintf("LOT%d", time.Now().UTC().UnixNano()),
		ImportDate:         importDate,
		CategoryID:         req.CategoryID,
		TotalQuantity:      req.TotalQuantity,
		ImportPricePerUnit: perUnit,
		TotalImportValue:   req.TotalImportValue,
		RemainingQuantity:  req.TotalQuantity,
		Status:             domain.BatchActive,
		Notes:              strings.TrimSpace(req.Notes),
		CreatedBy:          actor.Username,
	}

	created, err := s.repo.CreateBatch(ctx, batch)
	if err != nil {
		return domain.ImportBatch{}, err
	}

	s.logAudit(ctx, "batch_create", "import_batch", created.ID,
		fmt.Sprintf("code=%s,qty=%d,value=%d", created.Code, created.TotalQuantity, created.TotalImportValue))
	return *created, nil
}

func (s *Service) GetBatch(ctx context.Context, id string) (domain.ImportBatch, error) {
	if id == "" {
		return domain.ImportBatch{}, store.ErrInvalidInput
	}
	batch, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	return *batch, nil
}

func (s *Service) ListBatches(ctx context.Context, status string, limit int) ([]domain.ImportBatch, error) {
	if status != "" &&
		status != domain.BatchActive && status != domain.BatchCompleted && status != domain.BatchCancelled {
		return nil, fmt.Errorf("%w: unknown batch status %q", store.ErrInvalidInput, status)
	}
	return s.repo.ListBatches(ctx, status, limit, 0)
}

func (s *Service) UpdateBatch(ctx context.Context, id string, req domain.BatchUpdateRequest) (domain.ImportBatch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ImportBatch{}, fmt.Errorf("admin role required")
	}
	if id == "" {
		return domain.ImportBatch{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if existing.Status == domain.BatchCancelled {
		return domain.ImportBatch{}, fmt.Errorf("%w: batch is cancelled", store.ErrConflict)
	}

	if req.CategoryID != nil {
		existing.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.TotalQuantity != nil {
		if *req.TotalQuantity < 1 {
			return domain.ImportBatch{}, fmt.Errorf("%w: total_quantity must be positive", store.ErrInvalidInput)
		}
		unitCount, err := s.repo.CountProductsInBatch(ctx, id)
		if err != nil {
			return domain.ImportBatch{}, err
		}
		// The planned quantity can never shrink below the units already
		// registered against the batch.
		if *req.TotalQuantity < unitCount {
			return domain.ImportBatch{}, fmt.Errorf("%w: batch already holds %d units", store.ErrConflict, unitCount)
		}
		existing.TotalQuantity = *req.TotalQuantity
	}
	if req.TotalImportValue != nil {
		if *req.TotalImportValue < 1 {
			return domain.ImportBatch{}, fmt.Errorf("%w: total_import_value must be positive", store.ErrInvalidInput)
		}
		existing.TotalImportValue = *req.TotalImportValue
	}
	if req.Notes != nil {
		existing.Notes = strings.TrimSpace(*req.Notes)
	}

	existing.ImportPricePerUnit = existing.TotalImportValue / int64(existing.TotalQuantity)

	saved, err := s.repo.UpdateBatch(ctx, *existing)
	if err != nil {
		return domain.ImportBatch{}, err
	}

	touched, err := s.repo.PropagateImportPrice(ctx, id, saved.ImportPricePerUnit)
	if err != nil {
		return domain.ImportBatch{}, err
	}

	recomputed := s.recomputeBatch(ctx, id)
	if recomputed != nil {
		saved = recomputed
	}

	s.logAudit(ctx, "batch_update", "import_batch", saved.ID,
		fmt.Sprintf("qty=%d,value=%d,per_unit=%d,products_repriced=%d",
			saved.TotalQuantity, saved.TotalImportValue, saved.ImportPricePerUnit, touched))
	return *saved, nil
}

func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if id == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteBatch(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "batch_delete", "import_batch", id, "")
	return nil
}

func (s *Service) CancelBatch(ctx context.Context, id string) (domain.ImportBatch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ImportBatch{}, fmt.Errorf("admin role required")
	}
	if id == "" {
		return domain.ImportBatch{}, store.ErrInvalidInput
	}

	batch, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if batch.Status == domain.BatchCancelled {
		return *batch, nil
	}

	if err := s.repo.SetBatchStatus(ctx, id, domain.BatchCancelled); err != nil {
		return domain.ImportBatch{}, err
	}
	batch.Status = domain.BatchCancelled

	s.logAudit(ctx, "batch_cancel", "import_batch", id, fmt.Sprintf("code=%s", batch.Code))
	return *batch, nil
}

func (s *Service) AddProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.BatchID = strings.TrimSpace(req.BatchID)
	req.Name = strings.TrimSpace(req.Name)
	req.IMEI = normalizeIMEI(req.IMEI)

	if req.BatchID == "" {
		return domain.Product{}, fmt.Errorf("%w: batch_id is required", store.ErrInvalidInput)
	}
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	if !isValidIMEI(req.IMEI) {
		return domain.Product{}, fmt.Errorf("%w: imei must be 10-17 digits", store.ErrInvalidInput)
	}

	batch, err := s.repo.GetBatch(ctx, req.BatchID)
	if err != nil {
		return domain.Product{}, err
	}
	if batch.Status == domain.BatchCancelled {
		return domain.Product{}, fmt.Errorf("%w: batch is cancelled", store.ErrConflict)
	}

	importPrice := req.ImportPrice
	if importPrice <= 0 {
		importPrice = batch.ImportPricePerUnit
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		BatchID:     req.BatchID,
		Name:        req.Name,
		IMEI:        req.IMEI,
		ImportPrice: importPrice,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.recomputeBatch(ctx, req.BatchID)
	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("batch=%s,imei=%s,price=%d", created.BatchID, created.IMEI, created.ImportPrice))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.Status != "" && !domain.IsValidProductStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown product status %q", store.ErrInvalidInput, filter.Status)
	}
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.IMEI != nil {
		imei := normalizeIMEI(*req.IMEI)
		if !isValidIMEI(imei) {
			return domain.Product{}, fmt.Errorf("%w: imei must be 10-17 digits", store.ErrInvalidInput)
		}
		existing.IMEI = imei
	}
	if req.ImportPrice != nil {
		if *req.ImportPrice < 0 {
			return domain.Product{}, fmt.Errorf("%w: import_price cannot be negative", store.ErrInvalidInput)
		}
		existing.ImportPrice = *req.ImportPrice
	}
	if req.Notes != nil {
		existing.Notes = strings.TrimSpace(*req.Notes)
	}

	saved, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	s.recomputeBatch(ctx, saved.BatchID)
	s.logAudit(ctx, "product_update", "product", saved.ID,
		fmt.Sprintf("imei=%s,price=%d", saved.IMEI, saved.ImportPrice))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if id == "" {
		return store.ErrInvalidInput
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.recomputeBatch(ctx, existing.BatchID)
	s.logAudit(ctx, "product_delete", "product", id, fmt.Sprintf("imei=%s", existing.IMEI))
	return nil
}

// Sell turns one in-stock unit into a paid invoice, optionally bundling the
// cheapest in-stock accessory. Profit is reported against the batch's average
// import price, not the unit's own recorded cost.
func (s *Service) Sell(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResponse{}, fmt.Errorf("authentication required")
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.SaleResponse{}, fmt.Errorf("%w: product_id is required", store.ErrInvalidInput)
	}
	if req.SalePrice < 1 {
		return domain.SaleResponse{}, fmt.Errorf("%w: sale_price must be positive", store.ErrInvalidInput)
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !domain.IsValidPaymentMethod(req.PaymentMethod) {
		return domain.SaleResponse{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	if req.AccessoryPrice != nil && *req.AccessoryPrice < 0 {
		return domain.SaleResponse{}, fmt.Errorf("%w: accessory_price cannot be negative", store.ErrInvalidInput)
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if product.Status != domain.ProductInStock {
		return domain.SaleResponse{}, fmt.Errorf("%w: product is not in stock", store.ErrNotFound)
	}

	batch, err := s.repo.GetBatch(ctx, product.BatchID)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	units := []store.SaleUnit{{
		ProductID:     product.ID,
		SalePrice:     req.SalePrice,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Note:          strings.TrimSpace(req.Notes),
	}}

	response := domain.SaleResponse{
		Profit: req.SalePrice - batch.ImportPricePerUnit,
	}

	var accessory *domain.Product
	if req.IncludeAccessory {
		// An explicit zero is a gift bundle; only an absent price falls back
		// to the configured default.
		accessoryPrice := s.defaultAccessoryPrice
		if req.AccessoryPrice != nil {
			accessoryPrice = *req.AccessoryPrice
		}

		accessory, err = s.pickAccessory(ctx, req.AccessoryBatchID)
		switch {
		case err == nil:
			units = append(units, store.SaleUnit{
				ProductID:     accessory.ID,
				SalePrice:     accessoryPrice,
				CustomerName:  strings.TrimSpace(req.CustomerName),
				CustomerPhone: strings.TrimSpace(req.CustomerPhone),
			})
			response.AccessoryCost = accessory.ImportPrice
			response.Profit += accessoryPrice - accessory.ImportPrice
		case errors.Is(err, store.ErrNotFound):
			// No physical accessory left: the bundle still goes out, costed
			// against the category's average import price. No stock changes.
			estimated := s.estimateAccessoryCost(ctx)
			response.AccessoryVirtual = true
			response.AccessoryCost = estimated
			response.Profit += accessoryPrice - estimated
			accessory = nil
		default:
			return domain.SaleResponse{}, err
		}
	}

	invoice, err := s.repo.RecordSale(ctx, time.Now().UTC(), req.PaymentMethod, actor.Username, units)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.recomputeBatch(ctx, product.BatchID)
	if accessory != nil && accessory.BatchID != product.BatchID {
		s.recomputeBatch(ctx, accessory.BatchID)
	}

	sold, err := s.repo.GetProduct(ctx, product.ID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	response.Invoice = *invoice
	response.Product = *sold
	if accessory != nil {
		soldAccessory, err := s.repo.GetProduct(ctx, accessory.ID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		response.Accessory = soldAccessory
	}

	s.logAudit(ctx, "sale_create", "sales_invoice", invoice.ID,
		fmt.Sprintf("invoice=%s,product=%s,price=%d,accessory=%t,virtual=%t",
			invoice.InvoiceNumber, product.ID, req.SalePrice, req.IncludeAccessory, response.AccessoryVirtual))
	return response, nil
}

func (s *Service) pickAccessory(ctx context.Context, batchID string) (*domain.Product, error) {
	categoryID, err := s.accessoryCategoryID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.FindCheapestInStock(ctx, categoryID, strings.TrimSpace(batchID))
}

func (s *Service) accessoryCategoryID(ctx context.Context) (string, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, s.accessoryCategoryName) {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("%w: accessory category %q not configured", store.ErrNotFound, s.accessoryCategoryName)
}

func (s *Service) estimateAccessoryCost(ctx context.Context) int64 {
	categoryID, err := s.accessoryCategoryID(ctx)
	if err != nil {
		return s.defaultAccessoryPrice
	}
	avg, err := s.repo.AverageImportPrice(ctx, categoryID)
	if err != nil || avg <= 0 {
		return s.defaultAccessoryPrice
	}
	return avg
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.SalesInvoice, error) {
	return s.repo.ListInvoices(ctx, limit)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SalesInvoice, error) {
	if id == "" {
		return domain.SalesInvoice{}, store.ErrInvalidInput
	}
	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.SalesInvoice{}, err
	}
	return *invoice, nil
}

// batchPageSize is how many batches audit and reconcile fetch per page while
// walking the whole table.
const batchPageSize = 500

// forEachBatch visits every batch page by page, newest first, so the audit
// and reconcile passes are never capped by a single listing window.
func (s *Service) forEachBatch(ctx context.Context, fn func(domain.ImportBatch)) error {
	for offset := 0; ; offset += batchPageSize {
		page, err := s.repo.ListBatches(ctx, "", batchPageSize, offset)
		if err != nil {
			return err
		}
		for _, batch := range page {
			fn(batch)
		}
		if len(page) < batchPageSize {
			return nil
		}
	}
}

// batchSoldStats reads a batch's sold recount, retrying transient store
// failures. The read is idempotent, so a bounded retry is safe here in a way
// it would not be on the sale write path.
func (s *Service) batchSoldStats(ctx context.Context, batchID string) (int, int64, error) {
	var (
		soldQty   int
		soldValue int64
		err       error
	)
	for attempt := 0; attempt < 3; attempt++ {
		soldQty, soldValue, err = s.repo.GetBatchSoldStats(ctx, batchID)
		if err == nil || !errors.Is(err, store.ErrUnavailable) {
			return soldQty, soldValue, err
		}
	}
	return soldQty, soldValue, err
}

// AuditBatchStatuses compares every batch's stored aggregates against a fresh
// recount of its product rows. Read-only: drifted batches are reported, not
// repaired.
func (s *Service) AuditBatchStatuses(ctx context.Context) (domain.AuditReport, error) {
	report := domain.AuditReport{
		Mismatches: []domain.BatchMismatch{},
	}
	err := s.forEachBatch(ctx, func(batch domain.ImportBatch) {
		report.TotalBatches++
		soldQty, soldValue, err := s.batchSoldStats(ctx, batch.ID)
		if err != nil {
			report.Skipped = append(report.Skipped, batch.ID)
			log.Printf("[service] WARN: audit skipped batch %s: %v", batch.ID, err)
			return
		}

		expected := batch
		if expected.ApplyAggregates(soldQty, soldValue) {
			report.Mismatches = append(report.Mismatches, domain.BatchMismatch{
				BatchID:              batch.ID,
				Code:                 batch.Code,
				StoredStatus:         batch.Status,
				ExpectedStatus:       expected.Status,
				StoredSoldQuantity:   batch.TotalSoldQuantity,
				ExpectedSoldQuantity: soldQty,
				StoredSoldValue:      batch.TotalSoldValue,
				ExpectedSoldValue:    soldValue,
			})
		} else {
			report.CorrectStatuses++
		}
	})
	if err != nil {
		return domain.AuditReport{}, err
	}

	return report, nil
}

// ReconcileBatches repairs drifted batch aggregates in place. Each batch is
// recomputed in its own transaction, so a failure on one batch does not undo
// the others; rerunning is safe.
func (s *Service) ReconcileBatches(ctx context.Context) (domain.ReconcileReport, error) {
	report := domain.ReconcileReport{
		Mismatches: []domain.BatchMismatch{},
	}
	err := s.forEachBatch(ctx, func(batch domain.ImportBatch) {
		report.TotalBatches++
		updated, changed, err := s.repo.RecomputeBatch(ctx, batch.ID)
		if err != nil {
			report.Skipped = append(report.Skipped, batch.ID)
			log.Printf("[service] WARN: reconcile skipped batch %s: %v", batch.ID, err)
			return
		}

		if changed {
			report.BatchesUpdated++
			report.Mismatches = append(report.Mismatches, domain.BatchMismatch{
				BatchID:              batch.ID,
				Code:                 batch.Code,
				StoredStatus:         batch.Status,
				ExpectedStatus:       updated.Status,
				StoredSoldQuantity:   batch.TotalSoldQuantity,
				ExpectedSoldQuantity: updated.TotalSoldQuantity,
				StoredSoldValue:      batch.TotalSoldValue,
				ExpectedSoldValue:    updated.TotalSoldValue,
			})
		} else {
			report.CorrectStatuses++
		}

		switch updated.Status {
		case domain.BatchActive:
			report.ActiveBatches++
		case domain.BatchCompleted:
			report.CompletedBatches++
		}
	})
	if err != nil {
		return domain.ReconcileReport{}, err
	}

	s.logAudit(ctx, "batch_reconcile", "import_batch", "all",
		fmt.Sprintf("total=%d,updated=%d,skipped=%d", report.TotalBatches, report.BatchesUpdated, len(report.Skipped)))
	return report, nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	if cached, found, err := s.stats.GetStats(ctx, statsCacheKey); err == nil && found {
		return *cached, nil
	}

	stats, err := s.repo.GetDashboardStats(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	if err := s.stats.SetStats(ctx, statsCacheKey, &stats, s.statsTTL); err != nil {
		log.Printf("[service] WARN: failed to cache dashboard stats: %v", err)
	}
	return stats, nil
}

func (s *Service) CategoryRevenue(ctx context.Context) ([]domain.CategoryRevenue, error) {
	if cached, found, err := s.stats.GetCategoryRevenue(ctx, categoryRevenueCacheKey); err == nil && found {
		return cached, nil
	}

	revenue, err := s.repo.GetCategoryRevenue(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.stats.SetCategoryRevenue(ctx, categoryRevenueCacheKey, revenue, s.statsTTL); err != nil {
		log.Printf("[service] WARN: failed to cache category revenue: %v", err)
	}
	return revenue, nil
}

func (s *Service) InventoryReport(ctx context.Context) ([]domain.InventoryRow, error) {
	return s.repo.GetInventoryReport(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// recomputeBatch refreshes a batch's derived aggregates after a product
// mutation. Failures are logged, not returned: the source rows are already
// committed and the reconcile pass can repair any drift later.
func (s *Service) recomputeBatch(ctx context.Context, batchID string) *domain.ImportBatch {
	updated, _, err := s.repo.RecomputeBatch(ctx, batchID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: failed to recompute batch %s: %v", batchID, err)
		}
		return nil
	}
	return updated
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

func normalizeIMEI(imei string) string {
	return strings.TrimSpace(imei)
}

func isValidIMEI(imei string) bool {
	if len(imei) < 10 || len(imei) > 17 {
		return false
	}
	for _, r := range imei {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
