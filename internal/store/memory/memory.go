package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mobistock/backend/internal/domain"
	"mobistock/backend/internal/store"
	"mobistock/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	categories       map[string]domain.Category
	batches          map[string]domain.ImportBatch
	products         map[string]domain.Product
	imeiIndex        map[string]string
	invoicesByID     map[string]domain.SalesInvoice
	invoiceSeqByYear map[int]int
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		categories:       make(map[string]domain.Category),
		batches:          make(map[string]domain.ImportBatch),
		products:         make(map[string]domain.Product),
		imeiIndex:        make(map[string]string),
		invoicesByID:     make(map[string]domain.SalesInvoice),
		invoiceSeqByYear: make(map[int]int),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

// NewSeeded returns a store preloaded with demo reference data for dev mode
// (no DATABASE_URL set).
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	phones := domain.Category{ID: "cat-phones", Name: "iPhone", Description: "Used iPhones", IsActive: true, CreatedAt: now}
	accessories := domain.Category{ID: "cat-accessories", Name: "Accessory", Description: "Cases, cables, chargers", IsActive: true, CreatedAt: now}
	s.categories[phones.ID] = phones
	s.categories[accessories.ID] = accessories

	batch := domain.ImportBatch{
		ID:                 "batch-demo-1",
		Code:               "LOT1700000000000000000",
		ImportDate:         now,
		CategoryID:         phones.ID,
		TotalQuantity:      5,
		ImportPricePerUnit: 15000000,
		TotalImportValue:   75000000,
		RemainingQuantity:  5,
		Status:             domain.BatchActive,
		CreatedBy:          "system",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.batches[batch.ID] = batch

	accessoryBatch := domain.ImportBatch{
		ID:                 "batch-demo-acc",
		Code:               "LOT1700000000000000001",
		ImportDate:         now,
		CategoryID:         accessories.ID,
		TotalQuantity:      20,
		ImportPricePerUnit: 150000,
		TotalImportValue:   3000000,
		RemainingQuantity:  20,
		Status:             domain.BatchActive,
		CreatedBy:          "system",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.batches[accessoryBatch.ID] = accessoryBatch

	units := []struct {
		id    string
		batch string
		cat   string
		name  string
		imei  string
		price int64
	}{
		{"prod-demo-1", batch.ID, phones.ID, "iPhone 13 128GB", "350000000000001", 15000000},
		{"prod-demo-2", batch.ID, phones.ID, "iPhone 13 128GB", "350000000000002", 15000000},
		{"prod-demo-3", batch.ID, phones.ID, "iPhone 13 256GB", "350000000000003", 15000000},
		{"prod-demo-acc-1", accessoryBatch.ID, accessories.ID, "Silicone Case", "350000000001001", 120000},
		{"prod-demo-acc-2", accessoryBatch.ID, accessories.ID, "20W Charger", "350000000001002", 250000},
	}
	for _, u := range units {
		p := domain.Product{
			ID:          u.id,
			BatchID:     u.batch,
			CategoryID:  u.cat,
			Name:        u.name,
			IMEI:        u.imei,
			ImportPrice: u.price,
			Status:      domain.ProductInStock,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.products[p.ID] = p
		s.imeiIndex[p.IMEI] = p.ID
	}

	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; hardcoded
// dev defaults are used (with a warning) when unset. Production deployments
// use PostgreSQL via DATABASE_URL.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.IsActive = true
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categories[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := category
	return &copied, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	for _, batch := range s.batches {
		if batch.CategoryID == id {
			return store.ErrConflict
		}
	}
	for _, product := range s.products {
		if product.CategoryID == id {
			return store.ErrConflict
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.ImportBatch) (*domain.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.CategoryID == "" || batch.TotalQuantity < 1 || batch.TotalImportValue < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.categories[batch.CategoryID]; !exists {
		return nil, store.ErrNotFound
	}
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now
	s.batches[batch.ID] = batch
	created := batch
	return &created, nil
}

func (s *Store) GetBatch(_ context.Context, id string) (*domain.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, exists := s.batches[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := batch
	return &copied, nil
}

func (s *Store) ListBatches(_ context.Context, status string, limit, offset int) ([]domain.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]domain.ImportBatch, 0, len(s.batches))
	for _, b := range s.batches {
		if status != "" && b.Status != status {
			continue
		}
		batches = append(batches, b)
	}
	slices.SortFunc(batches, func(a, b domain.ImportBatch) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if offset > 0 {
		if offset >= len(batches) {
			return []domain.ImportBatch{}, nil
		}
		batches = batches[offset:]
	}
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

func (s *Store) UpdateBatch(_ context.Context, batch domain.ImportBatch) (*domain.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.batches[batch.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if batch.TotalQuantity < 1 || batch.TotalImportValue < 1 {
		return nil, store.ErrInvalidInput
	}

	existing.CategoryID = batch.CategoryID
	existing.TotalQuantity = batch.TotalQuantity
	existing.TotalImportValue = batch.TotalImportValue
	existing.ImportPricePerUnit = batch.ImportPricePerUnit
	existing.Notes = batch.Notes
	existing.UpdatedAt = time.Now().UTC()
	s.batches[batch.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[id]; !exists {
		return store.ErrNotFound
	}
	for _, product := range s.products {
		if product.BatchID == id {
			return store.ErrConflict
		}
	}
	delete(s.batches, id)
	return nil
}

func (s *Store) SetBatchStatus(_ context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, exists := s.batches[id]
	if !exists {
		return store.ErrNotFound
	}
	batch.Status = status
	batch.UpdatedAt = time.Now().UTC()
	s.batches[id] = batch
	return nil
}

func (s *Store) CountProductsInBatch(_ context.Context, batchID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countProductsLocked(batchID), nil
}

func (s *Store) countProductsLocked(batchID string) int {
	count := 0
	for _, product := range s.products {
		if product.BatchID == batchID {
			count++
		}
	}
	return count
}

func (s *Store) PropagateImportPrice(_ context.Context, batchID string, importPrice int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batchID]; !exists {
		return 0, store.ErrNotFound
	}
	now := time.Now().UTC()
	touched := 0
	for id, product := range s.products {
		if product.BatchID != batchID || product.ImportPrice == importPrice {
			continue
		}
		product.ImportPrice = importPrice
		product.UpdatedAt = now
		s.products[id] = product
		touched++
	}
	return touched, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.BatchID == "" || product.Name == "" || product.IMEI == "" || product.ImportPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	batch, exists := s.batches[product.BatchID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if _, taken := s.imeiIndex[product.IMEI]; taken {
		return nil, fmt.Errorf("%w: imei already exists", store.ErrConflict)
	}
	if s.countProductsLocked(product.BatchID) >= batch.TotalQuantity {
		return nil, fmt.Errorf("%w: batch capacity reached", store.ErrConflict)
	}

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.CategoryID = batch.CategoryID
	product.Status = domain.ProductInStock

	s.products[product.ID] = product
	s.imeiIndex[product.IMEI] = product.ID

	// Units roll their cost into the batch's import value; the planned
	// TotalQuantity is left alone.
	batch.TotalImportValue += product.ImportPrice
	batch.UpdatedAt = now
	s.batches[batch.ID] = batch

	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.BatchID != "" && p.BatchID != filter.BatchID {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.IMEI != "" && !strings.Contains(p.IMEI, filter.IMEI) {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(products) > filter.Limit {
		products = products[:filter.Limit]
	}
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Only units still on the shelf may be edited.
	if existing.Status != domain.ProductInStock {
		return nil, fmt.Errorf("%w: product is not in stock", store.ErrConflict)
	}
	if product.Name == "" || product.IMEI == "" || product.ImportPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.IMEI != existing.IMEI {
		if _, taken := s.imeiIndex[product.IMEI]; taken {
			return nil, fmt.Errorf("%w: imei already exists", store.ErrConflict)
		}
		delete(s.imeiIndex, existing.IMEI)
		s.imeiIndex[product.IMEI] = existing.ID
	}

	existing.Name = product.Name
	existing.IMEI = product.IMEI
	existing.ImportPrice = product.ImportPrice
	existing.Notes = product.Notes
	existing.UpdatedAt = time.Now().UTC()
	s.products[existing.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	if product.Status != domain.ProductInStock {
		return fmt.Errorf("%w: product is not in stock", store.ErrConflict)
	}

	delete(s.imeiIndex, product.IMEI)
	delete(s.products, id)

	if batch, ok := s.batches[product.BatchID]; ok {
		batch.TotalImportValue -= product.ImportPrice
		if batch.TotalImportValue < 0 {
			batch.TotalImportValue = 0
		}
		batch.UpdatedAt = time.Now().UTC()
		s.batches[batch.ID] = batch
	}
	return nil
}

func (s *Store) FindCheapestInStock(_ context.Context, categoryID string, batchID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Product
	for _, p := range s.products {
		if p.Status != domain.ProductInStock {
			continue
		}
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		if batchID != "" && p.BatchID != batchID {
			continue
		}
		candidate := p
		if best == nil ||
			candidate.ImportPrice < best.ImportPrice ||
			(candidate.ImportPrice == best.ImportPrice && candidate.CreatedAt.Before(best.CreatedAt)) {
			best = &candidate
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	copied := *best
	return &copied, nil
}

func (s *Store) AverageImportPrice(_ context.Context, categoryID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	count := 0
	for _, p := range s.products {
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		total += p.ImportPrice
		count++
	}
	if count == 0 {
		return 0, store.ErrNotFound
	}
	return total / int64(count), nil
}

func (s *Store) RecordSale(_ context.Context, saleDate time.Time, paymentMethod string, createdBy string, units []store.SaleUnit) (*domain.SalesInvoice, error) {
	if len(units) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if saleDate.IsZero() {
		saleDate = time.Now().UTC()
	}

	// Validate every unit before mutating anything so a failure leaves no
	// partial state behind.
	for _, unit := range units {
		product, exists := s.products[unit.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.Status != domain.ProductInStock {
			return nil, fmt.Errorf("%w: product is not in stock", store.ErrNotFound)
		}
		if unit.SalePrice < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	year := saleDate.Year()
	s.invoiceSeqByYear[year]++
	invoiceNumber := fmt.Sprintf("HD%d%06d", year, s.invoiceSeqByYear[year])

	invoice := domain.SalesInvoice{
		ID:            xid.New("inv"),
		InvoiceNumber: invoiceNumber,
		SaleDate:      saleDate,
		PaymentMethod: paymentMethod,
		Status:        domain.InvoicePaid,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
	}

	for _, unit := range units {
		product := s.products[unit.ProductID]
		soldAt := saleDate
		product.Status = domain.ProductSold
		product.SalePrice = unit.SalePrice
		product.SoldDate = &soldAt
		product.InvoiceNumber = invoiceNumber
		product.CustomerName = unit.CustomerName
		product.CustomerPhone = unit.CustomerPhone
		if unit.Note != "" {
			product.Notes = strings.TrimSpace(strings.Join([]string{product.Notes, unit.Note}, " "))
		}
		product.UpdatedAt = time.Now().UTC()
		s.products[product.ID] = product

		invoice.Details = append(invoice.Details, domain.SalesInvoiceDetail{
			ID:          xid.New("invd"),
			InvoiceID:   invoice.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			IMEI:        product.IMEI,
			SalePrice:   unit.SalePrice,
			Quantity:    1,
			TotalPrice:  unit.SalePrice,
		})
		invoice.TotalAmount += unit.SalePrice
	}
	invoice.FinalAmount = invoice.TotalAmount

	s.invoicesByID[invoice.ID] = invoice
	created := invoice
	return &created, nil
}

func (s *Store) ListInvoices(_ context.Context, limit int) ([]domain.SalesInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.SalesInvoice, 0, len(s.invoicesByID))
	for _, inv := range s.invoicesByID {
		invoices = append(invoices, inv)
	}
	slices.SortFunc(invoices, func(a, b domain.SalesInvoice) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.InvoiceNumber, a.InvoiceNumber)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.SalesInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoicesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := invoice
	return &copied, nil
}

func (s *Store) GetBatchSoldStats(_ context.Context, batchID string) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.batches[batchID]; !exists {
		return 0, 0, store.ErrNotFound
	}
	return s.soldStatsLocked(batchID)
}

func (s *Store) soldStatsLocked(batchID string) (int, int64, error) {
	soldQty := 0
	var soldValue int64
	for _, p := range s.products {
		if p.BatchID != batchID || p.Status != domain.ProductSold {
			continue
		}
		soldQty++
		soldValue += p.SalePrice
	}
	return soldQty, soldValue, nil
}

func (s *Store) RecomputeBatch(_ context.Context, batchID string) (*domain.ImportBatch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, exists := s.batches[batchID]
	if !exists {
		return nil, false, store.ErrNotFound
	}
	soldQty, soldValue, err := s.soldStatsLocked(batchID)
	if err != nil {
		return nil, false, err
	}

	changed := batch.ApplyAggregates(soldQty, soldValue)
	if changed {
		batch.UpdatedAt = time.Now().UTC()
		s.batches[batchID] = batch
	}
	updated := batch
	return &updated, changed, nil
}

func (s *Store) GetDashboardStats(_ context.Context) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{}
	for _, b := range s.batches {
		stats.TotalBatches++
		switch b.Status {
		case domain.BatchActive:
			stats.ActiveBatches++
		case domain.BatchCompleted:
			stats.CompletedBatches++
		}
		stats.TotalImportValue += b.TotalImportValue
	}
	for _, p := range s.products {
		stats.TotalProducts++
		switch p.Status {
		case domain.ProductInStock:
			stats.ProductsInStock++
		case domain.ProductSold:
			stats.ProductsSold++
			stats.TotalRevenue += p.SalePrice
			stats.TotalProfit += p.SalePrice - p.ImportPrice
		}
	}
	stats.InvoiceCount = len(s.invoicesByID)
	return stats, nil
}

func (s *Store) GetCategoryRevenue(_ context.Context) ([]domain.CategoryRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := make(map[string]*domain.CategoryRevenue, len(s.categories))
	for id, c := range s.categories {
		byCategory[id] = &domain.CategoryRevenue{CategoryID: id, CategoryName: c.Name}
	}
	for _, p := range s.products {
		if p.Status != domain.ProductSold {
			continue
		}
		row, exists := byCategory[p.CategoryID]
		if !exists {
			row = &domain.CategoryRevenue{CategoryID: p.CategoryID}
			byCategory[p.CategoryID] = row
		}
		row.SoldQuantity++
		row.Revenue += p.SalePrice
		row.Profit += p.SalePrice - p.ImportPrice
	}

	rows := make([]domain.CategoryRevenue, 0, len(byCategory))
	for _, row := range byCategory {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b domain.CategoryRevenue) int {
		if a.Revenue == b.Revenue {
			return cmpString(a.CategoryName, b.CategoryName)
		}
		if a.Revenue > b.Revenue {
			return -1
		}
		return 1
	})
	return rows, nil
}

func (s *Store) GetInventoryReport(_ context.Context) ([]domain.InventoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.InventoryRow, 0, len(s.batches))
	for _, b := range s.batches {
		row := domain.InventoryRow{
			BatchID:           b.ID,
			Code:              b.Code,
			Status:            b.Status,
			TotalQuantity:     b.TotalQuantity,
			RemainingQuantity: b.RemainingQuantity,
			TotalImportValue:  b.TotalImportValue,
			TotalSoldValue:    b.TotalSoldValue,
			ProfitLoss:        b.ProfitLoss,
		}
		if category, exists := s.categories[b.CategoryID]; exists {
			row.CategoryName = category.Name
		}
		for _, p := range s.products {
			if p.BatchID != b.ID {
				continue
			}
			row.UnitsAdded++
			switch p.Status {
			case domain.ProductInStock:
				row.UnitsInStock++
			case domain.ProductSold:
				row.UnitsSold++
			}
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b domain.InventoryRow) int {
		return cmpString(a.Code, b.Code)
	})
	return rows, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
