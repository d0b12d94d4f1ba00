package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mobistock/backend/internal/domain"
	"mobistock/backend/internal/store"
)

func seedBatch(t *testing.T, s *Store, categoryName string, qty int) (domain.Category, domain.ImportBatch) {
	t.Helper()
	ctx := context.Background()

	category, err := s.CreateCategory(ctx, domain.Category{Name: categoryName})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	batch, err := s.CreateBatch(ctx, domain.ImportBatch{
		Code:               "LOT-TEST",
		CategoryID:         category.ID,
		TotalQuantity:      qty,
		ImportPricePerUnit: 100000,
		TotalImportValue:   int64(qty) * 100000,
		RemainingQuantity:  qty,
		Status:             domain.BatchActive,
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return *category, *batch
}

func TestFindCheapestInStockPrefersEarliestOnTie(t *testing.T) {
	s := New()
	ctx := context.Background()
	category, batch := seedBatch(t, s, "Accessory", 5)

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	if _, err := s.CreateProduct(ctx, domain.Product{
		BatchID: batch.ID, Name: "Cable", IMEI: "350000000000002",
		ImportPrice: 50000, CreatedAt: newer,
	}); err != nil {
		t.Fatalf("create late product: %v", err)
	}
	early, err := s.CreateProduct(ctx, domain.Product{
		BatchID: batch.ID, Name: "Cable", IMEI: "350000000000001",
		ImportPrice: 50000, CreatedAt: older,
	})
	if err != nil {
		t.Fatalf("create early product: %v", err)
	}

	picked, err := s.FindCheapestInStock(ctx, category.ID, "")
	if err != nil {
		t.Fatalf("find cheapest: %v", err)
	}
	if picked.ID != early.ID {
		t.Fatalf("expected earliest unit %s on price tie, got %s", early.ID, picked.ID)
	}
}

func TestCreateProductEnforcesCapacityAndIMEI(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, batch := seedBatch(t, s, "iPhone", 1)

	if _, err := s.CreateProduct(ctx, domain.Product{
		BatchID: batch.ID, Name: "iPhone", IMEI: "350000000000001", ImportPrice: 100000,
	}); err != nil {
		t.Fatalf("first product: %v", err)
	}

	_, err := s.CreateProduct(ctx, domain.Product{
		BatchID: batch.ID, Name: "iPhone", IMEI: "350000000000002", ImportPrice: 100000,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}

	other, _ := seedBatchOther(t, s)
	_, err = s.CreateProduct(ctx, domain.Product{
		BatchID: other.ID, Name: "iPhone", IMEI: "350000000000001", ImportPrice: 100000,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected IMEI conflict, got %v", err)
	}
}

func seedBatchOther(t *testing.T, s *Store) (domain.ImportBatch, domain.Category) {
	t.Helper()
	category, batch := seedBatch(t, s, "Android", 5)
	return batch, category
}

func TestRecordSaleOnlyFlipsInStockUnits(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, batch := seedBatch(t, s, "iPhone", 2)

	product, err := s.CreateProduct(ctx, domain.Product{
		BatchID: batch.ID, Name: "iPhone", IMEI: "350000000000001", ImportPrice: 100000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	units := []store.SaleUnit{{ProductID: product.ID, SalePrice: 150000}}
	invoice, err := s.RecordSale(ctx, time.Now().UTC(), domain.PaymentCash, "staff", units)
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if invoice.TotalAmount != 150000 || len(invoice.Details) != 1 {
		t.Fatalf("unexpected invoice %+v", invoice)
	}

	if _, err := s.RecordSale(ctx, time.Now().UTC(), domain.PaymentCash, "staff", units); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected second sale of same unit to fail, got %v", err)
	}

	sold, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if sold.Status != domain.ProductSold || sold.InvoiceNumber != invoice.InvoiceNumber {
		t.Fatalf("unexpected sold state %+v", sold)
	}
}

func TestRecordSaleFailureLeavesNoPartialState(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, batch := seedBatch(t, s, "iPhone", 2)

	good, err := s.CreateProduct(ctx, domain.Product{
		BatchID: batch.ID, Name: "iPhone", IMEI: "350000000000001", ImportPrice: 100000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = s.RecordSale(ctx, time.Now().UTC(), domain.PaymentCash, "staff", []store.SaleUnit{
		{ProductID: good.ID, SalePrice: 150000},
		{ProductID: "missing", SalePrice: 100000},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	untouched, err := s.GetProduct(ctx, good.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if untouched.Status != domain.ProductInStock {
		t.Fatalf("failed sale must not touch other units, got %s", untouched.Status)
	}
}

func TestListBatchesPagesThroughAll(t *testing.T) {
	s := New()
	ctx := context.Background()

	category, err := s.CreateCategory(ctx, domain.Category{Name: "iPhone"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := s.CreateBatch(ctx, domain.ImportBatch{
			Code:               fmt.Sprintf("LOT-%d", i),
			CategoryID:         category.ID,
			TotalQuantity:      1,
			ImportPricePerUnit: 100000,
			TotalImportValue:   100000,
			RemainingQuantity:  1,
			Status:             domain.BatchActive,
		}); err != nil {
			t.Fatalf("create batch %d: %v", i, err)
		}
	}

	seen := map[string]bool{}
	for offset := 0; ; offset += 3 {
		page, err := s.ListBatches(ctx, "", 3, offset)
		if err != nil {
			t.Fatalf("list offset %d: %v", offset, err)
		}
		for _, b := range page {
			if seen[b.ID] {
				t.Fatalf("batch %s returned twice", b.ID)
			}
			seen[b.ID] = true
		}
		if len(page) < 3 {
			break
		}
	}
	if len(seen) != 7 {
		t.Fatalf("expected paging to visit all 7 batches, visited %d", len(seen))
	}

	empty, err := s.ListBatches(ctx, "", 3, 100)
	if err != nil {
		t.Fatalf("list past the end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page past the end, got %d rows", len(empty))
	}
}

func TestRecomputeBatchReportsChange(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, batch := seedBatch(t, s, "iPhone", 1)

	product, err := s.CreateProduct(ctx, domain.Product{
		BatchID: batch.ID, Name: "iPhone", IMEI: "350000000000001", ImportPrice: 100000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.RecordSale(ctx, time.Now().UTC(), domain.PaymentCash, "staff",
		[]store.SaleUnit{{ProductID: product.ID, SalePrice: 150000}}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	updated, changed, err := s.RecomputeBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !changed {
		t.Fatalf("expected first recompute after sale to report a change")
	}
	if updated.Status != domain.BatchCompleted || updated.TotalSoldValue != 150000 {
		t.Fatalf("unexpected aggregates %+v", updated)
	}

	_, changed, err = s.RecomputeBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if changed {
		t.Fatalf("recompute must be a no-op when aggregates are current")
	}

	if _, _, err := s.RecomputeBatch(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown batch, got %v", err)
	}
}
