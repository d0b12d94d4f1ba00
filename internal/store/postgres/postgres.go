package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mobistock/backend/internal/domain"
	"mobistock/backend/internal/store"
	"mobistock/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.IsActive = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, category.ID, category.Name, category.Description, category.IsActive, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var category domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&category.ID, &category.Name, &category.Description, &category.IsActive, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	var referenced bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM import_batches WHERE category_id = $1)
			OR EXISTS (SELECT 1 FROM products WHERE category_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		return store.ErrConflict
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.ImportBatch) (*domain.ImportBatch, error) {
	if batch.CategoryID == "" || batch.TotalQuantity < 1 || batch.TotalImportValue < 1 {
		return nil, store.ErrInvalidInput
	}
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches (
			id, code, import_date, category_id, total_quantity,
			import_price_per_unit, total_import_value,
			total_sold_quantity, total_sold_value, remaining_quantity, profit_loss,
			status, notes, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, batch.ID, batch.Code, batch.ImportDate, batch.CategoryID, batch.TotalQuantity,
		batch.ImportPricePerUnit, batch.TotalImportValue,
		batch.TotalSoldQuantity, batch.TotalSoldValue, batch.RemainingQuantity, batch.ProfitLoss,
		batch.Status, batch.Notes, batch.CreatedBy, batch.CreatedAt, batch.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := batch
	return &created, nil
}

const batchColumns = `
	id, code, import_date, category_id, total_quantity,
	import_price_per_unit, total_import_value,
	total_sold_quantity, total_sold_value, remaining_quantity, profit_loss,
	status, notes, created_by, created_at, updated_at
`

func scanBatch(row interface{ Scan(...any) error }) (*domain.ImportBatch, error) {
	var b domain.ImportBatch
	err := row.Scan(&b.ID, &b.Code, &b.ImportDate, &b.CategoryID, &b.TotalQuantity,
		&b.ImportPricePerUnit, &b.TotalImportValue,
		&b.TotalSoldQuantity, &b.TotalSoldValue, &b.RemainingQuantity, &b.ProfitLoss,
		&b.Status, &b.Notes, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*domain.ImportBatch, error) {
	batch, err := scanBatch(s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return batch, nil
}

func (s *Store) ListBatches(ctx context.Context, status string, limit, offset int) ([]domain.ImportBatch, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + batchColumns + ` FROM import_batches`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, markUnavailable(err)
	}
	defer rows.Close()

	batches := make([]domain.ImportBatch, 0, limit)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}
	if err := rows.Err(); err != nil {
		return nil, markUnavailable(err)
	}

	return batches, nil
}

func (s *Store) UpdateBatch(ctx context.Context, batch domain.ImportBatch) (*domain.ImportBatch, error) {
	if batch.TotalQuantity < 1 || batch.TotalImportValue < 1 {
		return nil, store.ErrInvalidInput
	}

	updated, err := scanBatch(s.db.QueryRowContext(ctx, `
		UPDATE import_batches
		SET category_id = $2,
			total_quantity = $3,
			total_import_value = $4,
			import_price_per_unit = $5,
			notes = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING `+batchColumns, batch.ID, batch.CategoryID, batch.TotalQuantity,
		batch.TotalImportValue, batch.ImportPricePerUnit, batch.Notes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	var hasProducts bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE batch_id = $1)`, id).Scan(&hasProducts)
	if err != nil {
		return err
	}
	if hasProducts {
		return store.ErrConflict
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM import_batches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetBatchStatus(ctx context.Context, id string, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE import_batches SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountProductsInBatch(ctx context.Context, batchID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE batch_id = $1`, batchID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) PropagateImportPrice(ctx context.Context, batchID string, importPrice int64) (int, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM import_batches WHERE id = $1)`, batchID).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET import_price = $2, updated_at = now()
		WHERE batch_id = $1 AND import_price <> $2
	`, batchID, importPrice)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.BatchID == "" || product.Name == "" || product.IMEI == "" || product.ImportPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Status = domain.ProductInStock

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var totalQuantity int
	var categoryID string
	err = tx.QueryRowContext(ctx, `
		SELECT total_quantity, category_id
		FROM import_batches
		WHERE id = $1
		FOR UPDATE
	`, product.BatchID).Scan(&totalQuantity, &categoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CategoryID = categoryID

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE batch_id = $1`, product.BatchID).Scan(&count); err != nil {
		return nil, err
	}
	if count >= totalQuantity {
		return nil, fmt.Errorf("%w: batch capacity reached", store.ErrConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (
			id, batch_id, category_id, name, imei, import_price, sale_price,
			status, notes, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,$9,$10)
	`, product.ID, product.BatchID, product.CategoryID, product.Name, product.IMEI,
		product.ImportPrice, product.Status, product.Notes, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: imei already exists", store.ErrConflict)
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE import_batches
		SET total_import_value = total_import_value + $2, updated_at = now()
		WHERE id = $1
	`, product.BatchID, product.ImportPrice)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

const productColumns = `
	id, batch_id, category_id, name, imei, import_price, sale_price,
	status, sold_date, COALESCE(invoice_number, ''), COALESCE(customer_name, ''),
	COALESCE(customer_phone, ''), notes, created_at, updated_at
`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var soldDate sql.NullTime
	err := row.Scan(&p.ID, &p.BatchID, &p.CategoryID, &p.Name, &p.IMEI,
		&p.ImportPrice, &p.SalePrice, &p.Status, &soldDate,
		&p.InvoiceNumber, &p.CustomerName, &p.CustomerPhone,
		&p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if soldDate.Valid {
		t := soldDate.Time
		p.SoldDate = &t
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	limit := filter.Limit
	if limit < 1 || limit > 1000 {
		limit = 200
	}

	conditions := []string{}
	args := []any{}
	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.BatchID != "" {
		addCondition("batch_id = $%d", filter.BatchID)
	}
	if filter.CategoryID != "" {
		addCondition("category_id = $%d", filter.CategoryID)
	}
	if filter.Status != "" {
		addCondition("status = $%d", filter.Status)
	}
	if filter.IMEI != "" {
		addCondition("imei LIKE '%%' || $%d || '%%'", filter.IMEI)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.IMEI == "" || product.ImportPrice < 0 {
		return nil, store.ErrInvalidInput
	}

	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, imei = $3, import_price = $4, notes = $5, updated_at = now()
		WHERE id = $1 AND status = 'IN_STOCK'
		RETURNING `+productColumns, product.ID, product.Name, product.IMEI,
		product.ImportPrice, product.Notes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing row from a unit that already left the shelf.
			var status string
			statusErr := s.db.QueryRowContext(ctx,
				`SELECT status FROM products WHERE id = $1`, product.ID).Scan(&status)
			if errors.Is(statusErr, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			if statusErr != nil {
				return nil, statusErr
			}
			return nil, fmt.Errorf("%w: product is not in stock", store.ErrConflict)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: imei already exists", store.ErrConflict)
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var batchID, status string
	var importPrice int64
	err = tx.QueryRowContext(ctx, `
		SELECT batch_id, status, import_price FROM products WHERE id = $1 FOR UPDATE
	`, id).Scan(&batchID, &status, &importPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if status != domain.ProductInStock {
		return fmt.Errorf("%w: product is not in stock", store.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE import_batches
		SET total_import_value = GREATEST(total_import_value - $2, 0), updated_at = now()
		WHERE id = $1
	`, batchID, importPrice)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) FindCheapestInStock(ctx context.Context, categoryID string, batchID string) (*domain.Product, error) {
	conditions := []string{`status = 'IN_STOCK'`}
	args := []any{}
	if categoryID != "" {
		args = append(args, categoryID)
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if batchID != "" {
		args = append(args, batchID)
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY import_price, created_at LIMIT 1`

	product, err := scanProduct(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) AverageImportPrice(ctx context.Context, categoryID string) (int64, error) {
	var avg sql.NullFloat64
	var err error
	if categoryID != "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT AVG(import_price) FROM products WHERE category_id = $1`, categoryID).Scan(&avg)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT AVG(import_price) FROM products`).Scan(&avg)
	}
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, store.ErrNotFound
	}
	return int64(avg.Float64), nil
}

func (s *Store) RecordSale(ctx context.Context, saleDate time.Time, paymentMethod string, createdBy string, units []store.SaleUnit) (*domain.SalesInvoice, error) {
	if len(units) == 0 {
		return nil, store.ErrInvalidInput
	}
	if saleDate.IsZero() {
		saleDate = time.Now().UTC()
	}

	// Invoice numbers carry a per-year sequence. Two concurrent sales can pick
	// the same next number; the unique index rejects the loser and we retry
	// with a fresh transaction.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		invoice, err := s.recordSaleOnce(ctx, saleDate, paymentMethod, createdBy, units)
		if err == nil {
			return invoice, nil
		}
		if !isUniqueViolation(err) && !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("record sale: retries exhausted: %w", lastErr)
}

func (s *Store) recordSaleOnce(ctx context.Context, saleDate time.Time, paymentMethod string, createdBy string, units []store.SaleUnit) (*domain.SalesInvoice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	year := saleDate.Year()
	prefix := fmt.Sprintf("HD%d", year)
	var lastNumber sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(invoice_number) FROM sales_invoices WHERE invoice_number LIKE $1 || '%'
	`, prefix).Scan(&lastNumber)
	if err != nil {
		return nil, err
	}
	seq := 1
	if lastNumber.Valid && len(lastNumber.String) > len(prefix) {
		if _, err := fmt.Sscanf(lastNumber.String[len(prefix):], "%d", &seq); err == nil {
			seq++
		}
	}
	invoiceNumber := fmt.Sprintf("%s%06d", prefix, seq)

	invoice := domain.SalesInvoice{
		ID:            xid.New("inv"),
		InvoiceNumber: invoiceNumber,
		SaleDate:      saleDate,
		PaymentMethod: paymentMethod,
		Status:        domain.InvoicePaid,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
	}

	details := make([]domain.SalesInvoiceDetail, 0, len(units))
	for _, unit := range units {
		if unit.SalePrice < 0 {
			return nil, store.ErrInvalidInput
		}

		// The status guard in the WHERE clause is the double-sale bar: a unit
		// already sold (or damaged) matches zero rows.
		var name, imei string
		err := tx.QueryRowContext(ctx, `
			UPDATE products
			SET status = 'SOLD',
				sale_price = $2,
				sold_date = $3,
				invoice_number = $4,
				customer_name = $5,
				customer_phone = $6,
				updated_at = now()
			WHERE id = $1 AND status = 'IN_STOCK'
			RETURNING name, imei
		`, unit.ProductID, unit.SalePrice, saleDate, invoiceNumber,
			unit.CustomerName, unit.CustomerPhone).Scan(&name, &imei)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: product is not in stock", store.ErrNotFound)
			}
			return nil, err
		}

		details = append(details, domain.SalesInvoiceDetail{
			ID:          xid.New("invd"),
			InvoiceID:   invoice.ID,
			ProductID:   unit.ProductID,
			ProductName: name,
			IMEI:        imei,
			SalePrice:   unit.SalePrice,
			Quantity:    1,
			TotalPrice:  unit.SalePrice,
		})
		invoice.TotalAmount += unit.SalePrice
	}
	invoice.FinalAmount = invoice.TotalAmount

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_invoices (
			id, invoice_number, sale_date, total_amount, final_amount,
			payment_method, status, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, invoice.ID, invoice.InvoiceNumber, invoice.SaleDate, invoice.TotalAmount,
		invoice.FinalAmount, invoice.PaymentMethod, invoice.Status, invoice.CreatedBy, invoice.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, detail := range details {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_invoice_details (
				id, invoice_id, product_id, product_name, imei, sale_price, quantity, total_price
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, detail.ID, detail.InvoiceID, detail.ProductID, detail.ProductName,
			detail.IMEI, detail.SalePrice, detail.Quantity, detail.TotalPrice)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	invoice.Details = details
	return &invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, limit int) ([]domain.SalesInvoice, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, invoice_number, sale_date, total_amount, final_amount,
			payment_method, status, created_by, created_at
		FROM sales_invoices
		ORDER BY created_at DESC, invoice_number DESC
		LIMIT %d
	`, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.SalesInvoice, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var inv domain.SalesInvoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.SaleDate, &inv.TotalAmount,
			&inv.FinalAmount, &inv.PaymentMethod, &inv.Status, &inv.CreatedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	detailRows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, product_id, product_name, imei, sale_price, quantity, total_price
		FROM sales_invoice_details
		WHERE invoice_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer detailRows.Close()

	byInvoice := make(map[string][]domain.SalesInvoiceDetail, len(ids))
	for detailRows.Next() {
		var d domain.SalesInvoiceDetail
		if err := detailRows.Scan(&d.ID, &d.InvoiceID, &d.ProductID, &d.ProductName,
			&d.IMEI, &d.SalePrice, &d.Quantity, &d.TotalPrice); err != nil {
			return nil, err
		}
		byInvoice[d.InvoiceID] = append(byInvoice[d.InvoiceID], d)
	}
	if err := detailRows.Err(); err != nil {
		return nil, err
	}

	for i := range invoices {
		invoices[i].Details = byInvoice[invoices[i].ID]
	}
	return invoices, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.SalesInvoice, error) {
	var inv domain.SalesInvoice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_number, sale_date, total_amount, final_amount,
			payment_method, status, created_by, created_at
		FROM sales_invoices
		WHERE id = $1
	`, id).Scan(&inv.ID, &inv.InvoiceNumber, &inv.SaleDate, &inv.TotalAmount,
		&inv.FinalAmount, &inv.PaymentMethod, &inv.Status, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, product_id, product_name, imei, sale_price, quantity, total_price
		FROM sales_invoice_details
		WHERE invoice_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.SalesInvoiceDetail
		if err := rows.Scan(&d.ID, &d.InvoiceID, &d.ProductID, &d.ProductName,
			&d.IMEI, &d.SalePrice, &d.Quantity, &d.TotalPrice); err != nil {
			return nil, err
		}
		inv.Details = append(inv.Details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &inv, nil
}

func (s *Store) GetBatchSoldStats(ctx context.Context, batchID string) (int, int64, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM import_batches WHERE id = $1)`, batchID).Scan(&exists)
	if err != nil {
		return 0, 0, markUnavailable(err)
	}
	if !exists {
		return 0, 0, store.ErrNotFound
	}

	var soldQty int
	var soldValue int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(sale_price), 0)
		FROM products
		WHERE batch_id = $1 AND status = 'SOLD'
	`, batchID).Scan(&soldQty, &soldValue)
	if err != nil {
		return 0, 0, markUnavailable(err)
	}
	return soldQty, soldValue, nil
}

func (s *Store) RecomputeBatch(ctx context.Context, batchID string) (*domain.ImportBatch, bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	batch, err := scanBatch(tx.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = $1 FOR UPDATE`, batchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, err
	}

	var soldQty int
	var soldValue int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(sale_price), 0)
		FROM products
		WHERE batch_id = $1 AND status = 'SOLD'
	`, batchID).Scan(&soldQty, &soldValue)
	if err != nil {
		return nil, false, err
	}

	changed := batch.ApplyAggregates(soldQty, soldValue)
	if changed {
		batch.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE import_batches
			SET total_sold_quantity = $2,
				total_sold_value = $3,
				remaining_quantity = $4,
				profit_loss = $5,
				status = $6,
				updated_at = $7
			WHERE id = $1
		`, batch.ID, batch.TotalSoldQuantity, batch.TotalSoldValue,
			batch.RemainingQuantity, batch.ProfitLoss, batch.Status, batch.UpdatedAt)
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return batch, changed, nil
}

func (s *Store) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'ACTIVE'),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COALESCE(SUM(total_import_value), 0)
		FROM import_batches
	`).Scan(&stats.TotalBatches, &stats.ActiveBatches, &stats.CompletedBatches, &stats.TotalImportValue)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'IN_STOCK'),
			COUNT(*) FILTER (WHERE status = 'SOLD'),
			COALESCE(SUM(sale_price) FILTER (WHERE status = 'SOLD'), 0),
			COALESCE(SUM(sale_price - import_price) FILTER (WHERE status = 'SOLD'), 0)
		FROM products
	`).Scan(&stats.TotalProducts, &stats.ProductsInStock, &stats.ProductsSold,
		&stats.TotalRevenue, &stats.TotalProfit)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales_invoices`).Scan(&stats.InvoiceCount)
	if err != nil {
		return stats, err
	}

	return stats, nil
}

func (s *Store) GetCategoryRevenue(ctx context.Context) ([]domain.CategoryRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name,
			COUNT(p.id) FILTER (WHERE p.status = 'SOLD'),
			COALESCE(SUM(p.sale_price) FILTER (WHERE p.status = 'SOLD'), 0),
			COALESCE(SUM(p.sale_price - p.import_price) FILTER (WHERE p.status = 'SOLD'), 0)
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		GROUP BY c.id, c.name
		ORDER BY 4 DESC, c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CategoryRevenue, 0, 16)
	for rows.Next() {
		var row domain.CategoryRevenue
		if err := rows.Scan(&row.CategoryID, &row.CategoryName,
			&row.SoldQuantity, &row.Revenue, &row.Profit); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetInventoryReport(ctx context.Context) ([]domain.InventoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.code, COALESCE(c.name, ''), b.status,
			b.total_quantity, b.remaining_quantity,
			b.total_import_value, b.total_sold_value, b.profit_loss,
			COUNT(p.id),
			COUNT(p.id) FILTER (WHERE p.status = 'IN_STOCK'),
			COUNT(p.id) FILTER (WHERE p.status = 'SOLD')
		FROM import_batches b
		LEFT JOIN categories c ON c.id = b.category_id
		LEFT JOIN products p ON p.batch_id = b.id
		GROUP BY b.id, b.code, c.name, b.status,
			b.total_quantity, b.remaining_quantity,
			b.total_import_value, b.total_sold_value, b.profit_loss
		ORDER BY b.code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.InventoryRow, 0, 32)
	for rows.Next() {
		var row domain.InventoryRow
		if err := rows.Scan(&row.BatchID, &row.Code, &row.CategoryName, &row.Status,
			&row.TotalQuantity, &row.RemainingQuantity,
			&row.TotalImportValue, &row.TotalSoldValue, &row.ProfitLoss,
			&row.UnitsAdded, &row.UnitsInStock, &row.UnitsSold); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 1000 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT %d
	`, limit), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

// isConnectionFailure reports database errors that are worth retrying on an
// idempotent read: dropped connections and the SQLSTATE class 08 family.
func isConnectionFailure(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01"
	}
	return false
}

func markUnavailable(err error) error {
	if err != nil && isConnectionFailure(err) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
