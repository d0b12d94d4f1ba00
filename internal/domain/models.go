package domain

import "time"

const (
	BatchActive    = "ACTIVE"
	BatchCompleted = "COMPLETED"
	BatchCancelled = "CANCELLED"
)

const (
	ProductInStock  = "IN_STOCK"
	ProductSold     = "SOLD"
	ProductDamaged  = "DAMAGED"
	ProductReturned = "RETURNED"
)

const (
	PaymentCash     = "CASH"
	PaymentCard     = "CARD"
	PaymentTransfer = "TRANSFER"
)

const InvoicePaid = "PAID"

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ImportBatch struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	ImportDate         time.Time `json:"import_date"`
	CategoryID         string    `json:"category_id"`
	TotalQuantity      int       `json:"total_quantity"`
	ImportPricePerUnit int64     `json:"import_price_per_unit"`
	TotalImportValue   int64     `json:"total_import_value"`
	TotalSoldQuantity  int       `json:"total_sold_quantity"`
	TotalSoldValue     int64     `json:"total_sold_value"`
	RemainingQuantity  int       `json:"remaining_quantity"`
	ProfitLoss         int64     `json:"profit_loss"`
	Status             string    `json:"status"`
	Notes              string    `json:"notes,omitempty"`
	CreatedBy          string    `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ApplyAggregates rewrites the batch's derived fields from an authoritative
// sold count and sold value, and reports whether anything changed. Both store
// implementations and the audit pass go through this method so the derivation
// rules live in one place. A CANCELLED status is sticky and never overwritten.
func (b *ImportBatch) ApplyAggregates(soldQuantity int, soldValue int64) bool {
	remaining := b.TotalQuantity - soldQuantity
	if remaining < 0 {
		remaining = 0
	}
	profit := soldValue - b.ImportPricePerUnit*int64(soldQuantity)

	status := b.Status
	if status != BatchCancelled {
		if soldQuantity >= b.TotalQuantity {
			status = BatchCompleted
		} else {
			status = BatchActive
		}
	}

	changed := b.TotalSoldQuantity != soldQuantity ||
		b.TotalSoldValue != soldValue ||
		b.RemainingQuantity != remaining ||
		b.ProfitLoss != profit ||
		b.Status != status

	b.TotalSoldQuantity = soldQuantity
	b.TotalSoldValue = soldValue
	b.RemainingQuantity = remaining
	b.ProfitLoss = profit
	b.Status = status
	return changed
}

type BatchCreateRequest struct {
	CategoryID         string `json:"category_id"`
	ImportDate         string `json:"import_date"`
	TotalQuantity      int    `json:"total_quantity"`
	ImportPricePerUnit int64  `json:"import_price_per_unit,omitempty"`
	TotalImportValue   int64  `json:"total_import_value"`
	Notes              string `json:"notes,omitempty"`
}

type BatchUpdateRequest struct {
	CategoryID       *string `json:"category_id,omitempty"`
	TotalQuantity    *int    `json:"total_quantity,omitempty"`
	TotalImportValue *int64  `json:"total_import_value,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}

type Product struct {
	ID            string     `json:"id"`
	BatchID       string     `json:"batch_id"`
	CategoryID    string     `json:"category_id"`
	Name          string     `json:"name"`
	IMEI          string     `json:"imei"`
	ImportPrice   int64      `json:"import_price"`
	SalePrice     int64      `json:"sale_price,omitempty"`
	Status        string     `json:"status"`
	SoldDate      *time.Time `json:"sold_date,omitempty"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ProductCreateRequest struct {
	BatchID     string `json:"batch_id"`
	Name        string `json:"name"`
	IMEI        string `json:"imei"`
	ImportPrice int64  `json:"import_price,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	IMEI        *string `json:"imei,omitempty"`
	ImportPrice *int64  `json:"import_price,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

type ProductFilter struct {
	BatchID    string
	CategoryID string
	Status     string
	IMEI       string
	Limit      int
}

type SalesInvoice struct {
	ID            string               `json:"id"`
	InvoiceNumber string               `json:"invoice_number"`
	SaleDate      time.Time            `json:"sale_date"`
	TotalAmount   int64                `json:"total_amount"`
	FinalAmount   int64                `json:"final_amount"`
	PaymentMethod string               `json:"payment_method"`
	Status        string               `json:"status"`
	CreatedBy     string               `json:"created_by"`
	CreatedAt     time.Time            `json:"created_at"`
	Details       []SalesInvoiceDetail `json:"details,omitempty"`
}

type SalesInvoiceDetail struct {
	ID          string `json:"id"`
	InvoiceID   string `json:"invoice_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	IMEI        string `json:"imei"`
	SalePrice   int64  `json:"sale_price"`
	Quantity    int    `json:"quantity"`
	TotalPrice  int64  `json:"total_price"`
}

type SaleRequest struct {
	ProductID        string `json:"product_id"`
	SalePrice        int64  `json:"sale_price"`
	PaymentMethod    string `json:"payment_method"`
	IncludeAccessory bool   `json:"include_accessory,omitempty"`
	AccessoryBatchID string `json:"accessory_batch_id,omitempty"`
	AccessoryPrice   *int64 `json:"accessory_price,omitempty"`
	CustomerName     string `json:"customer_name,omitempty"`
	CustomerPhone    string `json:"customer_phone,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

type SaleResponse struct {
	Invoice          SalesInvoice `json:"invoice"`
	Product          Product      `json:"product"`
	Accessory        *Product     `json:"accessory,omitempty"`
	AccessoryVirtual bool         `json:"accessory_virtual,omitempty"`
	AccessoryCost    int64        `json:"accessory_cost,omitempty"`
	Profit           int64        `json:"profit"`
}

// BatchMismatch is one drifted batch found by the audit pass: stored
// aggregates that disagree with what the product rows say they should be.
type BatchMismatch struct {
	BatchID              string `json:"batch_id"`
	Code                 string `json:"code"`
	StoredStatus         string `json:"stored_status"`
	ExpectedStatus       string `json:"expected_status"`
	StoredSoldQuantity   int    `json:"stored_sold_quantity"`
	ExpectedSoldQuantity int    `json:"expected_sold_quantity"`
	StoredSoldValue      int64  `json:"stored_sold_value"`
	ExpectedSoldValue    int64  `json:"expected_sold_value"`
}

type AuditReport struct {
	TotalBatches    int             `json:"total_batches"`
	CorrectStatuses int             `json:"correct_statuses"`
	Mismatches      []BatchMismatch `json:"mismatches"`
	Skipped         []string        `json:"skipped,omitempty"`
}

type ReconcileReport struct {
	TotalBatches     int             `json:"total_batches"`
	BatchesUpdated   int             `json:"batches_updated"`
	ActiveBatches    int             `json:"active_batches"`
	CompletedBatches int             `json:"completed_batches"`
	CorrectStatuses  int             `json:"correct_statuses"`
	Mismatches       []BatchMismatch `json:"mismatches"`
	Skipped          []string        `json:"skipped,omitempty"`
}

type DashboardStats struct {
	TotalBatches     int   `json:"total_batches"`
	ActiveBatches    int   `json:"active_batches"`
	CompletedBatches int   `json:"completed_batches"`
	TotalProducts    int   `json:"total_products"`
	ProductsInStock  int   `json:"products_in_stock"`
	ProductsSold     int   `json:"products_sold"`
	TotalImportValue int64 `json:"total_import_value"`
	TotalRevenue     int64 `json:"total_revenue"`
	TotalProfit      int64 `json:"total_profit"`
	InvoiceCount     int   `json:"invoice_count"`
}

type CategoryRevenue struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	SoldQuantity int    `json:"sold_quantity"`
	Revenue      int64  `json:"revenue"`
	Profit       int64  `json:"profit"`
}

type InventoryRow struct {
	BatchID           string `json:"batch_id"`
	Code              string `json:"code"`
	CategoryName      string `json:"category_name"`
	Status            string `json:"status"`
	TotalQuantity     int    `json:"total_quantity"`
	UnitsAdded        int    `json:"units_added"`
	UnitsInStock      int    `json:"units_in_stock"`
	UnitsSold         int    `json:"units_sold"`
	RemainingQuantity int    `json:"remaining_quantity"`
	TotalImportValue  int64  `json:"total_import_value"`
	TotalSoldValue    int64  `json:"total_sold_value"`
	ProfitLoss        int64  `json:"profit_loss"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

func IsValidProductStatus(status string) bool {
	switch status {
	case ProductInStock, ProductSold, ProductDamaged, ProductReturned:
		return true
	}
	return false
}
