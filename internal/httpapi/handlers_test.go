package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mobistock/backend/internal/cache"
	"mobistock/backend/internal/domain"
	"mobistock/backend/internal/service"
	"mobistock/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_STAFF_PASSWORD", "staff123")
	repo := memory.New()
	svc := service.New(repo, cache.NoopStatsCache{}, 5*time.Second, "Accessory", 200000)
	auth := NewAuthManager("test-secret-key", time.Hour, "402913", repo)

	return New(svc, auth, "*")
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func loginToken(t *testing.T, api *API, username string, password string) string {
	t.Helper()
	resp, err := api.auth.Login(domain.LoginRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return resp.AccessToken
}

// doJSON issues an authenticated JSON request, attaching a CSRF token for
// state-changing methods.
func doJSON(t *testing.T, api *API, method string, path string, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
}

func TestLoginEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "",
		domain.LoginRequest{Username: "admin", Password: "admin123"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid login, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var resp domain.LoginResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != "admin" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "",
		domain.LoginRequest{Username: "admin", Password: "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/import-batches", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error == "" {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestStateChangingRequestRequiresCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginToken(t, api, "admin", "admin123")

	payload, _ := json.Marshal(domain.CategoryCreateRequest{Name: "iPhone"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/categories", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestStaffCannotCreateBatches(t *testing.T) {
	api := newTestAPI(t)
	admin := loginToken(t, api, "admin", "admin123")
	staff := loginToken(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/categories", admin,
		domain.CategoryCreateRequest{Name: "iPhone"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var category domain.Category
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &category); err != nil {
		t.Fatalf("decode category: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/import-batches", staff,
		domain.BatchCreateRequest{CategoryID: category.ID, TotalQuantity: 1, TotalImportValue: 1000}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff batch creation, got %d", rec.Code)
	}
}

func TestBatchProductSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := loginToken(t, api, "admin", "admin123")
	staff := loginToken(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/categories", admin,
		domain.CategoryCreateRequest{Name: "iPhone"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category: %d: %s", rec.Code, rec.Body.String())
	}
	var category domain.Category
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &category); err != nil {
		t.Fatalf("decode category: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/import-batches", admin,
		domain.BatchCreateRequest{CategoryID: category.ID, TotalQuantity: 2, TotalImportValue: 30000000}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create batch: %d: %s", rec.Code, rec.Body.String())
	}
	var batch domain.ImportBatch
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &batch); err != nil {
		t.Fatalf("decode batch: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/products", admin,
		domain.ProductCreateRequest{BatchID: batch.ID, Name: "iPhone 13", IMEI: "350000000000001"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d: %s", rec.Code, rec.Body.String())
	}
	var product domain.Product
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", staff,
		domain.SaleRequest{ProductID: product.ID, SalePrice: 18000000, PaymentMethod: domain.PaymentCash}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d: %s", rec.Code, rec.Body.String())
	}
	var sale domain.SaleResponse
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.Product.Status != domain.ProductSold {
		t.Fatalf("expected SOLD, got %s", sale.Product.Status)
	}
	wantPrefix := fmt.Sprintf("HD%d", time.Now().UTC().Year())
	if !strings.HasPrefix(sale.Invoice.InvoiceNumber, wantPrefix) {
		t.Fatalf("unexpected invoice number %s", sale.Invoice.InvoiceNumber)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/import-batches/"+batch.ID, staff, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get batch: %d", rec.Code)
	}
	var refreshed domain.ImportBatch
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &refreshed); err != nil {
		t.Fatalf("decode refreshed batch: %v", err)
	}
	if refreshed.TotalSoldQuantity != 1 || refreshed.RemainingQuantity != 1 {
		t.Fatalf("unexpected aggregates %+v", refreshed)
	}

	// A unit that is no longer sellable is gone from the sale path's point of
	// view, so the second attempt is a 404.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", staff,
		domain.SaleRequest{ProductID: product.ID, SalePrice: 18000000}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for double sale, got %d", rec.Code)
	}
}

func TestDuplicateIMEIReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	admin := loginToken(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/categories", admin,
		domain.CategoryCreateRequest{Name: "iPhone"}, nil)
	var category domain.Category
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &category); err != nil {
		t.Fatalf("decode category: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/import-batches", admin,
		domain.BatchCreateRequest{CategoryID: category.ID, TotalQuantity: 5, TotalImportValue: 75000000}, nil)
	var batch domain.ImportBatch
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &batch); err != nil {
		t.Fatalf("decode batch: %v", err)
	}

	createReq := domain.ProductCreateRequest{BatchID: batch.ID, Name: "iPhone 13", IMEI: "350000000000001"}
	if rec = doJSON(t, api, http.MethodPost, "/api/v1/products", admin, createReq, nil); rec.Code != http.StatusCreated {
		t.Fatalf("first product: %d", rec.Code)
	}
	if rec = doJSON(t, api, http.MethodPost, "/api/v1/products", admin, createReq, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate IMEI, got %d", rec.Code)
	}
}

func TestBatchMigrationEndpointGuardsPIN(t *testing.T) {
	api := newTestAPI(t)
	admin := loginToken(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/admin/migrate-batch-status", admin, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit GET: %d: %s", rec.Code, rec.Body.String())
	}
	var audit domain.AuditReport
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &audit); err != nil {
		t.Fatalf("decode audit report: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/admin/migrate-batch-status", admin, nil,
		map[string]string{"X-Manager-PIN": "000000"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong PIN, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/admin/migrate-batch-status", admin, nil,
		map[string]string{"X-Manager-PIN": "402913"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid PIN, got %d: %s", rec.Code, rec.Body.String())
	}
	var reconcile domain.ReconcileReport
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &reconcile); err != nil {
		t.Fatalf("decode reconcile report: %v", err)
	}
}

func TestInventoryReportCSVExport(t *testing.T) {
	api := newTestAPI(t)
	admin := loginToken(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/reports/inventory?format=csv", admin, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export: %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("expected text/csv, got %s", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "batch_id,code,category,status") {
		t.Fatalf("unexpected csv header: %q", rec.Body.String())
	}
}

func TestAuditLogsRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	staff := loginToken(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/audit-logs", staff, nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}
}

func TestStaffUserManagementEndpoint(t *testing.T) {
	api := newTestAPI(t)
	admin := loginToken(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/users/staff", admin,
		domain.StaffCreateRequest{Username: "newstaff", Password: "pass1234"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create staff: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/users/staff", admin, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list staff: %d", rec.Code)
	}
	var staff []domain.StaffUser
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &staff); err != nil {
		t.Fatalf("decode staff list: %v", err)
	}
	found := false
	for _, u := range staff {
		if u.Username == "newstaff" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected newstaff in %+v", staff)
	}
}
