package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"biscuit-backend/models"
	"biscuit-backend/testutil"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// pendingMvolaOrder seeds an order with one line that already holds stock.
func pendingMvolaOrder(t *testing.T, db *gorm.DB, ref string) (models.Order, models.Product) {
	t.Helper()
	user := testutil.SeedUser(t, db, "wallet@example.com")
	product := testutil.SeedProduct(t, db, "Crêpe dentelle", "500.00", 8)
	order := testutil.SeedOrder(t, db, user.ID, models.PaymentMethodMvola, "1000.00")
	db.Model(&order).Update("transaction_reference", ref)
	item := models.OrderItem{OrderID: order.ID, ProductID: product.ID, ProductName: product.Name, Quantity: 2, Price: product.Price}
	if err := db.Omit("Order", "Product").Create(&item).Error; err != nil {
		t.Fatalf("failed to seed order item: %v", err)
	}
	return order, product
}

func TestMvolaCallbackCompletesOrder(t *testing.T) {
	app := newTestApp(t)
	order, product := pendingMvolaOrder(t, app.db, "ORDER-abc-12345678")

	body := map[string]interface{}{
		"requestingOrganisationTransactionReference": "ORDER-abc-12345678",
		"transactionStatus":                          "completed",
		"serverCorrelationId":                        "corr-1",
		"fees":                                       []map[string]string{{"feeAmount": "0"}},
	}
	w := app.guest().send("POST", "/api/payments/mvola/callback", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseResponse(w)
	if resp["status"] != "success" || resp["new_status"] != "completed" {
		t.Fatalf("unexpected payload: %v", resp)
	}
	if got := orderStatus(t, app.db, order.ID); got != models.OrderStatusCompleted {
		t.Errorf("expected completed, got %s", got)
	}

	// A replayed notification changes nothing.
	body["transactionStatus"] = "failed"
	w = app.guest().send("POST", "/api/payments/mvola/callback", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", w.Code)
	}
	if parseResponse(w)["message"] != "Already processed" {
		t.Errorf("expected replay to be acknowledged, got %v", parseResponse(w))
	}
	if got := orderStatus(t, app.db, order.ID); got != models.OrderStatusCompleted {
		t.Errorf("replay must not change status, got %s", got)
	}
	if got := stockOf(t, app.db, product); got != 8 {
		t.Errorf("replay must not restock, got %d", got)
	}
}

func TestMvolaCallbackFailureRestocks(t *testing.T) {
	app := newTestApp(t)
	order, product := pendingMvolaOrder(t, app.db, "ORDER-def-87654321")

	w := app.guest().send("POST", "/api/payments/mvola/callback", map[string]string{
		"requestingOrganisationTransactionReference": "ORDER-def-87654321",
		"transactionStatus":                          "failed",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := orderStatus(t, app.db, order.ID); got != models.OrderStatusFailed {
		t.Errorf("expected failed, got %s", got)
	}
	if got := stockOf(t, app.db, product); got != 10 {
		t.Errorf("expected reserved units returned to stock, got %d", got)
	}
}

func TestMvolaCallbackDetectsJSONWithoutContentType(t *testing.T) {
	app := newTestApp(t)
	order, _ := pendingMvolaOrder(t, app.db, "ORDER-ghi-11223344")

	for _, contentType := range []string{"", "text/plain; charset=utf-8"} {
		body := `{"requestingOrganisationTransactionReference":"ORDER-ghi-11223344","transactionStatus":"completed"}`
		req := httptest.NewRequest(http.MethodPost, "/api/payments/mvola/callback", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		w := app.guest().do(req)
		if w.Code != http.StatusOK {
			t.Fatalf("content type %q: expected 200, got %d: %s", contentType, w.Code, w.Body.String())
		}
	}
	if got := orderStatus(t, app.db, order.ID); got != models.OrderStatusCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestMvolaCallbackRejectsIncompletePayload(t *testing.T) {
	app := newTestApp(t)

	w := app.guest().send("POST", "/api/payments/mvola/callback", map[string]string{"transactionStatus": "completed"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if parseResponse(w)["status"] != "error" {
		t.Errorf("expected error payload, got %v", parseResponse(w))
	}

	req := jsonRequest("POST", "/api/payments/mvola/callback", nil)
	req.Body = http.NoBody
	w = app.guest().do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", w.Code)
	}
}

func TestMvolaCallbackUnknownReference(t *testing.T) {
	app := newTestApp(t)

	w := app.guest().send("POST", "/api/payments/mvola/callback", map[string]string{
		"requestingOrganisationTransactionReference": "ORDER-missing-00000000",
		"transactionStatus":                          "completed",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseResponse(w)
	if resp["status"] != "error" || resp["message"] != "Order not found" {
		t.Errorf("unexpected payload: %v", resp)
	}
}

func TestPaypalCallbackAcceptsJSON(t *testing.T) {
	app := newTestApp(t)
	user := testutil.SeedUser(t, app.db, "pp@example.com")
	order := testutil.SeedOrder(t, app.db, user.ID, models.PaymentMethodPaypal, "2000.00")
	ref := "paypal_" + order.ID.String() + "_0badf00d"
	app.db.Model(&order).Update("transaction_reference", ref)

	w := app.guest().send("POST", "/api/payments/paypal/callback", map[string]string{
		"invoice":        ref,
		"custom":         order.ID.String(),
		"payment_status": "Denied",
		"txn_id":         "5TT00000",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := orderStatus(t, app.db, order.ID); got != models.OrderStatusFailed {
		t.Errorf("expected failed, got %s", got)
	}

	var stored models.Order
	app.db.First(&stored, "id = ?", order.ID)
	if stored.TransactionID != "5TT00000" {
		t.Errorf("expected txn_id recorded, got %q", stored.TransactionID)
	}
}

func TestPaypalCallbackValidation(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name   string
		fields url.Values
		want   int
	}{
		{"missing invoice", url.Values{"payment_status": {"Completed"}}, http.StatusBadRequest},
		{"order id only", url.Values{"custom": {uuid.New().String()}, "payment_status": {"Completed"}}, http.StatusBadRequest},
		{"foreign invoice", url.Values{"invoice": {"ORDER-1"}, "payment_status": {"Completed"}}, http.StatusBadRequest},
		{"unknown reference", url.Values{"invoice": {"paypal_" + uuid.New().String() + "_00000000"}, "payment_status": {"Completed"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.guest().do(formRequest("/api/payments/paypal/callback", tt.fields))
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"status":"error"`) {
				t.Errorf("expected error payload, got %s", w.Body.String())
			}
		})
	}
}
