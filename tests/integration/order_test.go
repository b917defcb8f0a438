//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

func checkoutForm(coupon string) map[string]any {
	return map[string]any{
		"method":                 "oxxo",
		"coupon":                 coupon,
		"shipping_type":          "standard",
		"gift":                   true,
		"to_receiver_name":       "Luis Ramirez",
		"to_address_line1":       "Av. Insurgentes Sur 1602",
		"to_address_city":        "Ciudad de Mexico",
		"to_address_state":       "CDMX",
		"to_address_zip":         "03940",
		"to_longitude":           -99.1802,
		"to_latitude":            19.3672,
		"from_sender_name":       "Parcel Store",
		"from_address_line1":     "Calle Durango 263",
		"from_address_city":      "Ciudad de Mexico",
		"from_address_state":     "CDMX",
		"from_address_zip":       "06700",
		"from_longitude":         -99.1667,
		"from_latitude":          19.4185,
		"to_address_residential": true,
	}
}

// TestCheckout walks the full order flow with a coupon that covers the whole
// order, so no gateway call is made. Subtests depend on each other.
func TestCheckout(t *testing.T) {
	var created createOrderResponse

	t.Run("create", func(t *testing.T) {
		resp := doAuthed(t, http.MethodPost, "/orders", checkoutForm("FREEBIE"), http.Header{
			"Idempotency-Key": []string{"checkout-1"},
		})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			body := decodeJSON[errorResponse](t, resp)
			t.Fatalf("expected 201, got %d: %+v", resp.StatusCode, body)
		}
		created = decodeJSON[createOrderResponse](t, resp)

		if created.Order.ID == "" {
			t.Fatal("order id is empty")
		}
		if created.Order.Status != "paid" {
			t.Errorf("order status: got %q, want paid", created.Order.Status)
		}
		if created.Order.Customer != seededCustomer {
			t.Errorf("order customer: got %q", created.Order.Customer)
		}
		if created.Payment.Method != "coupon" || created.Payment.Status != "paid" {
			t.Errorf("payment: got %+v", created.Payment)
		}
		if created.Delivery.Carrier != "redpack" || created.Delivery.Order != created.Order.ID {
			t.Errorf("delivery: got %+v", created.Delivery)
		}
		if len(created.Order.Summary) != 2 {
			t.Errorf("summary: got %d line items, want 2", len(created.Order.Summary))
		}
	})

	t.Run("replay", func(t *testing.T) {
		resp := doAuthed(t, http.MethodPost, "/orders", checkoutForm("FREEBIE"), http.Header{
			"Idempotency-Key": []string{"checkout-1"},
		})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Idempotent-Replayed") != "true" {
			t.Error("Idempotent-Replayed header not set")
		}
		replayed := decodeJSON[createOrderResponse](t, resp)
		if replayed.Order.ID != created.Order.ID {
			t.Errorf("replayed order id: got %q, want %q", replayed.Order.ID, created.Order.ID)
		}
	})

	t.Run("coupon used up", func(t *testing.T) {
		resp := doAuthed(t, http.MethodPost, "/orders", checkoutForm("FREEBIE"), nil)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", resp.StatusCode)
		}
		body := decodeJSON[errorResponse](t, resp)
		if body.Message != "You have used this coupon." {
			t.Errorf("message: got %q", body.Message)
		}
	})

	t.Run("unknown coupon", func(t *testing.T) {
		resp := doAuthed(t, http.MethodPost, "/orders", checkoutForm("NOPE-NOPE"), nil)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", resp.StatusCode)
		}
		body := decodeJSON[errorResponse](t, resp)
		if body.Message != "The coupon code doesn't exist." {
			t.Errorf("message: got %q", body.Message)
		}
	})

	t.Run("get with relations", func(t *testing.T) {
		resp := doAuthed(t, http.MethodGet, "/orders/"+created.Order.ID+"?with=summary.product,payments,deliveries,customer", nil, nil)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		view := decodeJSON[dataResponse[orderView]](t, resp).Data
		if view.ID != created.Order.ID {
			t.Errorf("id: got %q", view.ID)
		}

		var payments []paymentResponse
		if err := json.Unmarshal(view.Payments, &payments); err != nil {
			t.Fatalf("payments are not expanded: %v", err)
		}
		if len(payments) != 1 || payments[0].ID != created.Payment.ID {
			t.Errorf("payments: got %+v", payments)
		}

		var customer struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal(view.Customer, &customer); err != nil {
			t.Fatalf("customer is not expanded: %v", err)
		}
		if customer.ID != seededCustomer {
			t.Errorf("customer: got %+v", customer)
		}

		var summary []struct {
			Product struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"product"`
		}
		if err := json.Unmarshal(view.Summary, &summary); err != nil {
			t.Fatalf("summary is not expanded: %v", err)
		}
		for _, li := range summary {
			if li.Product.Name == "" {
				t.Errorf("product of %s is not expanded", li.Product.ID)
			}
		}
	})

	t.Run("get without relations", func(t *testing.T) {
		resp := doAuthed(t, http.MethodGet, "/orders/"+created.Order.ID, nil, nil)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		view := decodeJSON[dataResponse[orderView]](t, resp).Data
		var payments []string
		if err := json.Unmarshal(view.Payments, &payments); err != nil {
			t.Fatalf("payments should be ids: %v", err)
		}
		if len(payments) != 1 {
			t.Errorf("payments: got %v", payments)
		}
	})

	t.Run("list", func(t *testing.T) {
		resp := doAuthed(t, http.MethodGet, "/orders?page=1&limit=5", nil, nil)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		page := decodeJSON[dataResponse[pageResponse]](t, resp).Data
		if page.Total < 1 || page.Limit != 5 || page.Page != 1 || page.Pages < 1 {
			t.Errorf("page: got %+v", page)
		}
		if len(page.Docs) == 0 || page.Docs[0].ID != created.Order.ID {
			t.Errorf("latest order should come first, got %+v", page.Docs)
		}
	})
}

func TestGetOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "not found", path: "/orders/ord_missing", status: http.StatusNotFound},
		{name: "bad relation", path: "/orders/ord_missing?with=secrets", status: http.StatusUnprocessableEntity},
		{name: "bad page", path: "/orders?page=0", status: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doAuthed(t, http.MethodGet, tt.path, nil, nil)
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			body := decodeJSON[errorResponse](t, resp)
			if body.StatusCode != tt.status {
				t.Errorf("statusCode: got %d", body.StatusCode)
			}
		})
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	form := checkoutForm("")
	delete(form, "to_address_zip")

	resp := doAuthed(t, http.MethodPost, "/orders", form, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}
