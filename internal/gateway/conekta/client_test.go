package conekta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/parcel-checkout/internal/domain/gateway"
)

func testParams(method gateway.Method) gateway.OrderParams {
	p := gateway.OrderParams{
		Currency:   "MXN",
		CustomerID: "cus_2tNDzhA",
		LineItems: []gateway.LineItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("499.99")},
		},
		ShippingLines: []gateway.ShippingLine{{Amount: decimal.NewFromInt(150), Carrier: "redpack"}},
		DiscountLines: []gateway.DiscountLine{{Code: "SAVE", Type: "coupon", Amount: decimal.RequireFromString("10.5")}},
		Metadata:      map[string]string{"user-agent": "parcel-app/2.1"},
		Receiver: gateway.Receiver{
			Name:  "Ana López",
			Phone: "5512345678",
			Address: gateway.Address{
				Street:      "Av. Reforma 222",
				City:        "CDMX",
				State:       "CDMX",
				Zip:         "06600",
				Country:     "MX",
				Residential: true,
			},
		},
		PaymentMethod: gateway.PaymentMethod{Type: method},
	}
	switch method {
	case gateway.MethodCard:
		p.PaymentMethod.Token = "tok_test_visa_4242"
	default:
		p.PaymentMethod.ExpiresAt = time.Date(2025, 6, 22, 20, 0, 0, 0, time.UTC)
	}
	return p
}

func TestClient_ChargeOrder_Card(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "application/vnd.conekta-v2.1.0+json", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer key_test", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "ord_2tNDzhA",
			"object": "order",
			"amount": 114948,
			"charges": {"object": "list", "data": [{
				"id": "ch_5f1a",
				"status": "paid",
				"amount": 114948,
				"fee": 4312,
				"payment_method": {"type": "credit", "last4": "4242", "reference": null}
			}]}
		}`)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "key_test", BaseURL: srv.URL})
	res, err := c.ChargeOrder(context.Background(), testParams(gateway.MethodCard))
	require.NoError(t, err)

	assert.Equal(t, "ord_2tNDzhA", res.OrderID)
	assert.Equal(t, "ch_5f1a", res.ChargeID)
	assert.Equal(t, "paid", res.ChargeStatus)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("1149.48")))
	assert.True(t, res.Fee.Equal(decimal.RequireFromString("43.12")))
	assert.Empty(t, res.Reference)

	// Amounts are sent in cents.
	items := got["line_items"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 49999, items[0].(map[string]any)["unit_price"])
	assert.EqualValues(t, 2, items[0].(map[string]any)["quantity"])
	shipping := got["shipping_lines"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 15000, shipping["amount"])
	assert.Equal(t, "redpack", shipping["carrier"])
	discount := got["discount_lines"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 1050, discount["amount"])

	customer := got["customer_info"].(map[string]any)
	assert.Equal(t, "cus_2tNDzhA", customer["customer_id"])
	assert.Equal(t, map[string]any{"user-agent": "parcel-app/2.1"}, got["metadata"])

	contact := got["shipping_contact"].(map[string]any)
	assert.Equal(t, "Ana López", contact["receiver"])
	address := contact["address"].(map[string]any)
	assert.Equal(t, "MX", address["country"])
	assert.Equal(t, "06600", address["postal_code"])

	pm := got["charges"].([]any)[0].(map[string]any)["payment_method"].(map[string]any)
	assert.Equal(t, "card", pm["type"])
	assert.Equal(t, "tok_test_visa_4242", pm["token_id"])
	assert.NotContains(t, pm, "expires_at")
}

func TestClient_ChargeOrder_Deferred(t *testing.T) {
	tests := []struct {
		method   gateway.Method
		wireType string
		response string
		check    func(t *testing.T, res *gateway.Result)
	}{
		{
			method:   gateway.MethodOXXO,
			wireType: "oxxo_cash",
			response: `{"id":"ord_1","charges":{"data":[{"id":"ch_1","status":"pending_payment","amount":114948,"fee":0,
				"payment_method":{"type":"oxxo","reference":"93000262276908","expires_at":1750640400}}]}}`,
			check: func(t *testing.T, res *gateway.Result) {
				assert.Equal(t, "93000262276908", res.Reference)
				assert.Empty(t, res.CLABE)
			},
		},
		{
			method:   gateway.MethodSPEI,
			wireType: "spei",
			response: `{"id":"ord_2","charges":{"data":[{"id":"ch_2","status":"pending_payment","amount":114948,"fee":0,
				"payment_method":{"type":"spei","clabe":"646180111812345678","receiving_account_bank":"STP",
				"receiving_account_number":"646180111812345678"}}]}}`,
			check: func(t *testing.T, res *gateway.Result) {
				assert.Equal(t, "646180111812345678", res.CLABE)
				assert.Equal(t, "STP", res.ReceivingAccountBank)
				assert.Equal(t, "646180111812345678", res.ReceivingAccountNumber)
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = io.WriteString(w, tt.response)
			}))
			defer srv.Close()

			params := testParams(tt.method)
			res, err := New(Config{APIKey: "key_test", BaseURL: srv.URL}).ChargeOrder(context.Background(), params)
			require.NoError(t, err)
			assert.Equal(t, "pending_payment", res.ChargeStatus)
			tt.check(t, res)

			pm := got["charges"].([]any)[0].(map[string]any)["payment_method"].(map[string]any)
			assert.Equal(t, tt.wireType, pm["type"])
			assert.EqualValues(t, params.PaymentMethod.ExpiresAt.Unix(), pm["expires_at"])
			assert.NotContains(t, pm, "token_id")
		})
	}
}

func TestClient_ChargeOrder_APIError(t *testing.T) {
	const payload = `{"object":"error","type":"processing_error","log_id":"5f",
		"details":[{"debug_message":"The card was declined","message":"La tarjeta fue declinada.","code":"conekta.errors.processing.bank.declined"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	_, err := New(Config{APIKey: "key_test", BaseURL: srv.URL}).ChargeOrder(context.Background(), testParams(gateway.MethodCard))
	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, Provider, gerr.Provider)
	assert.Equal(t, http.StatusPaymentRequired, gerr.Status)
	assert.Equal(t, "processing_error", gerr.Type)
	assert.Equal(t, "La tarjeta fue declinada.", gerr.Message)
	assert.JSONEq(t, payload, string(gerr.Payload))
	assert.Equal(t, "conekta: La tarjeta fue declinada.", err.Error())
}

func TestClient_ChargeOrder_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"id":"ord_1","charges":{"data":[]}}`)
	}))
	defer srv.Close()

	_, err := New(Config{APIKey: "key_test", BaseURL: srv.URL}).ChargeOrder(context.Background(), testParams(gateway.MethodCard))
	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "invalid_response", gerr.Type)
}

func TestClient_ChargeOrder_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(Config{APIKey: "key_test", BaseURL: url}).ChargeOrder(context.Background(), testParams(gateway.MethodCard))
	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "connection_error", gerr.Type)
	assert.Zero(t, gerr.Status)
}
