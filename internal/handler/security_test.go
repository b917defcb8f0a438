package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/parcel-checkout/internal/auth"
	"github.com/xenking/parcel-checkout/internal/domain/customer"
)

func TestAuthenticate(t *testing.T) {
	cfg := auth.Config{Secret: "s3cret", Issuer: "checkout", TTL: time.Hour}
	valid, err := auth.Mint(cfg, time.Now(), ana.ID)
	require.NoError(t, err)
	unknown, err := auth.Mint(cfg, time.Now(), "cus-404")
	require.NoError(t, err)

	sec := NewSecurityHandler(
		auth.NewVerifier(cfg.Secret, cfg.Issuer),
		&mockCustomers{customers: map[string]*customer.Customer{ana.ID: ana}},
	)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid", header: "Bearer " + valid, wantStatus: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer " + valid, wantStatus: http.StatusNoContent},
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "forged", header: "Bearer " + valid + "x", wantStatus: http.StatusUnauthorized},
		{name: "unknown customer", header: "Bearer " + unknown, wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *customer.Customer
			h := sec.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = CustomerFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Same(t, ana, got)
			} else {
				assert.Nil(t, got)
				assert.Contains(t, w.Body.String(), `"statusCode":401`)
			}
		})
	}
}
