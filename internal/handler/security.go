package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/parcel-checkout/internal/auth"
	"github.com/xenking/parcel-checkout/internal/domain/customer"
	"github.com/xenking/parcel-checkout/pkg/httperr"
)

type customerKey struct{}

// CustomerFromContext returns the authenticated customer.
func CustomerFromContext(ctx context.Context) (*customer.Customer, bool) {
	c, ok := ctx.Value(customerKey{}).(*customer.Customer)
	return c, ok
}

// WithCustomer returns a copy of ctx carrying c.
func WithCustomer(ctx context.Context, c *customer.Customer) context.Context {
	return context.WithValue(ctx, customerKey{}, c)
}

// SecurityHandler authenticates requests by bearer token and loads the
// customer profile the token was issued for.
type SecurityHandler struct {
	verifier  *auth.Verifier
	customers customer.Repository
}

// NewSecurityHandler creates a SecurityHandler.
func NewSecurityHandler(verifier *auth.Verifier, customers customer.Repository) *SecurityHandler {
	return &SecurityHandler{
		verifier:  verifier,
		customers: customers,
	}
}

// Authenticate rejects requests without a valid bearer token for an
// existing customer with 401.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			httperr.Write(w, http.StatusUnauthorized, "Missing authentication.")
			return
		}
		id, err := s.verifier.CustomerID(token)
		if err != nil {
			zctx.From(ctx).Debug("Rejected token", zap.Error(err))
			httperr.Write(w, http.StatusUnauthorized, "Invalid token.")
			return
		}
		c, err := s.customers.GetByID(ctx, id)
		switch {
		case errors.Is(err, customer.ErrNotFound):
			httperr.Write(w, http.StatusUnauthorized, "Invalid token.")
			return
		case err != nil:
			zctx.From(ctx).Error("Load customer", zap.String("customer_id", id), zap.Error(err))
			httperr.Write(w, http.StatusInternalServerError, "")
			return
		}

		ctx = zctx.With(WithCustomer(ctx, c), zap.String("customer_id", c.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
