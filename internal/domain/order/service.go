package order

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/parcel-checkout/internal/domain/cart"
	"github.com/xenking/parcel-checkout/internal/domain/coupon"
	"github.com/xenking/parcel-checkout/internal/domain/customer"
	"github.com/xenking/parcel-checkout/internal/domain/gateway"
)

const (
	defaultCarrier  = "redpack"
	defaultCurrency = "MXN"
	defaultCountry  = "MX"

	defaultPublishTimeout = 3 * time.Second
)

// Config holds the checkout business settings.
type Config struct {
	// ShippingAmount is the flat shipping rate added to every order.
	ShippingAmount decimal.Decimal
	Carrier        string
	Currency       string
	// Location is the business time zone used for payment deadlines.
	Location *time.Location
}

// Checkout is the input of a single checkout attempt.
type Checkout struct {
	Customer *customer.Customer
	Cart     *cart.Cart
	Request  CheckoutRequest
	// Headers are the incoming request headers, forwarded to the gateway as
	// order metadata.
	Headers http.Header
}

// EventPublisher announces placed orders to other systems.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, agg *Aggregate) error
}

type nopPublisher struct{}

func (nopPublisher) OrderPlaced(context.Context, *Aggregate) error { return nil }

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the publisher notified after an order is persisted.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithPublishTimeout bounds how long a checkout waits for the order placed
// event to be written.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) { s.publishTimeout = d }
}

// WithMeterProvider sets the meter provider for checkout metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service composes orders: it validates the checkout, applies coupons,
// charges the payment gateway and persists the resulting records.
type Service struct {
	coupons  coupon.Evaluator
	redeemer coupon.Redeemer
	charger  gateway.Charger
	store    Store
	cfg      Config

	now            func() time.Time
	events         EventPublisher
	publishTimeout time.Duration
	meterProvider  metric.MeterProvider

	orders          metric.Int64Counter
	gatewayDuration metric.Float64Histogram
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	coupons coupon.Evaluator,
	redeemer coupon.Redeemer,
	charger gateway.Charger,
	store Store,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if cfg.Carrier == "" {
		cfg.Carrier = defaultCarrier
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{
		coupons:        coupons,
		redeemer:       redeemer,
		charger:        charger,
		store:          store,
		cfg:            cfg,
		now:            time.Now,
		events:         nopPublisher{},
		publishTimeout: defaultPublishTimeout,
		meterProvider:  noop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := s.meterProvider.Meter("checkout")
	var err error
	if s.orders, err = meter.Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by payment method and outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if s.gatewayDuration, err = meter.Float64Histogram("checkout.gateway.duration",
		metric.WithDescription("Payment gateway call latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "gateway duration histogram")
	}
	return s, nil
}

// CreateOrder runs a checkout and returns the persisted order with its line
// items, payment and delivery.
//
// Coupon failures abort before anything is charged or written. A coupon
// redemption is reserved before the gateway is called and released again if
// the checkout fails without a charge. If the gateway charged the customer
// but persistence fails, the error is an *UnrecordedChargeError.
func (s *Service) CreateOrder(ctx context.Context, co Checkout) (*Aggregate, error) {
	req := co.Request
	if err := req.Validate(); err != nil {
		s.record(ctx, req.Method, "invalid")
		return nil, err
	}
	if err := validateCart(co.Cart); err != nil {
		s.record(ctx, req.Method, "invalid")
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("customer_id", co.Customer.ID),
		zap.String("method", string(req.Method)),
	)
	now := s.now().In(s.cfg.Location)
	params := s.gatewayParams(co, now)

	// Apply coupon and reserve its redemption.
	var (
		c        *coupon.Coupon
		discount *coupon.Discount
	)
	gatewayable := true
	if code := strings.TrimSpace(req.Coupon); code != "" {
		var err error
		c, discount, err = s.coupons.Evaluate(ctx, coupon.EvaluateRequest{
			Code:       code,
			CustomerID: co.Customer.ID,
			Subtotal:   co.Cart.Subtotal,
			Shipping:   s.cfg.ShippingAmount,
		})
		if err != nil {
			s.record(ctx, req.Method, "rejected")
			return nil, err
		}
		params.DiscountLines = append(params.DiscountLines, gateway.DiscountLine{
			Code:   discount.Code,
			Type:   discount.Type,
			Amount: discount.Amount,
		})
		if discount.Amount.GreaterThanOrEqual(co.Cart.Subtotal) {
			gatewayable = false
		}
		if err := s.redeemer.Redeem(ctx, c, co.Customer.ID); err != nil {
			s.record(ctx, req.Method, "rejected")
			return nil, err
		}
	}
	release := func(cause error) error {
		if c == nil {
			return cause
		}
		if err := s.redeemer.Release(context.WithoutCancel(ctx), c, co.Customer.ID); err != nil {
			return multierr.Append(cause, errors.Wrap(err, "release coupon redemption"))
		}
		return cause
	}

	// Charge the gateway.
	var result *gateway.Result
	if gatewayable {
		start := time.Now()
		res, err := s.charger.ChargeOrder(ctx, params)
		s.gatewayDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("method", string(req.Method)),
			attribute.Bool("ok", err == nil),
		))
		if err != nil {
			lg.Warn("Gateway rejected order", zap.Error(err))
			s.record(ctx, req.Method, "gateway_error")
			return nil, release(err)
		}
		result = res
	}

	// Persist order.
	agg := s.compose(co, now, params, c, discount, result)
	if err := Persist(ctx, s.store, agg); err != nil {
		s.record(ctx, req.Method, "persistence_error")
		if result != nil {
			lg.Error("Charged order was not recorded",
				zap.String("gateway_order_id", result.OrderID),
				zap.String("charge_id", result.ChargeID),
				zap.Error(err),
			)
			return nil, &UnrecordedChargeError{
				GatewayOrderID: result.OrderID,
				ChargeID:       result.ChargeID,
				Err:            err,
			}
		}
		lg.Error("Persist order", zap.Error(err))
		return nil, release(err)
	}

	if err := s.publish(ctx, agg); err != nil {
		lg.Warn("Publish order placed event", zap.Error(err))
	}
	s.record(ctx, req.Method, "placed")
	lg.Info("Order placed",
		zap.String("order_id", agg.Order.ID),
		zap.String("status", string(agg.Order.Status)),
		zap.Bool("gatewayable", gatewayable),
	)
	return agg, nil
}

// publish writes the order placed event. The order is already committed, so
// the write is detached from request cancellation but bounded in time.
func (s *Service) publish(ctx context.Context, agg *Aggregate) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	return s.events.OrderPlaced(ctx, agg)
}

func (s *Service) record(ctx context.Context, method gateway.Method, outcome string) {
	s.orders.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", string(method)),
		attribute.String("outcome", outcome),
	))
}

func (s *Service) gatewayParams(co Checkout, now time.Time) gateway.OrderParams {
	req := co.Request
	to := req.To()

	items := make([]gateway.LineItem, len(co.Cart.Content))
	for i, item := range co.Cart.Content {
		items[i] = gateway.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Qty,
			UnitPrice: item.Price,
		}
	}

	params := gateway.OrderParams{
		Currency:   s.cfg.Currency,
		CustomerID: co.Customer.GatewayID,
		LineItems:  items,
		ShippingLines: []gateway.ShippingLine{{
			Amount:  s.cfg.ShippingAmount,
			Carrier: s.cfg.Carrier,
		}},
		Metadata: headerMetadata(co.Headers),
		Receiver: gateway.Receiver{
			Name:  firstNonEmpty(req.ToReceiverName, co.Customer.FullName()),
			Phone: firstNonEmpty(req.ToReceiverPhone, co.Customer.Phone),
			Email: co.Customer.Email,
			Address: gateway.Address{
				Street:         joinNonEmpty(to.Line1, to.Line2, to.Line3),
				Reference:      to.References,
				City:           to.City,
				State:          to.State,
				Zip:            to.Zip,
				Country:        defaultCountry,
				BetweenStreets: to.BetweenStreets,
				Residential:    req.ToAddressResidential,
			},
		},
		PaymentMethod: gateway.PaymentMethod{Type: req.Method},
	}
	switch {
	case req.Method == gateway.MethodCard:
		params.PaymentMethod.Token = req.Token
	case req.Method.Deferred():
		params.PaymentMethod.ExpiresAt = gateway.PayBefore(now)
	}
	return params
}

func (s *Service) compose(
	co Checkout,
	now time.Time,
	params gateway.OrderParams,
	c *coupon.Coupon,
	discount *coupon.Discount,
	result *gateway.Result,
) *Aggregate {
	req := co.Request

	o := Order{
		CustomerID:        co.Customer.ID,
		Subtotal:          co.Cart.Subtotal,
		Total:             co.Cart.Total,
		Discount:          decimal.Zero,
		GatewayCustomerID: co.Customer.GatewayID,
		Bill:              req.Bill,
		Gift:              req.Gift,
		Status:            StatusPending,
	}
	if discount != nil {
		o.Discount = discount.Amount
		o.CouponID = c.ID
		o.CouponCode = c.Code
	}

	items := make([]LineItem, len(co.Cart.Content))
	for i, item := range co.Cart.Content {
		items[i] = LineItem{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			Price:     item.Price,
		}
	}

	var p Payment
	if result != nil {
		o.GatewayOrderID = result.OrderID
		p = Payment{
			GatewayChargeID: result.ChargeID,
			Method:          req.Method,
			Status:          result.ChargeStatus,
			Amount:          result.Amount,
			Fee:             result.Fee,
		}
		if req.Method.Deferred() {
			expires := params.PaymentMethod.ExpiresAt
			p.ReferenceExpiration = &expires
		}
		switch req.Method {
		case gateway.MethodSPEI:
			p.ReceivingAccountBank = result.ReceivingAccountBank
			p.ReceivingAccountNumber = result.ReceivingAccountNumber
			p.CLABE = result.CLABE
		case gateway.MethodOXXO:
			p.Reference = result.Reference
		case gateway.MethodCard:
			p.PaidAt = &now
		}
	} else {
		p = Payment{
			Method: gateway.MethodCoupon,
			Status: gateway.ChargeStatusPaid,
			Amount: decimal.Zero,
			Fee:    decimal.Zero,
			PaidAt: &now,
		}
	}
	if p.Status == gateway.ChargeStatusPaid {
		o.Status = StatusPaid
	}

	from, to := req.From(), req.To()
	d := Delivery{
		From: Origin{
			Address:  postalAddress(from),
			Location: NewPoint(deref(req.FromLongitude), deref(req.FromLatitude)),
			Sender: Contact{
				Name:  req.FromSenderName,
				Phone: req.FromSenderPhone,
			},
		},
		To: Destination{
			Address:  postalAddress(to),
			Location: NewPoint(deref(req.ToLongitude), deref(req.ToLatitude)),
			// The profile fallback only applies to the gateway receiver.
			Receiver: Contact{
				Name:  req.ToReceiverName,
				Phone: req.ToReceiverPhone,
			},
		},
		Amount:  s.cfg.ShippingAmount,
		Carrier: s.cfg.Carrier,
		Type:    req.ShippingType,
		Secured: req.ShippingSecured,
	}

	return &Aggregate{
		Order:     o,
		LineItems: items,
		Payment:   p,
		Delivery:  d,
	}
}

func postalAddress(in AddressInput) PostalAddress {
	return PostalAddress{
		Line1:          in.Line1,
		Line2:          in.Line2,
		Line3:          in.Line3,
		BetweenStreets: in.BetweenStreets,
		References:     in.References,
		Zip:            in.Zip,
		City:           in.City,
		State:          in.State,
		Country:        firstNonEmpty(in.Country, defaultCountry),
	}
}

// headerMetadata copies every request header except Authorization, keyed by
// its lower-case name.
func headerMetadata(h http.Header) map[string]string {
	md := make(map[string]string, len(h))
	for key, values := range h {
		name := strings.ToLower(key)
		if name == "authorization" {
			continue
		}
		md[name] = strings.Join(values, ", ")
	}
	return md
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
