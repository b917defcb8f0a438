// Package stripe implements gateway.Charger on top of Stripe PaymentIntents.
package stripe

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"

	"github.com/xenking/parcel-checkout/internal/domain/gateway"
)

// Provider is the provider name reported in gateway errors.
const Provider = "stripe"

const (
	maxVoucherDays   = 7
	statusProcessing = "pending_payment"
)

// Intents creates payment intents. It is satisfied by *paymentintent.Client.
type Intents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Config configures the Stripe client.
type Config struct {
	SecretKey string
}

// Client charges orders by creating and confirming a PaymentIntent.
type Client struct {
	intents Intents
	now     func() time.Time
}

var _ gateway.Charger = (*Client)(nil)

// New creates a Client using the Stripe API backend.
func New(cfg Config) *Client {
	return NewWithIntents(&paymentintent.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: cfg.SecretKey,
	})
}

// NewWithIntents creates a Client over a custom Intents implementation.
func NewWithIntents(intents Intents) *Client {
	return &Client{intents: intents, now: time.Now}
}

// ChargeOrder creates a confirmed PaymentIntent for the order total.
func (c *Client) ChargeOrder(ctx context.Context, params gateway.OrderParams) (*gateway.Result, error) {
	p, err := intentParams(params, c.now())
	if err != nil {
		return nil, &gateway.Error{Provider: Provider, Type: "invalid_request_error", Message: err.Error()}
	}
	p.Context = ctx

	pi, err := c.intents.New(p)
	if err != nil {
		return nil, mapError(err)
	}
	return resultFromIntent(pi), nil
}

// orderTotal sums line items and shipping minus discounts, floored at zero.
func orderTotal(p gateway.OrderParams) decimal.Decimal {
	total := decimal.Zero
	for _, li := range p.LineItems {
		total = total.Add(li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))))
	}
	for _, sl := range p.ShippingLines {
		total = total.Add(sl.Amount)
	}
	for _, dl := range p.DiscountLines {
		total = total.Sub(dl.Amount)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func intentParams(p gateway.OrderParams, now time.Time) (*stripe.PaymentIntentParams, error) {
	amount := orderTotal(p).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if amount <= 0 {
		return nil, errors.New("order amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		Confirm:  stripe.Bool(true),
		Shipping: &stripe.ShippingDetailsParams{
			Name:  stripe.String(p.Receiver.Name),
			Phone: stripe.String(p.Receiver.Phone),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(p.Receiver.Address.Street),
				Line2:      stripe.String(p.Receiver.Address.Reference),
				City:       stripe.String(p.Receiver.Address.City),
				State:      stripe.String(p.Receiver.Address.State),
				PostalCode: stripe.String(p.Receiver.Address.Zip),
				Country:    stripe.String(p.Receiver.Address.Country),
			},
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if len(p.ShippingLines) > 0 {
		params.Shipping.Carrier = stripe.String(p.ShippingLines[0].Carrier)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	for _, dl := range p.DiscountLines {
		params.AddMetadata("coupon", dl.Code)
	}
	params.AddExpand("latest_charge.balance_transaction")

	switch p.PaymentMethod.Type {
	case gateway.MethodCard:
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card"})
		params.PaymentMethod = stripe.String(p.PaymentMethod.Token)
		params.ErrorOnRequiresAction = stripe.Bool(true)
	case gateway.MethodOXXO:
		params.PaymentMethodTypes = stripe.StringSlice([]string{"oxxo"})
		params.PaymentMethodData = &stripe.PaymentIntentPaymentMethodDataParams{
			Type: stripe.String("oxxo"),
			BillingDetails: &stripe.PaymentIntentPaymentMethodDataBillingDetailsParams{
				Name:  stripe.String(p.Receiver.Name),
				Email: stripe.String(p.Receiver.Email),
			},
		}
		params.PaymentMethodOptions = &stripe.PaymentIntentPaymentMethodOptionsParams{
			OXXO: &stripe.PaymentIntentPaymentMethodOptionsOXXOParams{
				ExpiresAfterDays: stripe.Int64(voucherDays(now, p.PaymentMethod.ExpiresAt)),
			},
		}
	case gateway.MethodSPEI:
		if p.CustomerID == "" {
			return nil, errors.New("bank transfers require a gateway customer")
		}
		params.PaymentMethodTypes = stripe.StringSlice([]string{"customer_balance"})
		params.PaymentMethodData = &stripe.PaymentIntentPaymentMethodDataParams{
			Type: stripe.String("customer_balance"),
		}
		params.PaymentMethodOptions = &stripe.PaymentIntentPaymentMethodOptionsParams{
			CustomerBalance: &stripe.PaymentIntentPaymentMethodOptionsCustomerBalanceParams{
				FundingType: stripe.String("bank_transfer"),
				BankTransfer: &stripe.PaymentIntentPaymentMethodOptionsCustomerBalanceBankTransferParams{
					Type: stripe.String("mx_bank_transfer"),
				},
			},
		}
	default:
		return nil, errors.Errorf("unsupported payment method %q", p.PaymentMethod.Type)
	}
	return params, nil
}

// voucherDays converts the payment deadline to whole days, within the range
// accepted for OXXO vouchers.
func voucherDays(now, deadline time.Time) int64 {
	if deadline.IsZero() {
		return maxVoucherDays
	}
	days := int64(math.Ceil(deadline.Sub(now).Hours() / 24))
	return min(max(days, 1), maxVoucherDays)
}

func resultFromIntent(pi *stripe.PaymentIntent) *gateway.Result {
	res := &gateway.Result{
		OrderID:      pi.ID,
		ChargeStatus: chargeStatus(pi.Status),
		Amount:       decimal.New(pi.Amount, -2),
		Fee:          decimal.Zero,
	}
	if ch := pi.LatestCharge; ch != nil {
		res.ChargeID = ch.ID
		if bt := ch.BalanceTransaction; bt != nil {
			res.Fee = decimal.New(bt.Fee, -2)
		}
	}
	if res.ChargeID == "" {
		res.ChargeID = pi.ID
	}
	if na := pi.NextAction; na != nil {
		if oxxo := na.OXXODisplayDetails; oxxo != nil {
			res.Reference = oxxo.Number
		}
		if bt := na.DisplayBankTransferInstructions; bt != nil {
			for _, fa := range bt.FinancialAddresses {
				if fa == nil || fa.Spei == nil {
					continue
				}
				res.CLABE = fa.Spei.Clabe
				res.ReceivingAccountNumber = fa.Spei.Clabe
				res.ReceivingAccountBank = fa.Spei.BankName
				break
			}
		}
	}
	return res
}

func chargeStatus(s stripe.PaymentIntentStatus) string {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return gateway.ChargeStatusPaid
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusProcessing:
		return statusProcessing
	default:
		return string(s)
	}
}

func mapError(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return &gateway.Error{Provider: Provider, Type: "connection_error", Message: err.Error()}
	}
	gerr := &gateway.Error{
		Provider: Provider,
		Status:   serr.HTTPStatusCode,
		Type:     string(serr.Type),
		Message:  serr.Msg,
		Payload:  []byte(serr.Error()),
	}
	if serr.LastResponse != nil && len(serr.LastResponse.RawJSON) > 0 {
		gerr.Payload = serr.LastResponse.RawJSON
	}
	return gerr
}
