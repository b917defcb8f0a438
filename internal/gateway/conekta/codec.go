package conekta

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/parcel-checkout/internal/domain/gateway"
)

var hundred = decimal.NewFromInt(100)

// toCents converts an amount to the integer cents the API expects.
func toCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func paymentMethodType(m gateway.Method) string {
	if m == gateway.MethodOXXO {
		return "oxxo_cash"
	}
	return string(m)
}

func encodeOrder(e *jx.Encoder, p gateway.OrderParams) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency) })
		e.Field("customer_info", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("customer_id", func(e *jx.Encoder) { e.Str(p.CustomerID) })
			})
		})
		e.Field("line_items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, li := range p.LineItems {
					e.Obj(func(e *jx.Encoder) {
						e.Field("name", func(e *jx.Encoder) { e.Str(li.ProductID) })
						e.Field("sku", func(e *jx.Encoder) { e.Str(li.ProductID) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Int64(toCents(li.UnitPrice)) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
					})
				}
			})
		})
		e.Field("shipping_lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, sl := range p.ShippingLines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("amount", func(e *jx.Encoder) { e.Int64(toCents(sl.Amount)) })
						e.Field("carrier", func(e *jx.Encoder) { e.Str(sl.Carrier) })
					})
				}
			})
		})
		if len(p.DiscountLines) > 0 {
			e.Field("discount_lines", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, dl := range p.DiscountLines {
						e.Obj(func(e *jx.Encoder) {
							e.Field("code", func(e *jx.Encoder) { e.Str(dl.Code) })
							e.Field("type", func(e *jx.Encoder) { e.Str(dl.Type) })
							e.Field("amount", func(e *jx.Encoder) { e.Int64(toCents(dl.Amount)) })
						})
					}
				})
			})
		}
		e.Field("shipping_contact", func(e *jx.Encoder) { encodeReceiver(e, p.Receiver) })
		if len(p.Metadata) > 0 {
			e.Field("metadata", func(e *jx.Encoder) { encodeMetadata(e, p.Metadata) })
		}
		e.Field("charges", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("payment_method", func(e *jx.Encoder) { encodePaymentMethod(e, p.PaymentMethod) })
				})
			})
		})
	})
}

func encodeReceiver(e *jx.Encoder, r gateway.Receiver) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("receiver", func(e *jx.Encoder) { e.Str(r.Name) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(r.Phone) })
		if r.Address.BetweenStreets != "" {
			e.Field("between_streets", func(e *jx.Encoder) { e.Str(r.Address.BetweenStreets) })
		}
		e.Field("address", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("street1", func(e *jx.Encoder) { e.Str(r.Address.Street) })
				if r.Address.Reference != "" {
					e.Field("street2", func(e *jx.Encoder) { e.Str(r.Address.Reference) })
				}
				e.Field("city", func(e *jx.Encoder) { e.Str(r.Address.City) })
				e.Field("state", func(e *jx.Encoder) { e.Str(r.Address.State) })
				e.Field("postal_code", func(e *jx.Encoder) { e.Str(r.Address.Zip) })
				e.Field("country", func(e *jx.Encoder) { e.Str(r.Address.Country) })
				e.Field("residential", func(e *jx.Encoder) { e.Bool(r.Address.Residential) })
			})
		})
	})
}

func encodeMetadata(e *jx.Encoder, md map[string]string) {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.Obj(func(e *jx.Encoder) {
		for _, k := range keys {
			e.Field(k, func(e *jx.Encoder) { e.Str(md[k]) })
		}
	})
}

func encodePaymentMethod(e *jx.Encoder, pm gateway.PaymentMethod) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(paymentMethodType(pm.Type)) })
		if pm.Token != "" {
			e.Field("token_id", func(e *jx.Encoder) { e.Str(pm.Token) })
		}
		if pm.Type.Deferred() && !pm.ExpiresAt.IsZero() {
			e.Field("expires_at", func(e *jx.Encoder) { e.Int64(pm.ExpiresAt.Unix()) })
		}
	})
}

// decodeOrder reads the order id and the first charge of an order response.
func decodeOrder(d *jx.Decoder) (*gateway.Result, error) {
	res := &gateway.Result{}
	charged := false
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			res.OrderID = v
			return err
		case "charges":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "data" {
					return d.Skip()
				}
				return d.Arr(func(d *jx.Decoder) error {
					if charged {
						return d.Skip()
					}
					charged = true
					return decodeCharge(d, res)
				})
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if !charged {
		return nil, errors.New("order has no charges")
	}
	return res, nil
}

func decodeCharge(d *jx.Decoder, res *gateway.Result) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "id":
			res.ChargeID, err = d.Str()
		case "status":
			res.ChargeStatus, err = d.Str()
		case "amount":
			var v int64
			v, err = d.Int64()
			res.Amount = fromCents(v)
		case "fee":
			var v int64
			v, err = d.Int64()
			res.Fee = fromCents(v)
		case "payment_method":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				if d.Next() == jx.Null {
					return d.Null()
				}
				var err error
				switch key {
				case "reference":
					res.Reference, err = d.Str()
				case "clabe":
					res.CLABE, err = d.Str()
				case "receiving_account_bank":
					res.ReceivingAccountBank, err = d.Str()
				case "receiving_account_number":
					res.ReceivingAccountNumber, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
}

// apiError is the error body returned by the API.
type apiError struct {
	Type    string
	Message string
}

func decodeError(d *jx.Decoder) (apiError, error) {
	var out apiError
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			v, err := d.Str()
			out.Type = v
			return err
		case "details":
			return d.Arr(func(d *jx.Decoder) error {
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "message" || out.Message != "" {
						return d.Skip()
					}
					v, err := d.Str()
					out.Message = v
					return err
				})
			})
		default:
			return d.Skip()
		}
	})
	return out, err
}
