package order

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/parcel-checkout/internal/domain/cart"
	"github.com/xenking/parcel-checkout/internal/domain/gateway"
)

// AddressInput is one address block of the checkout form.
type AddressInput struct {
	Line1          string
	Line2          string
	Line3          string
	BetweenStreets string
	References     string
	City           string
	State          string
	Zip            string
	Country        string
}

// CheckoutRequest is the checkout form submitted by the client.
type CheckoutRequest struct {
	Method          gateway.Method `json:"method" validate:"required,oneof=card oxxo spei"`
	Token           string         `json:"token" validate:"required_if=Method card,max=128"`
	Coupon          string         `json:"coupon" validate:"omitempty,max=64"`
	Bill            bool           `json:"bill"`
	Gift            bool           `json:"gift"`
	ShippingType    string         `json:"shipping_type" validate:"required,max=32"`
	ShippingSecured bool           `json:"shipping_secured"`

	ToReceiverName            string   `json:"to_receiver_name" validate:"max=128"`
	ToReceiverPhone           string   `json:"to_receiver_phone" validate:"max=32"`
	ToAddressLine1            string   `json:"to_address_line1" validate:"required,max=256"`
	ToAddressLine2            string   `json:"to_address_line2" validate:"max=256"`
	ToAddressLine3            string   `json:"to_address_line3" validate:"max=256"`
	ToAddressBetweenStreets   string   `json:"to_address_between_streets" validate:"max=256"`
	ToAddressReferences       string   `json:"to_address_references" validate:"max=512"`
	ToAddressCity             string   `json:"to_address_city" validate:"required,max=128"`
	ToAddressState            string   `json:"to_address_state" validate:"required,max=128"`
	ToAddressZip              string   `json:"to_address_zip" validate:"required,max=16"`
	ToAddressCountry          string   `json:"to_address_country" validate:"max=64"`
	ToAddressResidential      bool     `json:"to_address_residential"`
	ToLongitude               *float64 `json:"to_longitude" validate:"required,longitude"`
	ToLatitude                *float64 `json:"to_latitude" validate:"required,latitude"`
	FromSenderName            string   `json:"from_sender_name" validate:"required,max=128"`
	FromSenderPhone           string   `json:"from_sender_phone" validate:"max=32"`
	FromAddressLine1          string   `json:"from_address_line1" validate:"required,max=256"`
	FromAddressLine2          string   `json:"from_address_line2" validate:"max=256"`
	FromAddressLine3          string   `json:"from_address_line3" validate:"max=256"`
	FromAddressBetweenStreets string   `json:"from_address_between_streets" validate:"max=256"`
	FromAddressReferences     string   `json:"from_address_references" validate:"max=512"`
	FromAddressCity           string   `json:"from_address_city" validate:"required,max=128"`
	FromAddressState          string   `json:"from_address_state" validate:"required,max=128"`
	FromAddressZip            string   `json:"from_address_zip" validate:"required,max=16"`
	FromAddressCountry        string   `json:"from_address_country" validate:"max=64"`
	FromLongitude             *float64 `json:"from_longitude" validate:"required,longitude"`
	FromLatitude              *float64 `json:"from_latitude" validate:"required,latitude"`
}

// To returns the destination address block.
func (r *CheckoutRequest) To() AddressInput {
	return AddressInput{
		Line1:          r.ToAddressLine1,
		Line2:          r.ToAddressLine2,
		Line3:          r.ToAddressLine3,
		BetweenStreets: r.ToAddressBetweenStreets,
		References:     r.ToAddressReferences,
		City:           r.ToAddressCity,
		State:          r.ToAddressState,
		Zip:            r.ToAddressZip,
		Country:        r.ToAddressCountry,
	}
}

// From returns the origin address block.
func (r *CheckoutRequest) From() AddressInput {
	return AddressInput{
		Line1:          r.FromAddressLine1,
		Line2:          r.FromAddressLine2,
		Line3:          r.FromAddressLine3,
		BetweenStreets: r.FromAddressBetweenStreets,
		References:     r.FromAddressReferences,
		City:           r.FromAddressCity,
		State:          r.FromAddressState,
		Zip:            r.FromAddressZip,
		Country:        r.FromAddressCountry,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the request against its schema and returns a
// *ValidationError describing every offending field.
func (r *CheckoutRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Err: errors.Wrap(err, "validate request")}
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = validationMessage(fe)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return &ValidationError{
		Fields: fields,
		Err:    errors.Errorf("The field %s %s.", names[0], fields[names[0]]),
	}
}

// validateCart checks the cart snapshot before anything is charged: every
// line needs a product, a positive quantity and a non-negative price, and the
// totals must not be negative.
func validateCart(c *cart.Cart) error {
	if c.IsEmpty() {
		return &ValidationError{Err: ErrEmptyCart}
	}
	fields := make(map[string]string)
	for i, item := range c.Content {
		prefix := fmt.Sprintf("content[%d].", i)
		if strings.TrimSpace(item.ProductID) == "" {
			fields[prefix+"productId"] = "is required"
		}
		if item.Qty < 1 {
			fields[prefix+"qty"] = "must be at least 1"
		}
		if item.Price.IsNegative() {
			fields[prefix+"price"] = "must not be negative"
		}
	}
	if c.Subtotal.IsNegative() {
		fields["subtotal"] = "must not be negative"
	}
	if c.Total.IsNegative() {
		fields["total"] = "must not be negative"
	}
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return &ValidationError{
		Fields: fields,
		Err:    errors.Errorf("The cart field %s %s.", names[0], fields[names[0]]),
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "latitude", "longitude":
		return "must be a valid " + fe.Tag()
	}
	return "is invalid"
}
