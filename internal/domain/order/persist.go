package order

import (
	"context"

	"github.com/go-faster/errors"
)

// Persist writes the aggregate in one transaction: the order first, then one
// line item per entry collected into the order summary, then the payment and
// the delivery, and finally the order again with both references attached.
// On success agg holds the stored records with their ids. Any failure is a
// *PersistenceError and nothing is committed.
func Persist(ctx context.Context, store Store, agg *Aggregate) error {
	var stored Aggregate
	err := store.InTx(ctx, func(w Writer) error {
		o := agg.Order
		o.Summary = make([]string, 0, len(agg.LineItems))
		o.Payments = nil
		o.Deliveries = nil
		if err := w.CreateOrder(ctx, &o); err != nil {
			return errors.Wrap(err, "create order")
		}

		items := make([]LineItem, len(agg.LineItems))
		for i, li := range agg.LineItems {
			li.OrderID = o.ID
			if err := w.CreateLineItem(ctx, &li); err != nil {
				return errors.Wrapf(err, "create line item %d", i)
			}
			items[i] = li
			o.Summary = append(o.Summary, li.ID)
		}
		if err := w.SaveOrder(ctx, &o); err != nil {
			return errors.Wrap(err, "save order summary")
		}

		p := agg.Payment
		p.OrderID = o.ID
		if err := w.CreatePayment(ctx, &p); err != nil {
			return errors.Wrap(err, "create payment")
		}
		d := agg.Delivery
		d.OrderID = o.ID
		if err := w.CreateDelivery(ctx, &d); err != nil {
			return errors.Wrap(err, "create delivery")
		}

		// Attach payment and delivery.
		current, err := w.GetOrder(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "reload order")
		}
		current.Payments = append(current.Payments, p.ID)
		current.Deliveries = append(current.Deliveries, d.ID)
		if err := w.SaveOrder(ctx, current); err != nil {
			return errors.Wrap(err, "attach payment and delivery")
		}

		stored = Aggregate{
			Order:     *current,
			LineItems: items,
			Payment:   p,
			Delivery:  d,
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Err: err}
	}
	*agg = stored
	return nil
}
