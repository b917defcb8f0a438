// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/xenking/parcel-checkout/internal/domain/order"
)

// TypeOrderPlaced is the event type of a persisted checkout.
const TypeOrderPlaced = "order.placed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.EventPublisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes order events keyed by customer id, so events of one
// customer stay ordered within a partition.
type KafkaPublisher struct {
	w   messageWriter
	now func() time.Time
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: 2 * time.Second,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, now: time.Now}
}

// OrderPlaced publishes an order.placed event. The trace context of ctx is
// propagated in the message headers.
func (p *KafkaPublisher) OrderPlaced(ctx context.Context, agg *order.Aggregate) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrderPlaced(e, agg, p.now())

	msg := kafka.Message{
		Key:   []byte(agg.Order.CustomerID),
		Value: append([]byte(nil), e.Bytes()...),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(TypeOrderPlaced)},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write order event")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

func encodeOrderPlaced(e *jx.Encoder, agg *order.Aggregate, at time.Time) {
	o := agg.Order
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(TypeOrderPlaced) })
		e.Field("occurredAt", func(e *jx.Encoder) { e.Str(at.UTC().Format(time.RFC3339Nano)) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("customerId", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.StringFixed(2)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(o.Discount.StringFixed(2)) })
		if o.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		if o.GatewayOrderID != "" {
			e.Field("gatewayOrderId", func(e *jx.Encoder) { e.Str(o.GatewayOrderID) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, li := range agg.LineItems {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(li.ProductID) })
						e.Field("qty", func(e *jx.Encoder) { e.Int(li.Qty) })
						e.Field("price", func(e *jx.Encoder) { e.Str(li.Price.StringFixed(2)) })
					})
				}
			})
		})
		e.Field("payment", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(agg.Payment.ID) })
				e.Field("method", func(e *jx.Encoder) { e.Str(string(agg.Payment.Method)) })
				e.Field("status", func(e *jx.Encoder) { e.Str(agg.Payment.Status) })
				e.Field("amount", func(e *jx.Encoder) { e.Str(agg.Payment.Amount.StringFixed(2)) })
			})
		})
		e.Field("deliveryId", func(e *jx.Encoder) { e.Str(agg.Delivery.ID) })
	})
}

// headerCarrier adapts kafka message headers to a TextMapCarrier.
type headerCarrier struct {
	msg *kafka.Message
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}
