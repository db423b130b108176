package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-lab/canteen/internal/domain/model"
	evt "github.com/oapi-lab/canteen/internal/domain/model/event"
	"github.com/segmentio/kafka-go"
)

// EventProducer 把領域事件寫進 kafka
// 通知事件與內部 OrderPaid 事件走不同 topic
// key 用 aggregate id，同一聚合的事件保序
type EventProducer struct {
	notificationWriter *kafka.Writer
	paymentWriter      *kafka.Writer
}

func NewEventProducer(brokers []string, notificationTopic, paymentTopic string) *EventProducer {
	return &EventProducer{
		notificationWriter: newWriter(brokers, notificationTopic),
		paymentWriter:      newWriter(brokers, paymentTopic),
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func (p *EventProducer) Close() error {
	if err := p.notificationWriter.Close(); err != nil {
		return err
	}
	return p.paymentWriter.Close()
}

func (p *EventProducer) PublishOrderUpdate(ctx context.Context, order *model.Order, from, to model.OrderStatus, note string) error {
	e := &evt.OrderUpdateEvent{
		BaseEvent:   newBaseEvent(order.OrderNumber, evt.OrderUpdateEventName),
		Recipient:   order.CustomerID,
		OrderNumber: order.OrderNumber,
		FromStatus:  string(from),
		ToStatus:    string(to),
		ItemsCount:  order.TotalItemsCount(),
		Note:        note,
	}
	return p.produce(ctx, p.notificationWriter, order.OrderNumber, e)
}

func (p *EventProducer) PublishPaymentSuccess(ctx context.Context, payment *model.Payment) error {
	e := &evt.PaymentSuccessEvent{
		BaseEvent:   newBaseEvent(payment.PaymentID, evt.PaymentSuccessEventName),
		Recipient:   payment.CustomerID,
		PaymentID:   payment.PaymentID,
		OrderNumber: payment.OrderNumber,
		Amount:      payment.TotalAmount,
		Currency:    payment.Currency,
	}
	return p.produce(ctx, p.notificationWriter, payment.PaymentID, e)
}

func (p *EventProducer) PublishPaymentFailed(ctx context.Context, payment *model.Payment, reason string) error {
	e := &evt.PaymentFailedEvent{
		BaseEvent:     newBaseEvent(payment.PaymentID, evt.PaymentFailedEventName),
		Recipient:     payment.CustomerID,
		PaymentID:     payment.PaymentID,
		OrderNumber:   payment.OrderNumber,
		Amount:        payment.TotalAmount,
		Currency:      payment.Currency,
		FailureReason: reason,
	}
	return p.produce(ctx, p.notificationWriter, payment.PaymentID, e)
}

// OrderPaid 給內部 consumer 翻訂單 is_paid，key 用 order_number 保序
func (p *EventProducer) PublishOrderPaid(ctx context.Context, orderNumber, paymentID string) error {
	e := &evt.OrderPaidEvent{
		BaseEvent:   newBaseEvent(orderNumber, evt.OrderPaidEventName),
		OrderNumber: orderNumber,
		PaymentID:   paymentID,
	}
	return p.produce(ctx, p.paymentWriter, orderNumber, e)
}

func (p *EventProducer) produce(ctx context.Context, writer *kafka.Writer, key string, e evt.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type())},
		},
	})
}

func newBaseEvent(aggregateID string, eventType evt.EventType) evt.BaseEvent {
	return evt.BaseEvent{
		EventID:     uuid.NewString(),
		AggregateID: aggregateID,
		CreatedAt:   time.Now(),
		EventType:   eventType,
	}
}
