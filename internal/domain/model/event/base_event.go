package event

import "time"

type BaseEvent struct {
	EventID     string    `json:"eventId"`
	AggregateID string    `json:"aggregateId"` // order_number 或 payment_id
	CreatedAt   time.Time `json:"createdAt"`
	EventType   EventType `json:"eventType"`
}

func (e *BaseEvent) GetID() string {
	return e.EventID
}

type EventType string

const (
	OrderUpdateEventName    EventType = "OrderUpdate"
	PaymentSuccessEventName EventType = "PaymentSuccess"
	PaymentFailedEventName  EventType = "PaymentFailed"
	OrderPaidEventName      EventType = "OrderPaid"
)

type Event interface {
	Type() EventType
	GetID() string
}
