package event

import (
	"github.com/shopspring/decimal"
)

type NotificationKind string

const (
	NotificationOrderUpdate    NotificationKind = "OrderUpdate"
	NotificationPaymentSuccess NotificationKind = "PaymentSuccess"
	NotificationPaymentFailed  NotificationKind = "PaymentFailed"
)

// 通知事件，投遞/模板由外部通知服務處理
type OrderUpdateEvent struct {
	BaseEvent
	Recipient   int    `json:"recipient"`
	OrderNumber string `json:"order_number"`
	FromStatus  string `json:"from_status"`
	ToStatus    string `json:"to_status"`
	ItemsCount  int    `json:"items_count"`
	Note        string `json:"note,omitempty"`
}

func (e *OrderUpdateEvent) Type() EventType {
	return OrderUpdateEventName
}

type PaymentSuccessEvent struct {
	BaseEvent
	Recipient   int             `json:"recipient"`
	PaymentID   string          `json:"payment_id"`
	OrderNumber string          `json:"order_number"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func (e *PaymentSuccessEvent) Type() EventType {
	return PaymentSuccessEventName
}

type PaymentFailedEvent struct {
	BaseEvent
	Recipient     int             `json:"recipient"`
	PaymentID     string          `json:"payment_id"`
	OrderNumber   string          `json:"order_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

func (e *PaymentFailedEvent) Type() EventType {
	return PaymentFailedEventName
}

// OrderPaidEvent 由 payment 完成時發出，內部 consumer 用來翻 is_paid
// at-least-once 投遞，消費端必須冪等
type OrderPaidEvent struct {
	BaseEvent
	OrderNumber string `json:"order_number"`
	PaymentID   string `json:"payment_id"`
}

func (e *OrderPaidEvent) Type() EventType {
	return OrderPaidEventName
}
