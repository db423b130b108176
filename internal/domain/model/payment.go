package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
)

type ProviderTag string

const (
	ProviderOrange ProviderTag = "ORANGE"
	ProviderMTN    ProviderTag = "MTN"
	ProviderCash   ProviderTag = "CASH"
	ProviderCard   ProviderTag = "CARD"
)

// 支付方式設定檔
type PaymentMethod struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Name           string          `gorm:"not null;type:varchar(50)" json:"name"`
	Provider       ProviderTag     `gorm:"not null;type:varchar(20)" json:"provider"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	MinimumAmount  decimal.Decimal `gorm:"not null;type:decimal(10,2);default:100" json:"minimum_amount"`
	MaximumAmount  decimal.Decimal `gorm:"not null;type:decimal(10,2);default:500000" json:"maximum_amount"`
	TransactionFee decimal.Decimal `gorm:"not null;type:decimal(5,2);default:0" json:"transaction_fee"` // 百分比
	FixedFee       decimal.Decimal `gorm:"not null;type:decimal(10,2);default:0" json:"fixed_fee"`      // 固定費 XAF
	DisplayOrder   int             `gorm:"not null;default:0" json:"display_order"`
	BaseModel
}

// CalculateFees 手續費 = 金額 * 百分比 / 100 + 固定費
func (m *PaymentMethod) CalculateFees(amount decimal.Decimal) decimal.Decimal {
	percentageFee := amount.Mul(m.TransactionFee).Div(decimal.NewFromInt(100))
	return percentageFee.Add(m.FixedFee)
}

func (m *PaymentMethod) IsAmountValid(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(m.MinimumAmount) && amount.LessThanOrEqual(m.MaximumAmount)
}

// 支付聚合
// total_amount 建立時凍結，之後方式費率變更不回算
type Payment struct {
	PaymentID     string `gorm:"primaryKey;type:uuid" json:"payment_id"`
	TransactionID string `gorm:"type:varchar(100);index" json:"transaction_id,omitempty"` // provider 指派

	OrderNumber     string `gorm:"not null;type:varchar(20);index" json:"order_number"`
	CustomerID      int    `gorm:"not null;index:idx_payments_customer_status" json:"customer_id"`
	PaymentMethodID uint   `gorm:"not null" json:"payment_method_id"`
	PaymentMethod   *PaymentMethod

	Amount      decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"amount"`
	Fees        decimal.Decimal `gorm:"not null;type:decimal(10,2);default:0" json:"fees"`
	TotalAmount decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"total_amount"`
	Currency    string          `gorm:"not null;type:varchar(3);default:'XAF'" json:"currency"`

	Status PaymentStatus `gorm:"not null;type:varchar(20);default:'PENDING';index:idx_payments_customer_status" json:"status"`

	CustomerPhone string `gorm:"not null;type:varchar(15)" json:"customer_phone"`
	CustomerEmail string `gorm:"type:varchar(254)" json:"customer_email,omitempty"`

	ProviderData     string `gorm:"type:jsonb;default:'{}'" json:"provider_data,omitempty"`
	ProviderResponse string `gorm:"type:jsonb;default:'{}'" json:"provider_response,omitempty"`

	Description   string `gorm:"type:text" json:"description,omitempty"`
	Reference     string `gorm:"type:varchar(100)" json:"reference,omitempty"`
	FailureReason string `gorm:"type:text" json:"failure_reason,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	RefundedAmount decimal.Decimal `gorm:"not null;type:decimal(10,2);default:0" json:"refunded_amount"`
	RefundReason   string          `gorm:"type:text" json:"refund_reason,omitempty"`
	RefundedAt     *time.Time      `json:"refunded_at,omitempty"`
	RefundedBy     *int            `json:"refunded_by,omitempty"`

	BaseModel
}

func (p *Payment) CanBeRefunded() bool {
	return p.Status == PaymentStatusCompleted && p.RefundedAmount.LessThan(p.Amount)
}

func (p *Payment) RefundableAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// IsTerminal 除 COMPLETED 可再接受退款記帳外，其餘終態不再前進
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

type PaymentStatusHistory struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	PaymentID        string        `gorm:"not null;type:uuid;index" json:"payment_id"`
	PreviousStatus   PaymentStatus `gorm:"not null;type:varchar(20)" json:"previous_status"`
	NewStatus        PaymentStatus `gorm:"not null;type:varchar(20)" json:"new_status"`
	ProviderResponse string        `gorm:"type:jsonb;default:'{}'" json:"provider_response,omitempty"` // 轉換當下的 provider 原始回應
	Notes            string        `gorm:"type:text" json:"notes,omitempty"`
	Timestamp        time.Time     `gorm:"not null;default:now()" json:"timestamp"`
}

func (PaymentStatusHistory) TableName() string {
	return "payment_status_history"
}

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "PENDING"
	RefundStatusProcessing RefundStatus = "PROCESSING"
	RefundStatusCompleted  RefundStatus = "COMPLETED"
	RefundStatusFailed     RefundStatus = "FAILED"
)

type Refund struct {
	RefundID         string          `gorm:"primaryKey;type:uuid" json:"refund_id"`
	PaymentID        string          `gorm:"not null;type:uuid;index" json:"payment_id"`
	Amount           decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"amount"` // 建立時固定
	Status           RefundStatus    `gorm:"not null;type:varchar(20);default:'PENDING'" json:"status"`
	Reason           string          `gorm:"not null;type:text" json:"reason"`
	ProcessedBy      *int            `json:"processed_by,omitempty"`
	ProviderRefundID string          `gorm:"type:varchar(100)" json:"provider_refund_id,omitempty"`
	ProviderResponse string          `gorm:"type:jsonb;default:'{}'" json:"provider_response,omitempty"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	BaseModel
}
