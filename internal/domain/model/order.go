package model

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // 待處理
	OrderStatusConfirmed OrderStatus = "CONFIRMED" // 已確認
	OrderStatusPreparing OrderStatus = "PREPARING" // 備餐中
	OrderStatusReady     OrderStatus = "READY"     // 可取餐
	OrderStatusCompleted OrderStatus = "COMPLETED" // 已完成
	OrderStatusCancelled OrderStatus = "CANCELLED" // 已取消
	OrderStatusRefunded  OrderStatus = "REFUNDED"  // 已退款（由支付側全額退款推導）
)

type OrderType string

const (
	OrderTypePickup   OrderType = "PICKUP"
	OrderTypeDelivery OrderType = "DELIVERY"
)

// 訂單聚合
// 成立後 OrderItems 只有 PENDING 階段可變動
// 狀態只能透過 service 的狀態機前進
type Order struct {
	OrderNumber string      `gorm:"primaryKey;type:varchar(20)" json:"order_number"`
	CustomerID  int         `gorm:"not null;index:idx_orders_customer_status" json:"customer_id"`
	Status      OrderStatus `gorm:"not null;type:varchar(20);default:'PENDING';index:idx_orders_customer_status;index:idx_orders_status_created" json:"status"`
	OrderType   OrderType   `gorm:"not null;type:varchar(20);default:'PICKUP'" json:"order_type"`

	OrderItems []OrderItem `gorm:"foreignKey:OrderNumber;constraint:OnDelete:CASCADE" json:"order_items"`

	Subtotal       decimal.Decimal `gorm:"not null;type:decimal(10,2);default:0" json:"subtotal"`
	TaxAmount      decimal.Decimal `gorm:"not null;type:decimal(10,2);default:0" json:"tax_amount"`
	DeliveryFee    decimal.Decimal `gorm:"not null;type:decimal(10,2);default:0" json:"delivery_fee"`
	DiscountAmount decimal.Decimal `gorm:"not null;type:decimal(10,2);default:0" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"not null;type:decimal(10,2);default:0" json:"total_amount"`

	EstimatedPickupTime *time.Time `json:"estimated_pickup_time,omitempty"`
	ActualPickupTime    *time.Time `json:"actual_pickup_time,omitempty"`

	DeliveryAddress string `gorm:"type:text" json:"delivery_address,omitempty"`
	DeliveryPhone   string `gorm:"type:varchar(15)" json:"delivery_phone,omitempty"`
	DeliveryNotes   string `gorm:"type:text" json:"delivery_notes,omitempty"`

	SpecialInstructions string `gorm:"type:text" json:"special_instructions,omitempty"`

	IsPaid        bool   `gorm:"not null;default:false" json:"is_paid"`
	PaymentMethod string `gorm:"type:varchar(20)" json:"payment_method,omitempty"`

	AssignedTo  *int `json:"assigned_to,omitempty"`
	ValidatedBy *int `json:"validated_by,omitempty"`
	CancelledBy *int `json:"cancelled_by,omitempty"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CancellationReason string `gorm:"type:text" json:"cancellation_reason,omitempty"`

	BaseModel
}

type OrderItem struct {
	OrderNumber         string          `gorm:"primaryKey;type:varchar(20)" json:"order_number"`
	MenuItemID          string          `gorm:"primaryKey;type:varchar(255)" json:"menu_item_id"`
	Quantity            int             `gorm:"not null" json:"quantity"`
	UnitPrice           decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"unit_price"` // 下單當下快照，不再變動
	SpecialInstructions string          `gorm:"type:text" json:"special_instructions,omitempty"`
	BaseModel
}

func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// 狀態歷程，只增不改
type OrderStatusHistory struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	OrderNumber    string      `gorm:"not null;type:varchar(20);index" json:"order_number"`
	PreviousStatus OrderStatus `gorm:"not null;type:varchar(20)" json:"previous_status"`
	NewStatus      OrderStatus `gorm:"not null;type:varchar(20)" json:"new_status"`
	ChangedBy      *int        `json:"changed_by,omitempty"`
	Notes          string      `gorm:"type:text" json:"notes,omitempty"`
	Timestamp      time.Time   `gorm:"not null;default:now()" json:"timestamp"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

func (o *Order) CanBeModified() bool {
	return o.Status == OrderStatusPending
}

func (o *Order) TotalItemsCount() int {
	count := 0
	for _, item := range o.OrderItems {
		count += item.Quantity
	}
	return count
}

// 預估完成時間 = 建立時間 + 最長備餐時間
// prepTimes 由外部菜單查詢提供，沒有資料時用預設15分鐘
func (o *Order) EstimatedCompletionTime(prepTimes []int) time.Time {
	if o.EstimatedPickupTime != nil {
		return *o.EstimatedPickupTime
	}
	maxPrep := 15
	for _, p := range prepTimes {
		if p > maxPrep {
			maxPrep = p
		}
	}
	return o.CreatedAt.Add(time.Duration(maxPrep) * time.Minute)
}

// CustomerOrderStats 消費統計，只帶總額與筆數，平均值由呼叫端自行計算
type CustomerOrderStats struct {
	CustomerID int     `json:"customer_id"`
	TotalSpent float64 `json:"total_spent"`
	OrderCount int     `json:"order_count"`
}

const orderNumberCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber 產生候選訂單編號，格式 YYYYMMDD-XXXX
// 唯一性由呼叫端對 DB 重試確認
func NewOrderNumber(now time.Time) string {
	var sb strings.Builder
	for i := 0; i < 4; i++ {
		sb.WriteByte(orderNumberCharset[rand.Intn(len(orderNumberCharset))])
	}
	return fmt.Sprintf("%s-%s", now.Format("20060102"), sb.String())
}
