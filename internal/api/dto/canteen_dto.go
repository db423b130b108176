package dto

import "github.com/shopspring/decimal"

type AddCartItemDTO struct {
	MenuItemID          string `json:"menu_item_id"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

type AdjustCartItemDTO struct {
	Delta int `json:"delta"`
}

type CheckoutDTO struct {
	OrderType           string          `json:"order_type,omitempty"`
	DeliveryAddress     string          `json:"delivery_address,omitempty"`
	DeliveryPhone       string          `json:"delivery_phone,omitempty"`
	DeliveryNotes       string          `json:"delivery_notes,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
}

type UpdateOrderStatusDTO struct {
	Status string `json:"status"`
}

type CancelOrderDTO struct {
	Reason string `json:"reason"`
}

type AssignOrderDTO struct {
	AssigneeID int `json:"assignee_id"`
}

type AddOrderItemDTO struct {
	MenuItemID          string `json:"menu_item_id"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

type CreatePaymentDTO struct {
	OrderNumber     string `json:"order_number"`
	PaymentMethodID uint   `json:"payment_method_id,omitempty"`
	Provider        string `json:"provider,omitempty"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	Description     string `json:"description,omitempty"`
}

type RefundDTO struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}
