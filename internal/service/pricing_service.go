package service

import (
	"errors"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeTotal    = errors.New("discount exceeds subtotal, tax and fees")
	ErrInvalidTaxRate   = errors.New("tax rate must be non-negative")
	ErrNegativeDiscount = errors.New("discount amount must be non-negative")
	ErrNegativeFee      = errors.New("delivery fee must be non-negative")
)

// 計價結果，可由儲存的輸入重算驗證
type OrderTotals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DeliveryFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// 純計算，無I/O
// total = subtotal + tax + delivery_fee - discount
type PricingService struct{}

func NewPricingService() *PricingService {
	return &PricingService{}
}

// ComputeTotals 由訂單項目算出各項金額
// 項目順序不影響結果；折扣把 total 壓到負值視為錯誤
func (p *PricingService) ComputeTotals(items []model.OrderItem, deliveryFee, discountAmount decimal.Decimal, taxRate decimal.Decimal) (*OrderTotals, error) {
	if taxRate.IsNegative() {
		return nil, ErrInvalidTaxRate
	}
	if discountAmount.IsNegative() {
		return nil, ErrNegativeDiscount
	}
	if deliveryFee.IsNegative() {
		return nil, ErrNegativeFee
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.TotalPrice())
	}

	taxAmount := subtotal.Mul(taxRate)
	total := subtotal.Add(taxAmount).Add(deliveryFee).Sub(discountAmount)
	if total.IsNegative() {
		return nil, ErrNegativeTotal
	}

	return &OrderTotals{
		Subtotal:       subtotal,
		TaxAmount:      taxAmount,
		DeliveryFee:    deliveryFee,
		DiscountAmount: discountAmount,
		TotalAmount:    total,
	}, nil
}

// ComputeCartTotal 購物車小計，結帳前顯示用
func (p *PricingService) ComputeCartTotal(items []model.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalPrice())
	}
	return total
}
