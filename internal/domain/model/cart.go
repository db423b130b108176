package model

import (
	"github.com/shopspring/decimal"
)

// 購物車只存 redis，結帳才轉成 Order 落 DB
// 每個客戶最多一台活躍購物車
type Cart struct {
	CustomerID int        `json:"customer_id"`
	Items      []CartItem `json:"items"`
}

type CartItem struct {
	MenuItemID          string          `json:"menu_item_id"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"` // 加入當下快照
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

func (i CartItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

func (c *Cart) TotalItems() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}
