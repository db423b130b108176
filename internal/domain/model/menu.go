package model

import (
	"github.com/shopspring/decimal"
)

// 菜單為外部資料，core 只讀不寫
type MenuItem struct {
	MenuItemID      string          `gorm:"primaryKey;type:varchar(255)" json:"menu_item_id"`
	Name            string          `gorm:"not null;type:varchar(100)" json:"name"`
	Price           decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"price"`
	PreparationTime int             `gorm:"not null;default:15" json:"preparation_time"` // 分鐘
	DailyLimit      *int            `json:"daily_limit,omitempty"`                       // nil 表示不限量
	IsAvailable     bool            `gorm:"not null;default:true" json:"is_available"`
	BaseModel
}

func (MenuItem) TableName() string {
	return "menu_items"
}
