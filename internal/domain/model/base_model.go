package model

import (
	"time"
)

// 訂單/支付不做刪除，歷史紀錄只增不改，所以不帶軟刪除欄位
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"null" json:"updated_at"`
}
