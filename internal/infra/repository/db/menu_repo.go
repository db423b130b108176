package db

import (
	"context"
	"errors"
	"time"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"gorm.io/gorm"
)

var (
	// ErrMenuItemNotFound 菜單品項不存在
	ErrMenuItemNotFound = errors.New("menu item not found")
)

// 菜單由外部後台維護，core 只讀
type IMenuRepository interface {
	GetMenuItemByID(ctx context.Context, menuItemID string) (*model.MenuItem, error)
	GetAvailableMenuItems(ctx context.Context) ([]model.MenuItem, error)
	CountOrderedToday(ctx context.Context, menuItemID string, now time.Time) (int, error)
}

type MenuRepo struct {
	db *DbDao
}

func NewMenuRepo(db *DbDao) *MenuRepo {
	return &MenuRepo{db: db}
}

var _ IMenuRepository = (*MenuRepo)(nil)

func (s *MenuRepo) GetMenuItemByID(ctx context.Context, menuItemID string) (*model.MenuItem, error) {
	var item model.MenuItem
	err := s.db.WithContext(ctx).First(&item, "menu_item_id = ?", menuItemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMenuItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *MenuRepo) GetAvailableMenuItems(ctx context.Context) ([]model.MenuItem, error) {
	var items []model.MenuItem
	err := s.db.WithContext(ctx).Where("is_available = ?", true).Find(&items).Error
	return items, err
}

// 當日已下單數量，daily_limit 檢查用
// 取消的訂單不計入
func (s *MenuRepo) CountOrderedToday(ctx context.Context, menuItemID string, now time.Time) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var total int64
	err := s.db.WithContext(ctx).Model(&model.OrderItem{}).
		Joins("JOIN orders ON orders.order_number = order_items.order_number").
		Where("order_items.menu_item_id = ?", menuItemID).
		Where("orders.created_at >= ?", dayStart).
		Where("orders.status <> ?", model.OrderStatusCancelled).
		Select("COALESCE(SUM(order_items.quantity), 0)").
		Row().
		Scan(&total)
	return int(total), err
}
