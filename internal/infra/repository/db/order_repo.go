package db

import (
	"context"
	"errors"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IOrderRepository interface {
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	GetOrderForUpdate(ctx context.Context, orderNumber string) (*model.Order, error)
	GetOrdersByCustomerID(ctx context.Context, customerID int) ([]model.Order, error)
	GetOrdersByStatus(ctx context.Context, status model.OrderStatus) ([]model.Order, error)
	GetOrdersPaginated(ctx context.Context, page, pageSize int) ([]model.Order, int64, error)
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
	SaveOrder(ctx context.Context, order *model.Order) error
	SetOrderPaid(ctx context.Context, orderNumber string) error
	AppendStatusHistory(ctx context.Context, row *model.OrderStatusHistory) error
	GetStatusHistory(ctx context.Context, orderNumber string) ([]model.OrderStatusHistory, error)
	UpsertOrderItem(ctx context.Context, item *model.OrderItem) error
	DeleteOrderItem(ctx context.Context, orderNumber, menuItemID string) error
	GetCustomerOrderStats(ctx context.Context, customerID int) (float64, int, error)
	WithTx(tx *gorm.DB) IOrderRepository
}

type OrderRepo struct {
	db *DbDao
}

func NewOrderRepo(db *DbDao) *OrderRepo {
	return &OrderRepo{db: db}
}

// WithTx 回傳綁定在交易上的repo，狀態轉移都要走交易
func (s *OrderRepo) WithTx(tx *gorm.DB) IOrderRepository {
	return &OrderRepo{db: &DbDao{DB: tx}}
}

var _ IOrderRepository = (*OrderRepo)(nil)

// Create - 建立訂單含項目
func (s *OrderRepo) CreateOrder(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

// Read - 依訂單編號查詢
func (s *OrderRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Preload("OrderItems").First(&order, "order_number = ?", orderNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Read - 加行鎖，同一筆訂單的讀改寫必須序列化
func (s *OrderRepo) GetOrderForUpdate(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("OrderItems").
		First(&order, "order_number = ?", orderNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Read - 依客戶查詢
func (s *OrderRepo) GetOrdersByCustomerID(ctx context.Context, customerID int) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).Preload("OrderItems").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// Read - 依狀態查詢，給員工看板用
func (s *OrderRepo) GetOrdersByStatus(ctx context.Context, status model.OrderStatus) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).Preload("OrderItems").
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// 分頁查詢訂單
func (s *OrderRepo) GetOrdersPaginated(ctx context.Context, page, pageSize int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	offset := (page - 1) * pageSize

	if err := s.db.WithContext(ctx).Model(&model.Order{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := s.db.WithContext(ctx).Preload("OrderItems").
		Order("created_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

func (s *OrderRepo) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error
	return count > 0, err
}

// Update - 保存整筆訂單
func (s *OrderRepo) SaveOrder(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Save(order).Error
}

// Update - 翻 is_paid，重複設定無害（at-least-once 消費）
func (s *OrderRepo) SetOrderPaid(ctx context.Context, orderNumber string) error {
	return s.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_number = ?", orderNumber).
		Update("is_paid", true).Error
}

// 狀態歷程只增不改
func (s *OrderRepo) AppendStatusHistory(ctx context.Context, row *model.OrderStatusHistory) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *OrderRepo) GetStatusHistory(ctx context.Context, orderNumber string) ([]model.OrderStatusHistory, error) {
	var rows []model.OrderStatusHistory
	err := s.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Order("timestamp ASC").
		Find(&rows).Error
	return rows, err
}

// Upsert - 同 (order, menu_item) 只會有一列，重複加入改數量
func (s *OrderRepo) UpsertOrderItem(ctx context.Context, item *model.OrderItem) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_number"}, {Name: "menu_item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "special_instructions"}),
	}).Create(item).Error
}

func (s *OrderRepo) DeleteOrderItem(ctx context.Context, orderNumber, menuItemID string) error {
	return s.db.WithContext(ctx).
		Where("order_number = ? AND menu_item_id = ?", orderNumber, menuItemID).
		Delete(&model.OrderItem{}).Error
}

// 取得客戶訂單統計，平均值由報表端自己除
func (s *OrderRepo) GetCustomerOrderStats(ctx context.Context, customerID int) (float64, int, error) {
	var totalAmount float64
	var orderCount int64

	err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(total_amount), 0) as total_amount, COUNT(*) as order_count").
		Row().
		Scan(&totalAmount, &orderCount)

	return totalAmount, int(orderCount), err
}
