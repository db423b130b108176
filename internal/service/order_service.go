package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/infra/repository/db"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrOrderNotExist              = errors.New("order is not exist")
	ErrInvalidTransition          = errors.New("invalid order status transition")
	ErrNumberGenerationExhausted  = errors.New("order number generation exhausted")
	ErrForbidden                  = errors.New("actor is not allowed to perform this operation")
	ErrCancellationReasonRequired = errors.New("cancellation reason is required")
	ErrOrderNotModifiable         = errors.New("order items can only be modified while pending")
	ErrOrderClosed                = errors.New("order is already closed")
	ErrInvalidQuantity            = errors.New("quantity must be at least 1")
	ErrEmptyOrder                 = errors.New("order must contain at least one item")
)

// 訂單編號撞號重試上限
const maxOrderNumberAttempts = 20

// 狀態機：只允許前進
// PENDING -> CONFIRMED -> PREPARING -> READY -> COMPLETED
// PENDING/CONFIRMED -> CANCELLED
// REFUNDED 不是直接轉移目標，由支付側全額退款推導
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:   {model.OrderStatusConfirmed, model.OrderStatusCancelled},
	model.OrderStatusConfirmed: {model.OrderStatusPreparing, model.OrderStatusCancelled},
	model.OrderStatusPreparing: {model.OrderStatusReady},
	model.OrderStatusReady:     {model.OrderStatusCompleted},
}

func isValidTransition(from, to model.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// 需要 manage-orders 能力的目標狀態
func requiresStaff(to model.OrderStatus) bool {
	switch to {
	case model.OrderStatusConfirmed, model.OrderStatusPreparing, model.OrderStatusReady, model.OrderStatusCompleted:
		return true
	default:
		return false
	}
}

type txRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type INotificationPublisher interface {
	PublishOrderUpdate(ctx context.Context, order *model.Order, from, to model.OrderStatus, note string) error
}

type IOrderService interface {
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, orderNumber string) (*model.Order, error)
	GetOrdersByCustomerID(ctx context.Context, customerID int) ([]model.Order, error)
	GetOrdersByStatus(ctx context.Context, status model.OrderStatus) ([]model.Order, error)
	ListOrders(ctx context.Context, page, pageSize int) ([]model.Order, int64, error)
	GetCustomerStats(ctx context.Context, customerID int) (*model.CustomerOrderStats, error)
	GetStatusHistory(ctx context.Context, orderNumber string) ([]model.OrderStatusHistory, error)
	UpdateStatus(ctx context.Context, orderNumber string, newStatus model.OrderStatus, actor *model.Actor) (*model.Order, error)
	CancelOrder(ctx context.Context, orderNumber, reason string, actor *model.Actor) (*model.Order, error)
	AssignOrder(ctx context.Context, orderNumber string, assigneeID int, actor *model.Actor) (*model.Order, error)
	AddItem(ctx context.Context, orderNumber, menuItemID string, quantity int, specialInstructions string, actor *model.Actor) (*model.Order, error)
	RemoveItem(ctx context.Context, orderNumber, menuItemID string, actor *model.Actor) (*model.Order, error)
	MarkRefunded(ctx context.Context, orderNumber string, actor *model.Actor) error
}

type OrderService struct {
	dao       txRunner
	orderRepo db.IOrderRepository
	menuRepo  db.IMenuRepository
	pricing   *PricingService
	publisher INotificationPublisher
	taxRate   decimal.Decimal
	logger    zerolog.Logger
}

func NewOrderService(dao txRunner, orderRepo db.IOrderRepository, menuRepo db.IMenuRepository, pricing *PricingService, publisher INotificationPublisher, taxRate decimal.Decimal, logger zerolog.Logger) *OrderService {
	return &OrderService{
		dao:       dao,
		orderRepo: orderRepo,
		menuRepo:  menuRepo,
		pricing:   pricing,
		publisher: publisher,
		taxRate:   taxRate,
		logger:    logger,
	}
}

var _ IOrderService = (*OrderService)(nil)

// CreateOrder 建立訂單
// 編號格式 YYYYMMDD-XXXX，撞號重試，超過上限回 ErrNumberGenerationExhausted
func (o *OrderService) CreateOrder(ctx context.Context, order *model.Order) error {
	if len(order.OrderItems) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range order.OrderItems {
		if item.Quantity < 1 {
			return ErrInvalidQuantity
		}
	}

	totals, err := o.pricing.ComputeTotals(order.OrderItems, order.DeliveryFee, order.DiscountAmount, o.taxRate)
	if err != nil {
		return err
	}
	order.Subtotal = totals.Subtotal
	order.TaxAmount = totals.TaxAmount
	order.TotalAmount = totals.TotalAmount
	order.Status = model.OrderStatusPending

	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		candidate := model.NewOrderNumber(time.Now())
		exists, err := o.orderRepo.OrderNumberExists(ctx, candidate)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		order.OrderNumber = candidate
		for i := range order.OrderItems {
			order.OrderItems[i].OrderNumber = candidate
		}

		if err := o.orderRepo.CreateOrder(ctx, order); err != nil {
			// exists 檢查與寫入之間仍可能被搶號，唯一鍵擋下後換號重試
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return err
		}

		o.logger.Info().
			Str("order_number", order.OrderNumber).
			Int("customer_id", order.CustomerID).
			Str("total_amount", order.TotalAmount.String()).
			Msg("order created")
		return nil
	}

	return ErrNumberGenerationExhausted
}

func (o *OrderService) GetOrder(ctx context.Context, orderNumber string) (*model.Order, error) {
	order, err := o.orderRepo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotExist
	}
	return order, nil
}

func (o *OrderService) GetOrdersByCustomerID(ctx context.Context, customerID int) ([]model.Order, error) {
	return o.orderRepo.GetOrdersByCustomerID(ctx, customerID)
}

func (o *OrderService) GetOrdersByStatus(ctx context.Context, status model.OrderStatus) ([]model.Order, error) {
	return o.orderRepo.GetOrdersByStatus(ctx, status)
}

func (o *OrderService) ListOrders(ctx context.Context, page, pageSize int) ([]model.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return o.orderRepo.GetOrdersPaginated(ctx, page, pageSize)
}

func (o *OrderService) GetCustomerStats(ctx context.Context, customerID int) (*model.CustomerOrderStats, error) {
	total, count, err := o.orderRepo.GetCustomerOrderStats(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &model.CustomerOrderStats{
		CustomerID: customerID,
		TotalSpent: total,
		OrderCount: count,
	}, nil
}

func (o *OrderService) GetStatusHistory(ctx context.Context, orderNumber string) ([]model.OrderStatusHistory, error) {
	return o.orderRepo.GetStatusHistory(ctx, orderNumber)
}

// UpdateStatus 狀態轉移
// 行鎖序列化同一筆訂單的讀改寫；轉移失敗不寫歷程
func (o *OrderService) UpdateStatus(ctx context.Context, orderNumber string, newStatus model.OrderStatus, actor *model.Actor) (*model.Order, error) {
	if requiresStaff(newStatus) && !actor.Can(model.CapManageOrders) {
		return nil, ErrForbidden
	}
	if newStatus == model.OrderStatusCancelled {
		// 取消走 CancelOrder，要求取消原因
		return nil, ErrCancellationReasonRequired
	}

	var updated *model.Order
	var previous model.OrderStatus
	err := o.dao.Transaction(func(tx *gorm.DB) error {
		repo := o.orderRepo.WithTx(tx)
		order, err := repo.GetOrderForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotExist
		}

		if !isValidTransition(order.Status, newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, newStatus)
		}

		previous = order.Status
		now := time.Now()
		order.Status = newStatus

		switch newStatus {
		case model.OrderStatusConfirmed:
			if order.ConfirmedAt == nil {
				order.ConfirmedAt = &now
				order.ValidatedBy = &actor.ID
			}
		case model.OrderStatusCompleted:
			if order.CompletedAt == nil {
				order.CompletedAt = &now
				order.ActualPickupTime = &now
			}
		}

		if err := repo.SaveOrder(ctx, order); err != nil {
			return err
		}

		if err := repo.AppendStatusHistory(ctx, &model.OrderStatusHistory{
			OrderNumber:    order.OrderNumber,
			PreviousStatus: previous,
			NewStatus:      newStatus,
			ChangedBy:      &actor.ID,
			Notes:          fmt.Sprintf("Status changed from %s to %s", previous, newStatus),
		}); err != nil {
			return err
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("order_number", orderNumber).
		Str("from", string(previous)).
		Str("to", string(newStatus)).
		Int("actor", actor.ID).
		Msg("order status updated")

	o.notifyOrderUpdate(ctx, updated, previous, newStatus, "")
	return updated, nil
}

// CancelOrder 取消訂單
// 只有 PENDING/CONFIRMED 可取消；客戶只能取消自己的訂單
func (o *OrderService) CancelOrder(ctx context.Context, orderNumber, reason string, actor *model.Actor) (*model.Order, error) {
	if reason == "" {
		return nil, ErrCancellationReasonRequired
	}

	var updated *model.Order
	var previous model.OrderStatus
	err := o.dao.Transaction(func(tx *gorm.DB) error {
		repo := o.orderRepo.WithTx(tx)
		order, err := repo.GetOrderForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotExist
		}

		isOwner := actor != nil && actor.ID == order.CustomerID
		if !isOwner && !actor.Can(model.CapManageOrders) {
			return ErrForbidden
		}

		if !order.CanBeCancelled() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, model.OrderStatusCancelled)
		}

		previous = order.Status
		now := time.Now()
		order.Status = model.OrderStatusCancelled
		order.CancellationReason = reason
		if order.CancelledAt == nil {
			order.CancelledAt = &now
			order.CancelledBy = &actor.ID
		}

		if err := repo.SaveOrder(ctx, order); err != nil {
			return err
		}

		if err := repo.AppendStatusHistory(ctx, &model.OrderStatusHistory{
			OrderNumber:    order.OrderNumber,
			PreviousStatus: previous,
			NewStatus:      model.OrderStatusCancelled,
			ChangedBy:      &actor.ID,
			Notes:          fmt.Sprintf("Status changed from %s to %s", previous, model.OrderStatusCancelled),
		}); err != nil {
			return err
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("order_number", orderNumber).
		Str("reason", reason).
		Int("actor", actor.ID).
		Msg("order cancelled")

	o.notifyOrderUpdate(ctx, updated, previous, model.OrderStatusCancelled, reason)
	return updated, nil
}

// AssignOrder 指派製餐人員，僅限員工
// 不是狀態轉移，不寫歷程
func (o *OrderService) AssignOrder(ctx context.Context, orderNumber string, assigneeID int, actor *model.Actor) (*model.Order, error) {
	if !actor.Can(model.CapManageOrders) {
		return nil, ErrForbidden
	}

	err := o.dao.Transaction(func(tx *gorm.DB) error {
		repo := o.orderRepo.WithTx(tx)
		order, err := repo.GetOrderForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotExist
		}
		switch order.Status {
		case model.OrderStatusCompleted, model.OrderStatusCancelled, model.OrderStatusRefunded:
			return ErrOrderClosed
		}

		order.AssignedTo = &assigneeID
		return repo.SaveOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("order_number", orderNumber).
		Int("assignee", assigneeID).
		Int("actor", actor.ID).
		Msg("order assigned")
	return o.GetOrder(ctx, orderNumber)
}

// AddItem 加項目，只有 PENDING 可改
// 同 (order, menu_item) 重複加入改數量；每次異動重算金額
func (o *OrderService) AddItem(ctx context.Context, orderNumber, menuItemID string, quantity int, specialInstructions string, actor *model.Actor) (*model.Order, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	menuItem, err := o.menuRepo.GetMenuItemByID(ctx, menuItemID)
	if err != nil {
		return nil, err
	}

	item := model.OrderItem{
		MenuItemID:          menuItemID,
		Quantity:            quantity,
		UnitPrice:           menuItem.Price, // 新項目用現價快照，既有項目沿用原快照
		SpecialInstructions: specialInstructions,
	}

	err = o.dao.Transaction(func(tx *gorm.DB) error {
		repo := o.orderRepo.WithTx(tx)
		order, err := repo.GetOrderForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotExist
		}
		if actor == nil || (actor.ID != order.CustomerID && !actor.Can(model.CapManageOrders)) {
			return ErrForbidden
		}
		if !order.CanBeModified() {
			return ErrOrderNotModifiable
		}

		item.OrderNumber = order.OrderNumber
		merged := false
		for i := range order.OrderItems {
			if order.OrderItems[i].MenuItemID == item.MenuItemID {
				// 單價維持第一次的快照
				order.OrderItems[i].Quantity += item.Quantity
				if item.SpecialInstructions != "" {
					order.OrderItems[i].SpecialInstructions = item.SpecialInstructions
				}
				item = order.OrderItems[i]
				merged = true
				break
			}
		}
		if !merged {
			order.OrderItems = append(order.OrderItems, item)
		}

		if err := repo.UpsertOrderItem(ctx, &item); err != nil {
			return err
		}

		return o.recomputeTotals(ctx, repo, order)
	})
	if err != nil {
		return nil, err
	}
	return o.GetOrder(ctx, orderNumber)
}

// RemoveItem 移除項目，只有 PENDING 可改
func (o *OrderService) RemoveItem(ctx context.Context, orderNumber, menuItemID string, actor *model.Actor) (*model.Order, error) {
	err := o.dao.Transaction(func(tx *gorm.DB) error {
		repo := o.orderRepo.WithTx(tx)
		order, err := repo.GetOrderForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotExist
		}
		if actor == nil || (actor.ID != order.CustomerID && !actor.Can(model.CapManageOrders)) {
			return ErrForbidden
		}
		if !order.CanBeModified() {
			return ErrOrderNotModifiable
		}

		if err := repo.DeleteOrderItem(ctx, orderNumber, menuItemID); err != nil {
			return err
		}

		remaining := order.OrderItems[:0]
		for _, it := range order.OrderItems {
			if it.MenuItemID != menuItemID {
				remaining = append(remaining, it)
			}
		}
		order.OrderItems = remaining

		return o.recomputeTotals(ctx, repo, order)
	})
	if err != nil {
		return nil, err
	}
	return o.GetOrder(ctx, orderNumber)
}

// MarkRefunded 支付側全額退款後鏡射到訂單，不是狀態機的直接轉移
func (o *OrderService) MarkRefunded(ctx context.Context, orderNumber string, actor *model.Actor) error {
	var previous model.OrderStatus
	var updated *model.Order
	err := o.dao.Transaction(func(tx *gorm.DB) error {
		repo := o.orderRepo.WithTx(tx)
		order, err := repo.GetOrderForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotExist
		}
		if order.Status == model.OrderStatusRefunded {
			return nil // 冪等
		}

		previous = order.Status
		order.Status = model.OrderStatusRefunded
		if err := repo.SaveOrder(ctx, order); err != nil {
			return err
		}

		var changedBy *int
		if actor != nil {
			changedBy = &actor.ID
		}
		if err := repo.AppendStatusHistory(ctx, &model.OrderStatusHistory{
			OrderNumber:    order.OrderNumber,
			PreviousStatus: previous,
			NewStatus:      model.OrderStatusRefunded,
			ChangedBy:      changedBy,
			Notes:          fmt.Sprintf("Status changed from %s to %s", previous, model.OrderStatusRefunded),
		}); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return err
	}
	if updated != nil {
		o.notifyOrderUpdate(ctx, updated, previous, model.OrderStatusRefunded, "payment fully refunded")
	}
	return nil
}

func (o *OrderService) recomputeTotals(ctx context.Context, repo db.IOrderRepository, order *model.Order) error {
	totals, err := o.pricing.ComputeTotals(order.OrderItems, order.DeliveryFee, order.DiscountAmount, o.taxRate)
	if err != nil {
		return err
	}
	order.Subtotal = totals.Subtotal
	order.TaxAmount = totals.TaxAmount
	order.TotalAmount = totals.TotalAmount
	return repo.SaveOrder(ctx, order)
}

// 通知發送失敗只記log，不回滾已提交的轉移
func (o *OrderService) notifyOrderUpdate(ctx context.Context, order *model.Order, from, to model.OrderStatus, note string) {
	if o.publisher == nil || order == nil {
		return
	}
	if err := o.publisher.PublishOrderUpdate(ctx, order, from, to, note); err != nil {
		o.logger.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Msg("failed to publish order update event")
	}
}
