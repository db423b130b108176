package service

import (
	"context"
	"errors"
	"time"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/infra/repository/db"
	"github.com/oapi-lab/canteen/internal/infra/repository/redis_repo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrMenuItemUnavailable = errors.New("menu item is not available")
	ErrDailyLimitReached   = errors.New("menu item daily limit reached")
	ErrEmptyCart           = errors.New("cart is empty")
)

type CheckoutRequest struct {
	OrderType           model.OrderType
	DeliveryAddress     string
	DeliveryPhone       string
	DeliveryNotes       string
	SpecialInstructions string
	DiscountAmount      decimal.Decimal
}

type ICartService interface {
	AddItem(ctx context.Context, customerID int, menuItemID string, quantity int, specialInstructions string) (*model.Cart, error)
	AdjustQuantity(ctx context.Context, customerID int, menuItemID string, delta int) (*model.Cart, error)
	RemoveItem(ctx context.Context, customerID int, menuItemID string) (*model.Cart, error)
	GetCart(ctx context.Context, customerID int) (*model.Cart, error)
	ClearCart(ctx context.Context, customerID int) error
	Checkout(ctx context.Context, customerID int, req CheckoutRequest) (*model.Order, error)
}

type ICartRepository interface {
	AddItem(ctx context.Context, customerID int, item model.CartItem) error
	Delta(ctx context.Context, customerID int, menuItemID string, deltaQuantity int) error
	Get(ctx context.Context, customerID int) (*model.Cart, error)
	Delete(ctx context.Context, customerID int, menuItemID string) error
	Clear(ctx context.Context, customerID int) error
}

type CartService struct {
	cartRepo     ICartRepository
	menuRepo     db.IMenuRepository
	orderService IOrderService
	deliveryFee  decimal.Decimal
	logger       zerolog.Logger
}

func NewCartService(cartRepo ICartRepository, menuRepo db.IMenuRepository, orderService IOrderService, deliveryFee decimal.Decimal, logger zerolog.Logger) *CartService {
	return &CartService{
		cartRepo:     cartRepo,
		menuRepo:     menuRepo,
		orderService: orderService,
		deliveryFee:  deliveryFee,
		logger:       logger,
	}
}

var _ ICartService = (*CartService)(nil)
var _ ICartRepository = (*redis_repo.CartRepo)(nil)

// AddItem 加入購物車
// 單價在第一次加入時快照，之後菜單調價不影響已在車上的品項
func (c *CartService) AddItem(ctx context.Context, customerID int, menuItemID string, quantity int, specialInstructions string) (*model.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	menuItem, err := c.menuRepo.GetMenuItemByID(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	if !menuItem.IsAvailable {
		return nil, ErrMenuItemUnavailable
	}
	if err := c.checkDailyLimit(ctx, menuItem, quantity); err != nil {
		return nil, err
	}

	err = c.cartRepo.AddItem(ctx, customerID, model.CartItem{
		MenuItemID:          menuItemID,
		Quantity:            quantity,
		UnitPrice:           menuItem.Price,
		SpecialInstructions: specialInstructions,
	})
	if err != nil {
		return nil, err
	}
	return c.cartRepo.Get(ctx, customerID)
}

// AdjustQuantity 增減數量，減到零自動移出
func (c *CartService) AdjustQuantity(ctx context.Context, customerID int, menuItemID string, delta int) (*model.Cart, error) {
	if delta > 0 {
		menuItem, err := c.menuRepo.GetMenuItemByID(ctx, menuItemID)
		if err != nil {
			return nil, err
		}
		if err := c.checkDailyLimit(ctx, menuItem, delta); err != nil {
			return nil, err
		}
	}
	if err := c.cartRepo.Delta(ctx, customerID, menuItemID, delta); err != nil {
		return nil, err
	}
	return c.cartRepo.Get(ctx, customerID)
}

func (c *CartService) RemoveItem(ctx context.Context, customerID int, menuItemID string) (*model.Cart, error) {
	if err := c.cartRepo.Delete(ctx, customerID, menuItemID); err != nil {
		return nil, err
	}
	return c.cartRepo.Get(ctx, customerID)
}

func (c *CartService) GetCart(ctx context.Context, customerID int) (*model.Cart, error) {
	return c.cartRepo.Get(ctx, customerID)
}

func (c *CartService) ClearCart(ctx context.Context, customerID int) error {
	return c.cartRepo.Clear(ctx, customerID)
}

// Checkout 把購物車轉成訂單
// 結帳前重新驗證可售與限量；成功落單才清車
func (c *CartService) Checkout(ctx context.Context, customerID int, req CheckoutRequest) (*model.Order, error) {
	cart, err := c.cartRepo.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]model.OrderItem, 0, len(cart.Items))
	prepTimes := make([]int, 0, len(cart.Items))
	for _, cartItem := range cart.Items {
		menuItem, err := c.menuRepo.GetMenuItemByID(ctx, cartItem.MenuItemID)
		if err != nil {
			return nil, err
		}
		if !menuItem.IsAvailable {
			return nil, ErrMenuItemUnavailable
		}
		if err := c.checkDailyLimit(ctx, menuItem, cartItem.Quantity); err != nil {
			return nil, err
		}
		prepTimes = append(prepTimes, menuItem.PreparationTime)
		items = append(items, model.OrderItem{
			MenuItemID:          cartItem.MenuItemID,
			Quantity:            cartItem.Quantity,
			UnitPrice:           cartItem.UnitPrice,
			SpecialInstructions: cartItem.SpecialInstructions,
		})
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = model.OrderTypePickup
	}
	deliveryFee := decimal.Zero
	if orderType == model.OrderTypeDelivery {
		deliveryFee = c.deliveryFee
	}

	order := &model.Order{
		CustomerID:          customerID,
		OrderType:           orderType,
		OrderItems:          items,
		DeliveryFee:         deliveryFee,
		DiscountAmount:      req.DiscountAmount,
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryPhone:       req.DeliveryPhone,
		DeliveryNotes:       req.DeliveryNotes,
		SpecialInstructions: req.SpecialInstructions,
	}
	estimated := time.Now()
	maxPrep := 15
	for _, p := range prepTimes {
		if p > maxPrep {
			maxPrep = p
		}
	}
	estimated = estimated.Add(time.Duration(maxPrep) * time.Minute)
	order.EstimatedPickupTime = &estimated

	if err := c.orderService.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	if err := c.cartRepo.Clear(ctx, customerID); err != nil {
		// 訂單已成立，清車失敗只記log
		c.logger.Error().Err(err).Int("customer_id", customerID).Msg("failed to clear cart after checkout")
	}

	c.logger.Info().
		Int("customer_id", customerID).
		Str("order_number", order.OrderNumber).
		Int("items", len(items)).
		Msg("cart checked out")
	return order, nil
}

// 限量品項以當日已下單數量把關，購物車本身不佔額度
func (c *CartService) checkDailyLimit(ctx context.Context, menuItem *model.MenuItem, addQuantity int) error {
	if menuItem.DailyLimit == nil {
		return nil
	}
	ordered, err := c.menuRepo.CountOrderedToday(ctx, menuItem.MenuItemID, time.Now())
	if err != nil {
		return err
	}
	if ordered+addQuantity > *menuItem.DailyLimit {
		return ErrDailyLimitReached
	}
	return nil
}
