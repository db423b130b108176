package service

import (
	"context"
	"testing"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/infra/repository/redis_repo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeCartRepo struct {
	carts map[int]map[string]model.CartItem
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[int]map[string]model.CartItem)}
}

func (f *fakeCartRepo) AddItem(ctx context.Context, customerID int, item model.CartItem) error {
	cart, ok := f.carts[customerID]
	if !ok {
		cart = make(map[string]model.CartItem)
		f.carts[customerID] = cart
	}
	if existing, ok := cart[item.MenuItemID]; ok {
		// 單價維持第一次的快照
		existing.Quantity += item.Quantity
		cart[item.MenuItemID] = existing
		return nil
	}
	cart[item.MenuItemID] = item
	return nil
}

func (f *fakeCartRepo) Delta(ctx context.Context, customerID int, menuItemID string, deltaQuantity int) error {
	cart, ok := f.carts[customerID]
	if !ok {
		return redis_repo.ErrCartNotFound
	}
	item, ok := cart[menuItemID]
	if !ok {
		return redis_repo.ErrCartNotFound
	}
	if item.Quantity+deltaQuantity < 0 {
		return redis_repo.ErrInsufficientQuantity
	}
	item.Quantity += deltaQuantity
	if item.Quantity == 0 {
		delete(cart, menuItemID)
		return nil
	}
	cart[menuItemID] = item
	return nil
}

func (f *fakeCartRepo) Get(ctx context.Context, customerID int) (*model.Cart, error) {
	cart := &model.Cart{CustomerID: customerID}
	for _, item := range f.carts[customerID] {
		cart.Items = append(cart.Items, item)
	}
	return cart, nil
}

func (f *fakeCartRepo) Delete(ctx context.Context, customerID int, menuItemID string) error {
	delete(f.carts[customerID], menuItemID)
	return nil
}

func (f *fakeCartRepo) Clear(ctx context.Context, customerID int) error {
	delete(f.carts, customerID)
	return nil
}

type CartServiceTestSuite struct {
	suite.Suite
	cartRepo  *fakeCartRepo
	menuRepo  *fakeMenuRepo
	orderRepo *fakeOrderRepo
	svc       *CartService
	customer  *model.Actor
}

func (s *CartServiceTestSuite) SetupTest() {
	s.cartRepo = newFakeCartRepo()
	s.orderRepo = newFakeOrderRepo()
	limit := 5
	s.menuRepo = &fakeMenuRepo{items: map[string]*model.MenuItem{
		"rice-chicken": {MenuItemID: "rice-chicken", Price: decimal.NewFromInt(1000), IsAvailable: true, PreparationTime: 20},
		"ndole":        {MenuItemID: "ndole", Price: decimal.NewFromInt(1500), IsAvailable: true, PreparationTime: 30},
		"off-menu":     {MenuItemID: "off-menu", Price: decimal.NewFromInt(800), IsAvailable: false},
		"limited":      {MenuItemID: "limited", Price: decimal.NewFromInt(2000), IsAvailable: true, DailyLimit: &limit},
	}}
	s.customer = model.NewActor(7, model.CapPlaceOrder)

	orderService := NewOrderService(fakeTxRunner{}, s.orderRepo, s.menuRepo, NewPricingService(), &fakePublisher{}, decimal.NewFromFloat(0.05), zerolog.Nop())
	s.svc = NewCartService(s.cartRepo, s.menuRepo, orderService, decimal.NewFromInt(500), zerolog.Nop())
}

func TestCartServiceSuite(t *testing.T) {
	suite.Run(t, new(CartServiceTestSuite))
}

func (s *CartServiceTestSuite) TestAddItemSnapshotsPrice() {
	ctx := context.Background()
	cart, err := s.svc.AddItem(ctx, s.customer.ID, "rice-chicken", 2, "")
	require.NoError(s.T(), err)
	require.Len(s.T(), cart.Items, 1)
	require.True(s.T(), decimal.NewFromInt(1000).Equal(cart.Items[0].UnitPrice))

	// 調價後已在車上的品項不受影響
	s.menuRepo.items["rice-chicken"].Price = decimal.NewFromInt(9999)
	cart, err = s.svc.AddItem(ctx, s.customer.ID, "rice-chicken", 1, "")
	require.NoError(s.T(), err)
	require.Equal(s.T(), 3, cart.Items[0].Quantity)
	require.True(s.T(), decimal.NewFromInt(1000).Equal(cart.Items[0].UnitPrice), "單價應維持加入當下的快照")
}

func (s *CartServiceTestSuite) TestAddUnavailableItem() {
	_, err := s.svc.AddItem(context.Background(), s.customer.ID, "off-menu", 1, "")
	require.ErrorIs(s.T(), err, ErrMenuItemUnavailable)
}

func (s *CartServiceTestSuite) TestDailyLimit() {
	s.menuRepo.orderedToday = 4

	_, err := s.svc.AddItem(context.Background(), s.customer.ID, "limited", 2, "")
	require.ErrorIs(s.T(), err, ErrDailyLimitReached, "當日已售4份，限量5，再加2份要被擋")

	_, err = s.svc.AddItem(context.Background(), s.customer.ID, "limited", 1, "")
	require.NoError(s.T(), err)
}

func (s *CartServiceTestSuite) TestAdjustToZeroRemovesItem() {
	ctx := context.Background()
	_, err := s.svc.AddItem(ctx, s.customer.ID, "rice-chicken", 2, "")
	require.NoError(s.T(), err)

	cart, err := s.svc.AdjustQuantity(ctx, s.customer.ID, "rice-chicken", -2)
	require.NoError(s.T(), err)
	require.Empty(s.T(), cart.Items)
}

// 增減只作用在已在車上的品項，不能長出沒有價格快照的品項
func (s *CartServiceTestSuite) TestAdjustMissingItem() {
	_, err := s.svc.AdjustQuantity(context.Background(), s.customer.ID, "rice-chicken", 1)
	require.ErrorIs(s.T(), err, redis_repo.ErrCartNotFound)
}

func (s *CartServiceTestSuite) TestCheckoutCreatesOrder() {
	ctx := context.Background()
	_, err := s.svc.AddItem(ctx, s.customer.ID, "rice-chicken", 2, "")
	require.NoError(s.T(), err)
	_, err = s.svc.AddItem(ctx, s.customer.ID, "ndole", 1, "no shrimp")
	require.NoError(s.T(), err)

	order, err := s.svc.Checkout(ctx, s.customer.ID, CheckoutRequest{})
	require.NoError(s.T(), err)
	require.Equal(s.T(), model.OrderStatusPending, order.Status)
	require.Equal(s.T(), model.OrderTypePickup, order.OrderType)
	require.Len(s.T(), order.OrderItems, 2)
	// 2*1000 + 1*1500 = 3500，稅 5% = 175
	require.True(s.T(), decimal.NewFromInt(3500).Equal(order.Subtotal))
	require.True(s.T(), decimal.NewFromInt(175).Equal(order.TaxAmount))
	require.True(s.T(), decimal.NewFromInt(3675).Equal(order.TotalAmount))
	require.NotNil(s.T(), order.EstimatedPickupTime)

	// 結帳成功後購物車要清空
	cart, err := s.svc.GetCart(ctx, s.customer.ID)
	require.NoError(s.T(), err)
	require.Empty(s.T(), cart.Items)
}

func (s *CartServiceTestSuite) TestCheckoutDeliveryAddsFee() {
	ctx := context.Background()
	_, err := s.svc.AddItem(ctx, s.customer.ID, "rice-chicken", 1, "")
	require.NoError(s.T(), err)

	order, err := s.svc.Checkout(ctx, s.customer.ID, CheckoutRequest{
		OrderType:       model.OrderTypeDelivery,
		DeliveryAddress: "Campus B, Room 12",
	})
	require.NoError(s.T(), err)
	require.True(s.T(), decimal.NewFromInt(500).Equal(order.DeliveryFee))
	// 1000 + 50 稅 + 500 運費
	require.True(s.T(), decimal.NewFromInt(1550).Equal(order.TotalAmount))
}

func (s *CartServiceTestSuite) TestCheckoutEmptyCart() {
	_, err := s.svc.Checkout(context.Background(), s.customer.ID, CheckoutRequest{})
	require.ErrorIs(s.T(), err, ErrEmptyCart)
}

func (s *CartServiceTestSuite) TestCheckoutRevalidatesAvailability() {
	ctx := context.Background()
	_, err := s.svc.AddItem(ctx, s.customer.ID, "rice-chicken", 1, "")
	require.NoError(s.T(), err)

	// 加入後才下架
	s.menuRepo.items["rice-chicken"].IsAvailable = false

	_, err = s.svc.Checkout(ctx, s.customer.ID, CheckoutRequest{})
	require.ErrorIs(s.T(), err, ErrMenuItemUnavailable, "結帳時要重新驗證可售狀態")
}
