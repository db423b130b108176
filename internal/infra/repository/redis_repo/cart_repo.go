package redis_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type CartRepoError error

var (
	ErrInsufficientQuantity CartRepoError = errors.New("insufficient quantity")
	ErrCartNotFound         CartRepoError = errors.New("cart not found")
)

// 購物車只存 redis，每個客戶一台
// quantity 與價格快照分開存：數量用 HINCRBY 原子增減，快照首次加入後不變
type CartRepo struct {
	cartCache *redis.Client
}

func NewCartRepo(cartCache *redis.Client) *CartRepo {
	return &CartRepo{cartCache: cartCache}
}

func generateCartItemKey(customerID int) string {
	return fmt.Sprintf("cart:%d:items", customerID)
}

func generateCartDetailKey(customerID int) string {
	return fmt.Sprintf("cart:%d:detail", customerID)
}

// 價格快照與特殊要求，首次加入時寫入
type cartItemDetail struct {
	UnitPrice           decimal.Decimal `json:"unit_price"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

// AddItem 加入品項或累加數量
// 快照用 HSETNX：重複加入不會覆蓋第一次的價格
func (r *CartRepo) AddItem(ctx context.Context, customerID int, item model.CartItem) error {
	detail, err := json.Marshal(cartItemDetail{
		UnitPrice:           item.UnitPrice,
		SpecialInstructions: item.SpecialInstructions,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cart item detail: %w", err)
	}

	// Lua 確保數量與快照在同一步完成
	luaScript := `
		redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[3])
		return redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
	`
	_, err = r.cartCache.Eval(ctx, luaScript,
		[]string{generateCartItemKey(customerID), generateCartDetailKey(customerID)},
		item.MenuItemID, item.Quantity, string(detail)).Result()
	if err != nil {
		return fmt.Errorf("failed to add item to cart: %w", err)
	}
	return nil
}

// Delta 增減購物車品項數量
// 減到0直接移除該品項
func (r *CartRepo) Delta(ctx context.Context, customerID int, menuItemID string, deltaQuantity int) error {
	luaScript := `
		local key = KEYS[1]
		local detail_key = KEYS[2]
		local menu_item_id = ARGV[1]
		local delta = tonumber(ARGV[2])

		-- 品項不在車上不能增減，否則會長出沒有價格快照的幽靈品項
		if redis.call('HEXISTS', key, menu_item_id) == 0 then
			return -1
		end

		-- 扣減前先檢查數量是否足夠
		if delta < 0 then
			local current = tonumber(redis.call('HGET', key, menu_item_id) or "0")
			if current + delta < 0 then
				return -2  -- 數量不足
			end
			if current == -delta then
				redis.call('HDEL', key, menu_item_id)
				redis.call('HDEL', detail_key, menu_item_id)
				return 0
			end
		end

		return redis.call('HINCRBY', key, menu_item_id, delta)
	`

	result, err := r.cartCache.Eval(ctx, luaScript,
		[]string{generateCartItemKey(customerID), generateCartDetailKey(customerID)},
		menuItemID, deltaQuantity).Result()
	if err == redis.Nil {
		return fmt.Errorf("failed to execute cart operation")
	}
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}

	switch v := result.(type) {
	case int64:
		if v == -1 {
			return fmt.Errorf("%w: menu item %s", ErrCartNotFound, menuItemID)
		}
		if v == -2 {
			return fmt.Errorf("%w menu item %s", ErrInsufficientQuantity, menuItemID)
		}
		return nil
	default:
		return fmt.Errorf("unexpected result type: %T", result)
	}
}

// Get 取購物車完整內容
func (r *CartRepo) Get(ctx context.Context, customerID int) (*model.Cart, error) {
	itemsKey := generateCartItemKey(customerID)
	detailKey := generateCartDetailKey(customerID)

	items, err := r.cartCache.HGetAll(ctx, itemsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}

	details, err := r.cartCache.HGetAll(ctx, detailKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart details: %w", err)
	}

	cart := &model.Cart{
		CustomerID: customerID,
	}
	for menuItemID, quantityStr := range items {
		quantity, err := strconv.Atoi(quantityStr)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity for menu item %s: %w", menuItemID, err)
		}
		if quantity <= 0 {
			continue
		}

		var detail cartItemDetail
		if raw, ok := details[menuItemID]; ok {
			if err := json.Unmarshal([]byte(raw), &detail); err != nil {
				return nil, fmt.Errorf("invalid detail for menu item %s: %w", menuItemID, err)
			}
		}

		cart.Items = append(cart.Items, model.CartItem{
			MenuItemID:          menuItemID,
			Quantity:            quantity,
			UnitPrice:           detail.UnitPrice,
			SpecialInstructions: detail.SpecialInstructions,
		})
	}

	return cart, nil
}

// Delete 移除指定品項
func (r *CartRepo) Delete(ctx context.Context, customerID int, menuItemID string) error {
	pipe := r.cartCache.TxPipeline()
	pipe.HDel(ctx, generateCartItemKey(customerID), menuItemID)
	pipe.HDel(ctx, generateCartDetailKey(customerID), menuItemID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete item from cart: %w", err)
	}
	return nil
}

// Clear 清空購物車
func (r *CartRepo) Clear(ctx context.Context, customerID int) error {
	err := r.cartCache.Del(ctx, generateCartItemKey(customerID), generateCartDetailKey(customerID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
