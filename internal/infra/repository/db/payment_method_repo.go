package db

import (
	"context"
	"errors"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"gorm.io/gorm"
)

var (
	// ErrPaymentMethodNotFound 支付方式不存在或停用
	ErrPaymentMethodNotFound = errors.New("payment method not found")
)

type IPaymentMethodRepository interface {
	GetActiveMethodByProvider(ctx context.Context, provider model.ProviderTag) (*model.PaymentMethod, error)
	GetMethodByID(ctx context.Context, id uint) (*model.PaymentMethod, error)
	GetActiveMethods(ctx context.Context) ([]model.PaymentMethod, error)
}

type PaymentMethodRepo struct {
	db *DbDao
}

func NewPaymentMethodRepo(db *DbDao) *PaymentMethodRepo {
	return &PaymentMethodRepo{db: db}
}

var _ IPaymentMethodRepository = (*PaymentMethodRepo)(nil)

func (s *PaymentMethodRepo) GetActiveMethodByProvider(ctx context.Context, provider model.ProviderTag) (*model.PaymentMethod, error) {
	var method model.PaymentMethod
	err := s.db.WithContext(ctx).
		Where("provider = ? AND is_active = ?", provider, true).
		Order("display_order ASC").
		First(&method).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentMethodNotFound
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (s *PaymentMethodRepo) GetMethodByID(ctx context.Context, id uint) (*model.PaymentMethod, error) {
	var method model.PaymentMethod
	err := s.db.WithContext(ctx).First(&method, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentMethodNotFound
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// 給結帳頁排序顯示用
func (s *PaymentMethodRepo) GetActiveMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	var methods []model.PaymentMethod
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("display_order ASC, name ASC").
		Find(&methods).Error
	return methods, err
}
