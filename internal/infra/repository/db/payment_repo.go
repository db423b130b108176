package db

import (
	"context"
	"errors"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IPaymentRepository interface {
	CreatePayment(ctx context.Context, payment *model.Payment) error
	GetPaymentByID(ctx context.Context, paymentID string) (*model.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error)
	GetPaymentForUpdate(ctx context.Context, paymentID string) (*model.Payment, error)
	GetPaymentsByOrder(ctx context.Context, orderNumber string) ([]model.Payment, error)
	SavePayment(ctx context.Context, payment *model.Payment) error
	IncrementRefundedAmount(ctx context.Context, paymentID string, amount decimal.Decimal) (bool, error)
	AppendStatusHistory(ctx context.Context, row *model.PaymentStatusHistory) error
	GetStatusHistory(ctx context.Context, paymentID string) ([]model.PaymentStatusHistory, error)
	CreateRefund(ctx context.Context, refund *model.Refund) error
	GetRefundsByPayment(ctx context.Context, paymentID string) ([]model.Refund, error)
	WithTx(tx *gorm.DB) IPaymentRepository
}

type PaymentRepo struct {
	db *DbDao
}

func NewPaymentRepo(db *DbDao) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (s *PaymentRepo) WithTx(tx *gorm.DB) IPaymentRepository {
	return &PaymentRepo{db: &DbDao{DB: tx}}
}

var _ IPaymentRepository = (*PaymentRepo)(nil)

// Create - 建立支付
func (s *PaymentRepo) CreatePayment(ctx context.Context, payment *model.Payment) error {
	return s.db.WithContext(ctx).Create(payment).Error
}

// Read - 依payment_id查詢
func (s *PaymentRepo) GetPaymentByID(ctx context.Context, paymentID string) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).Preload("PaymentMethod").First(&payment, "payment_id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Read - 依provider交易ID查詢，webhook對回 payment 用
func (s *PaymentRepo) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).Preload("PaymentMethod").First(&payment, "transaction_id = ?", transactionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Read - 加行鎖，支付的讀改寫必須序列化
func (s *PaymentRepo) GetPaymentForUpdate(ctx context.Context, paymentID string) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, "payment_id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *PaymentRepo) GetPaymentsByOrder(ctx context.Context, orderNumber string) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.db.WithContext(ctx).Preload("PaymentMethod").
		Where("order_number = ?", orderNumber).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// Update - 保存整筆支付
func (s *PaymentRepo) SavePayment(ctx context.Context, payment *model.Payment) error {
	return s.db.WithContext(ctx).Save(payment).Error
}

// Update - 條件式累加 refunded_amount
// WHERE 帶上限檢查，併發退款不可能超過 amount；回傳是否有套用
func (s *PaymentRepo) IncrementRefundedAmount(ctx context.Context, paymentID string, amount decimal.Decimal) (bool, error) {
	result := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("payment_id = ? AND refunded_amount + ? <= amount", paymentID, amount).
		Update("refunded_amount", gorm.Expr("refunded_amount + ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// 狀態歷程只增不改
func (s *PaymentRepo) AppendStatusHistory(ctx context.Context, row *model.PaymentStatusHistory) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *PaymentRepo) GetStatusHistory(ctx context.Context, paymentID string) ([]model.PaymentStatusHistory, error) {
	var rows []model.PaymentStatusHistory
	err := s.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("timestamp ASC").
		Find(&rows).Error
	return rows, err
}

func (s *PaymentRepo) CreateRefund(ctx context.Context, refund *model.Refund) error {
	return s.db.WithContext(ctx).Create(refund).Error
}

func (s *PaymentRepo) GetRefundsByPayment(ctx context.Context, paymentID string) ([]model.Refund, error) {
	var refunds []model.Refund
	err := s.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&refunds).Error
	return refunds, err
}
