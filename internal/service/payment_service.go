package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/infra/provider"
	"github.com/oapi-lab/canteen/internal/infra/repository/db"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotExist          = errors.New("payment is not exist")
	ErrPaymentNotPending        = errors.New("payment can only be initiated while pending")
	ErrAmountOutOfRange         = errors.New("amount is outside the payment method limits")
	ErrInvalidPaymentTransition = errors.New("invalid payment status transition")
	ErrNotRefundable            = errors.New("payment is not refundable")
	ErrRefundExceedsBalance     = errors.New("refund amount exceeds refundable balance")
	ErrInvalidRefundAmount      = errors.New("refund amount must be positive")
	ErrOrderAlreadyPaid         = errors.New("order is already paid")
	ErrMissingTransactionID     = errors.New("payment has no provider transaction id")
)

// 支付狀態機
// PENDING -> PROCESSING -> {COMPLETED, FAILED, CANCELLED, EXPIRED}
// PENDING 也可直接收斂到終態（現金、provider 立即拒絕、逾時掃描）
// COMPLETED -> REFUNDED 只在全額退款時發生
var paymentTransitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentStatusPending: {
		model.PaymentStatusProcessing,
		model.PaymentStatusCompleted,
		model.PaymentStatusFailed,
		model.PaymentStatusCancelled,
		model.PaymentStatusExpired,
	},
	model.PaymentStatusProcessing: {
		model.PaymentStatusCompleted,
		model.PaymentStatusFailed,
		model.PaymentStatusCancelled,
		model.PaymentStatusExpired,
	},
	model.PaymentStatusCompleted: {
		model.PaymentStatusRefunded,
	},
}

func isValidPaymentTransition(from, to model.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type IPaymentEventPublisher interface {
	PublishPaymentSuccess(ctx context.Context, payment *model.Payment) error
	PublishPaymentFailed(ctx context.Context, payment *model.Payment, reason string) error
	PublishOrderPaid(ctx context.Context, orderNumber, paymentID string) error
}

type CreatePaymentRequest struct {
	OrderNumber string
	// 二擇一：指定 method id 或 provider 代碼（取該 provider 啟用中的方式)
	PaymentMethodID uint
	Provider        model.ProviderTag
	CustomerPhone   string
	CustomerEmail   string
	Description     string
}

type IPaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest, actor *model.Actor) (*model.Payment, error)
	InitiatePayment(ctx context.Context, paymentID string) (*model.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*model.Payment, error)
	GetPaymentsByOrder(ctx context.Context, orderNumber string) ([]model.Payment, error)
	GetStatusHistory(ctx context.Context, paymentID string) ([]model.PaymentStatusHistory, error)
	CheckStatus(ctx context.Context, paymentID string) (*model.Payment, error)
	HandleWebhook(ctx context.Context, tag model.ProviderTag, payload []byte) (*model.Payment, error)
	CompleteManual(ctx context.Context, paymentID string, actor *model.Actor) (*model.Payment, error)
	CancelPayment(ctx context.Context, paymentID string, actor *model.Actor) (*model.Payment, error)
	InitiateRefund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string, actor *model.Actor) (*model.Refund, error)
	GetRefunds(ctx context.Context, paymentID string) ([]model.Refund, error)
}

type PaymentService struct {
	dao           txRunner
	paymentRepo   db.IPaymentRepository
	methodRepo    db.IPaymentMethodRepository
	orderService  IOrderService
	publisher     IPaymentEventPublisher
	paymentExpiry time.Duration
	logger        zerolog.Logger
}

func NewPaymentService(dao txRunner, paymentRepo db.IPaymentRepository, methodRepo db.IPaymentMethodRepository, orderService IOrderService, publisher IPaymentEventPublisher, paymentExpiry time.Duration, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		dao:           dao,
		paymentRepo:   paymentRepo,
		methodRepo:    methodRepo,
		orderService:  orderService,
		publisher:     publisher,
		paymentExpiry: paymentExpiry,
		logger:        logger,
	}
}

var _ IPaymentService = (*PaymentService)(nil)

// CreatePayment 建立支付
// 手續費依當下方式費率計算後凍結在 fees/total_amount
func (p *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest, actor *model.Actor) (*model.Payment, error) {
	order, err := p.orderService.GetOrder(ctx, req.OrderNumber)
	if err != nil {
		return nil, err
	}
	if actor == nil || (actor.ID != order.CustomerID && !actor.Can(model.CapManageOrders)) {
		return nil, ErrForbidden
	}
	if order.IsPaid {
		return nil, ErrOrderAlreadyPaid
	}
	if order.Status == model.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentTransition, order.Status)
	}

	var method *model.PaymentMethod
	if req.PaymentMethodID != 0 {
		method, err = p.methodRepo.GetMethodByID(ctx, req.PaymentMethodID)
	} else {
		method, err = p.methodRepo.GetActiveMethodByProvider(ctx, req.Provider)
	}
	if err != nil {
		return nil, err
	}
	if !method.IsActive {
		return nil, db.ErrPaymentMethodNotFound
	}

	amount := order.TotalAmount
	if !method.IsAmountValid(amount) {
		return nil, ErrAmountOutOfRange
	}

	fees := method.CalculateFees(amount)
	expiresAt := time.Now().Add(p.paymentExpiry)

	payment := &model.Payment{
		PaymentID:       uuid.NewString(),
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		PaymentMethodID: method.ID,
		Amount:          amount,
		Fees:            fees,
		TotalAmount:     amount.Add(fees),
		Currency:        "XAF",
		Status:          model.PaymentStatusPending,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		Description:     req.Description,
		ExpiresAt:       &expiresAt,
	}

	if err := p.paymentRepo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("payment_id", payment.PaymentID).
		Str("order_number", payment.OrderNumber).
		Str("provider", string(method.Provider)).
		Str("total_amount", payment.TotalAmount.String()).
		Msg("payment created")

	payment.PaymentMethod = method
	return payment, nil
}

func (p *PaymentService) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := p.paymentRepo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotExist
	}
	return payment, nil
}

func (p *PaymentService) GetPaymentsByOrder(ctx context.Context, orderNumber string) ([]model.Payment, error) {
	return p.paymentRepo.GetPaymentsByOrder(ctx, orderNumber)
}

func (p *PaymentService) GetStatusHistory(ctx context.Context, paymentID string) ([]model.PaymentStatusHistory, error) {
	return p.paymentRepo.GetStatusHistory(ctx, paymentID)
}

// providerFor 解析付款方式對應的遠端 provider，CASH/CARD 回 nil
func (p *PaymentService) providerFor(ctx context.Context, payment *model.Payment) (provider.MomoProvider, error) {
	method := payment.PaymentMethod
	if method == nil {
		var err error
		method, err = p.methodRepo.GetMethodByID(ctx, payment.PaymentMethodID)
		if err != nil {
			return nil, err
		}
	}
	return provider.Get(method.Provider), nil
}

// InitiatePayment 向 provider 發起收款
// provider 呼叫不持有資料庫鎖；網路失敗不改狀態，可重試
// provider 明確拒絕才收斂到 FAILED
func (p *PaymentService) InitiatePayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := p.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentStatusPending {
		return nil, ErrPaymentNotPending
	}
	if expired, err := p.expireIfOverdue(ctx, payment); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrPaymentNotPending
	}

	prov, err := p.providerFor(ctx, payment)
	if err != nil {
		return nil, err
	}
	if prov == nil {
		// CASH/CARD 走人工完成，不需要 provider
		return payment, nil
	}

	result, err := prov.InitiatePayment(ctx, provider.InitiationRequest{
		PaymentID:     payment.PaymentID,
		OrderNumber:   payment.OrderNumber,
		Amount:        payment.TotalAmount,
		Currency:      payment.Currency,
		CustomerPhone: payment.CustomerPhone,
		CustomerEmail: payment.CustomerEmail,
		Description:   payment.Description,
	})
	if err != nil {
		if errors.Is(err, provider.ErrProviderRejected) {
			reason := "provider rejected payment initiation"
			raw := ""
			var rejection *provider.RejectionError
			if errors.As(err, &rejection) {
				if rejection.Reason != "" {
					reason = rejection.Reason
				}
				raw = rejection.Raw
			}
			if _, applyErr := p.applyStatus(ctx, payment.PaymentID, model.PaymentStatusFailed, reason, raw, "initiation rejected"); applyErr != nil {
				return nil, applyErr
			}
		}
		return nil, err
	}

	updated, err := p.transit(ctx, payment.PaymentID, model.PaymentStatusProcessing, func(row *model.Payment) {
		row.TransactionID = result.TransactionID
		row.ProviderData = result.RawRequest
		row.ProviderResponse = result.RawResponse
	}, result.RawResponse, "payment initiated with provider")
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("payment_id", paymentID).
		Str("transaction_id", result.TransactionID).
		Str("payment_url", result.PaymentURL).
		Msg("payment initiated")
	return updated, nil
}

// CheckStatus 主動向 provider 對帳
// 終態直接回傳不打 provider；重複輪詢同一結果不會重複記歷程
func (p *PaymentService) CheckStatus(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := p.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() || payment.Status == model.PaymentStatusCompleted {
		return payment, nil
	}
	if expired, err := p.expireIfOverdue(ctx, payment); err != nil {
		return nil, err
	} else if expired {
		return p.GetPayment(ctx, paymentID)
	}

	prov, err := p.providerFor(ctx, payment)
	if err != nil {
		return nil, err
	}
	if prov == nil {
		return payment, nil
	}
	if payment.TransactionID == "" {
		return nil, ErrMissingTransactionID
	}

	result, err := prov.CheckStatus(ctx, payment.TransactionID)
	if err != nil {
		// 網路問題不動狀態，下次輪詢再說
		return nil, err
	}

	return p.applyStatus(ctx, payment.PaymentID, result.Status, result.FailureReason, result.RawResponse, "status check")
}

// HandleWebhook provider 回呼
// 與輪詢共用收斂邏輯，重送同一事件是冪等的
func (p *PaymentService) HandleWebhook(ctx context.Context, tag model.ProviderTag, payload []byte) (*model.Payment, error) {
	prov := provider.Get(tag)
	if prov == nil {
		return nil, provider.ErrUnknownProvider
	}

	result, err := prov.ParseWebhook(payload)
	if err != nil {
		return nil, err
	}

	var payment *model.Payment
	if result.PaymentID != "" {
		payment, err = p.paymentRepo.GetPaymentByID(ctx, result.PaymentID)
	} else if result.TransactionID != "" {
		payment, err = p.paymentRepo.GetPaymentByTransactionID(ctx, result.TransactionID)
	}
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotExist
	}

	return p.applyStatus(ctx, payment.PaymentID, result.Status, result.FailureReason, result.RawPayload, "webhook")
}

// CompleteManual 櫃檯收現／刷卡由員工手動入帳
func (p *PaymentService) CompleteManual(ctx context.Context, paymentID string, actor *model.Actor) (*model.Payment, error) {
	if !actor.Can(model.CapManageOrders) {
		return nil, ErrForbidden
	}
	return p.applyStatus(ctx, paymentID, model.PaymentStatusCompleted, "", "", fmt.Sprintf("manually completed by staff %d", actor.ID))
}

// CancelPayment 客戶或員工取消尚未收斂的支付
func (p *PaymentService) CancelPayment(ctx context.Context, paymentID string, actor *model.Actor) (*model.Payment, error) {
	payment, err := p.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if actor == nil || (actor.ID != payment.CustomerID && !actor.Can(model.CapManageOrders)) {
		return nil, ErrForbidden
	}
	return p.applyStatus(ctx, paymentID, model.PaymentStatusCancelled, "", "", "cancelled by user")
}

// InitiateRefund 退款
// refunded_amount 用條件式累加防併發超退；全額退完支付轉 REFUNDED 並鏡射到訂單
func (p *PaymentService) InitiateRefund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string, actor *model.Actor) (*model.Refund, error) {
	if !actor.Can(model.CapManageOrders) {
		return nil, ErrForbidden
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidRefundAmount
	}

	var refund *model.Refund
	var fullyRefunded bool
	var orderNumber string
	err := p.dao.Transaction(func(tx *gorm.DB) error {
		repo := p.paymentRepo.WithTx(tx)
		payment, err := repo.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return ErrPaymentNotExist
		}
		if !payment.CanBeRefunded() {
			return ErrNotRefundable
		}
		if amount.GreaterThan(payment.RefundableAmount()) {
			return ErrRefundExceedsBalance
		}

		applied, err := repo.IncrementRefundedAmount(ctx, paymentID, amount)
		if err != nil {
			return err
		}
		if !applied {
			return ErrRefundExceedsBalance
		}

		now := time.Now()
		refund = &model.Refund{
			RefundID:    uuid.NewString(),
			PaymentID:   paymentID,
			Amount:      amount,
			Status:      model.RefundStatusCompleted,
			Reason:      reason,
			ProcessedBy: &actor.ID,
			ProcessedAt: &now,
		}
		if err := repo.CreateRefund(ctx, refund); err != nil {
			return err
		}

		payment.RefundedAmount = payment.RefundedAmount.Add(amount)
		payment.RefundReason = reason
		payment.RefundedAt = &now
		payment.RefundedBy = &actor.ID
		orderNumber = payment.OrderNumber

		if payment.RefundedAmount.Equal(payment.Amount) {
			fullyRefunded = true
			previous := payment.Status
			payment.Status = model.PaymentStatusRefunded
			if err := repo.AppendStatusHistory(ctx, &model.PaymentStatusHistory{
				PaymentID:      paymentID,
				PreviousStatus: previous,
				NewStatus:      model.PaymentStatusRefunded,
				Notes:          "fully refunded",
			}); err != nil {
				return err
			}
		}

		// 行鎖還握著，條件式累加後整筆保存不會有併發寫
		return repo.SavePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("payment_id", paymentID).
		Str("refund_id", refund.RefundID).
		Str("amount", amount.String()).
		Bool("fully_refunded", fullyRefunded).
		Msg("refund processed")

	if fullyRefunded {
		if err := p.orderService.MarkRefunded(ctx, orderNumber, actor); err != nil {
			p.logger.Error().Err(err).
				Str("order_number", orderNumber).
				Msg("failed to mirror refund onto order")
		}
	}
	return refund, nil
}

func (p *PaymentService) GetRefunds(ctx context.Context, paymentID string) ([]model.Refund, error) {
	return p.paymentRepo.GetRefundsByPayment(ctx, paymentID)
}

// applyStatus 收斂到 provider 回報的狀態
// 先比對再寫：同狀態回報是 no-op，終態不被覆寫，webhook 重送與輪詢競態都安全
func (p *PaymentService) applyStatus(ctx context.Context, paymentID string, newStatus model.PaymentStatus, failureReason, rawResponse, note string) (*model.Payment, error) {
	return p.transit(ctx, paymentID, newStatus, func(row *model.Payment) {
		if failureReason != "" {
			row.FailureReason = failureReason
		}
		if rawResponse != "" {
			row.ProviderResponse = rawResponse
		}
	}, rawResponse, note)
}

func (p *PaymentService) transit(ctx context.Context, paymentID string, newStatus model.PaymentStatus, mutate func(*model.Payment), rawResponse, note string) (*model.Payment, error) {
	var updated *model.Payment
	var changed bool
	var previous model.PaymentStatus
	err := p.dao.Transaction(func(tx *gorm.DB) error {
		repo := p.paymentRepo.WithTx(tx)
		payment, err := repo.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return ErrPaymentNotExist
		}

		if payment.Status == newStatus {
			updated = payment
			return nil
		}
		if payment.Status.IsTerminal() {
			// 已收斂，晚到的回報不再覆寫
			updated = payment
			return nil
		}
		if !isValidPaymentTransition(payment.Status, newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidPaymentTransition, payment.Status, newStatus)
		}

		previous = payment.Status
		payment.Status = newStatus
		if mutate != nil {
			mutate(payment)
		}
		if newStatus == model.PaymentStatusCompleted && payment.ProcessedAt == nil {
			now := time.Now()
			payment.ProcessedAt = &now
		}

		if err := repo.SavePayment(ctx, payment); err != nil {
			return err
		}
		if err := repo.AppendStatusHistory(ctx, &model.PaymentStatusHistory{
			PaymentID:        paymentID,
			PreviousStatus:   previous,
			NewStatus:        newStatus,
			ProviderResponse: rawResponse,
			Notes:            note,
		}); err != nil {
			return err
		}
		changed = true
		updated = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		p.logger.Info().
			Str("payment_id", paymentID).
			Str("from", string(previous)).
			Str("to", string(newStatus)).
			Str("note", note).
			Msg("payment status updated")
		p.emitTransitionEvents(ctx, updated)
	}
	return updated, nil
}

// 事件在交易提交後發送，消費端需容忍 at-least-once
func (p *PaymentService) emitTransitionEvents(ctx context.Context, payment *model.Payment) {
	if p.publisher == nil {
		return
	}
	switch payment.Status {
	case model.PaymentStatusCompleted:
		if err := p.publisher.PublishPaymentSuccess(ctx, payment); err != nil {
			p.logger.Error().Err(err).Str("payment_id", payment.PaymentID).Msg("failed to publish payment success event")
		}
		if err := p.publisher.PublishOrderPaid(ctx, payment.OrderNumber, payment.PaymentID); err != nil {
			p.logger.Error().Err(err).Str("payment_id", payment.PaymentID).Msg("failed to publish order paid event")
		}
	case model.PaymentStatusFailed, model.PaymentStatusExpired:
		if err := p.publisher.PublishPaymentFailed(ctx, payment, payment.FailureReason); err != nil {
			p.logger.Error().Err(err).Str("payment_id", payment.PaymentID).Msg("failed to publish payment failed event")
		}
	}
}

// 逾時的支付在下一次觸碰時收斂到 EXPIRED
func (p *PaymentService) expireIfOverdue(ctx context.Context, payment *model.Payment) (bool, error) {
	if payment.ExpiresAt == nil || time.Now().Before(*payment.ExpiresAt) {
		return false, nil
	}
	if _, err := p.applyStatus(ctx, payment.PaymentID, model.PaymentStatusExpired, "payment window expired", "", "expired"); err != nil {
		return false, err
	}
	return true, nil
}
