package service

import (
	"context"
	"testing"
	"time"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/infra/provider"
	"github.com/oapi-lab/canteen/internal/infra/repository/db"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type fakePaymentRepo struct {
	payments map[string]*model.Payment
	refunds  []model.Refund
	history  []model.PaymentStatusHistory
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*model.Payment)}
}

func (f *fakePaymentRepo) CreatePayment(ctx context.Context, payment *model.Payment) error {
	cp := *payment
	f.payments[payment.PaymentID] = &cp
	return nil
}

// 查詢回傳副本，模擬真實 repo 每次都是新的 scan
func (f *fakePaymentRepo) GetPaymentByID(ctx context.Context, paymentID string) (*model.Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentRepo) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	for _, p := range f.payments {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentRepo) GetPaymentForUpdate(ctx context.Context, paymentID string) (*model.Payment, error) {
	return f.GetPaymentByID(ctx, paymentID)
}

func (f *fakePaymentRepo) GetPaymentsByOrder(ctx context.Context, orderNumber string) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range f.payments {
		if p.OrderNumber == orderNumber {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) SavePayment(ctx context.Context, payment *model.Payment) error {
	f.payments[payment.PaymentID] = payment
	return nil
}

func (f *fakePaymentRepo) IncrementRefundedAmount(ctx context.Context, paymentID string, amount decimal.Decimal) (bool, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return false, nil
	}
	if p.RefundedAmount.Add(amount).GreaterThan(p.Amount) {
		return false, nil
	}
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	return true, nil
}

func (f *fakePaymentRepo) AppendStatusHistory(ctx context.Context, row *model.PaymentStatusHistory) error {
	f.history = append(f.history, *row)
	return nil
}

func (f *fakePaymentRepo) GetStatusHistory(ctx context.Context, paymentID string) ([]model.PaymentStatusHistory, error) {
	var out []model.PaymentStatusHistory
	for _, h := range f.history {
		if h.PaymentID == paymentID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) CreateRefund(ctx context.Context, refund *model.Refund) error {
	f.refunds = append(f.refunds, *refund)
	return nil
}

func (f *fakePaymentRepo) GetRefundsByPayment(ctx context.Context, paymentID string) ([]model.Refund, error) {
	var out []model.Refund
	for _, r := range f.refunds {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) WithTx(tx *gorm.DB) db.IPaymentRepository {
	return f
}

type fakeMethodRepo struct {
	methods map[uint]*model.PaymentMethod
}

func (f *fakeMethodRepo) GetActiveMethodByProvider(ctx context.Context, p model.ProviderTag) (*model.PaymentMethod, error) {
	for _, m := range f.methods {
		if m.Provider == p && m.IsActive {
			return m, nil
		}
	}
	return nil, db.ErrPaymentMethodNotFound
}

func (f *fakeMethodRepo) GetMethodByID(ctx context.Context, id uint) (*model.PaymentMethod, error) {
	if m, ok := f.methods[id]; ok {
		return m, nil
	}
	return nil, db.ErrPaymentMethodNotFound
}

func (f *fakeMethodRepo) GetActiveMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	return nil, nil
}

// 最小可用的訂單服務替身，只支援 GetOrder 和 MarkRefunded
type fakeOrderService struct {
	IOrderService
	orders         map[string]*model.Order
	refundedOrders []string
}

func (f *fakeOrderService) GetOrder(ctx context.Context, orderNumber string) (*model.Order, error) {
	if o, ok := f.orders[orderNumber]; ok {
		return o, nil
	}
	return nil, ErrOrderNotExist
}

func (f *fakeOrderService) MarkRefunded(ctx context.Context, orderNumber string, actor *model.Actor) error {
	f.refundedOrders = append(f.refundedOrders, orderNumber)
	return nil
}

type fakePaymentPublisher struct {
	successes []string
	failures  []string
	paid      []string
}

func (f *fakePaymentPublisher) PublishPaymentSuccess(ctx context.Context, payment *model.Payment) error {
	f.successes = append(f.successes, payment.PaymentID)
	return nil
}

func (f *fakePaymentPublisher) PublishPaymentFailed(ctx context.Context, payment *model.Payment, reason string) error {
	f.failures = append(f.failures, payment.PaymentID)
	return nil
}

func (f *fakePaymentPublisher) PublishOrderPaid(ctx context.Context, orderNumber, paymentID string) error {
	f.paid = append(f.paid, orderNumber)
	return nil
}

// 協定替身，照腳本回應
type stubProvider struct {
	tag          model.ProviderTag
	initErr      error
	statusResult *provider.StatusResult
	statusErr    error
	webhook      *provider.WebhookResult
}

func (s *stubProvider) Name() model.ProviderTag { return s.tag }

func (s *stubProvider) InitiatePayment(ctx context.Context, req provider.InitiationRequest) (*provider.InitiationResult, error) {
	if s.initErr != nil {
		return nil, s.initErr
	}
	return &provider.InitiationResult{TransactionID: "txn-1", RawRequest: "{}", RawResponse: "{}"}, nil
}

func (s *stubProvider) CheckStatus(ctx context.Context, transactionID string) (*provider.StatusResult, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.statusResult, nil
}

func (s *stubProvider) ParseWebhook(payload []byte) (*provider.WebhookResult, error) {
	return s.webhook, nil
}

type PaymentServiceTestSuite struct {
	suite.Suite
	repo      *fakePaymentRepo
	orders    *fakeOrderService
	publisher *fakePaymentPublisher
	stub      *stubProvider
	svc       *PaymentService
	staff     *model.Actor
	customer  *model.Actor
}

func (s *PaymentServiceTestSuite) SetupTest() {
	s.repo = newFakePaymentRepo()
	s.publisher = &fakePaymentPublisher{}
	s.staff = model.NewActor(99, model.CapManageOrders)
	s.customer = model.NewActor(7, model.CapPlaceOrder)

	s.orders = &fakeOrderService{orders: map[string]*model.Order{
		"20260831-AB12": {
			OrderNumber: "20260831-AB12",
			CustomerID:  s.customer.ID,
			Status:      model.OrderStatusPending,
			TotalAmount: decimal.NewFromInt(10000),
		},
	}}

	methodRepo := &fakeMethodRepo{methods: map[uint]*model.PaymentMethod{
		1: {
			ID:             1,
			Name:           "Orange Money",
			Provider:       model.ProviderOrange,
			IsActive:       true,
			MinimumAmount:  decimal.NewFromInt(100),
			MaximumAmount:  decimal.NewFromInt(500000),
			TransactionFee: decimal.NewFromFloat(2.5),
			FixedFee:       decimal.NewFromInt(100),
		},
		2: {
			ID:            2,
			Name:          "Cash",
			Provider:      model.ProviderCash,
			IsActive:      true,
			MinimumAmount: decimal.NewFromInt(100),
			MaximumAmount: decimal.NewFromInt(500000),
		},
	}}

	s.stub = &stubProvider{tag: model.ProviderOrange}
	provider.Register(s.stub)

	s.svc = NewPaymentService(fakeTxRunner{}, s.repo, methodRepo, s.orders, s.publisher, 30*time.Minute, zerolog.Nop())
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceTestSuite))
}

func (s *PaymentServiceTestSuite) createPayment() *model.Payment {
	payment, err := s.svc.CreatePayment(context.Background(), CreatePaymentRequest{
		OrderNumber:     "20260831-AB12",
		PaymentMethodID: 1,
		CustomerPhone:   "+237650000001",
	}, s.customer)
	require.NoError(s.T(), err)
	return payment
}

func (s *PaymentServiceTestSuite) seedPayment(status model.PaymentStatus, amount int64) *model.Payment {
	payment := &model.Payment{
		PaymentID:      "pay-1",
		TransactionID:  "txn-1",
		OrderNumber:    "20260831-AB12",
		CustomerID:     s.customer.ID,
		Amount:         decimal.NewFromInt(amount),
		TotalAmount:    decimal.NewFromInt(amount),
		Currency:       "XAF",
		Status:         status,
		RefundedAmount: decimal.Zero,
		PaymentMethod:  &model.PaymentMethod{Provider: model.ProviderOrange},
	}
	s.repo.payments[payment.PaymentID] = payment
	return payment
}

func (s *PaymentServiceTestSuite) TestCreatePaymentFreezesFees() {
	payment := s.createPayment()

	require.True(s.T(), decimal.NewFromInt(10000).Equal(payment.Amount))
	require.True(s.T(), decimal.NewFromInt(350).Equal(payment.Fees), "手續費 = 10000*2.5% + 100")
	require.True(s.T(), decimal.NewFromInt(10350).Equal(payment.TotalAmount))
	require.Equal(s.T(), model.PaymentStatusPending, payment.Status)
	require.NotNil(s.T(), payment.ExpiresAt)
	require.Equal(s.T(), "XAF", payment.Currency)
}

func (s *PaymentServiceTestSuite) TestCreatePaymentByProviderTag() {
	payment, err := s.svc.CreatePayment(context.Background(), CreatePaymentRequest{
		OrderNumber:   "20260831-AB12",
		Provider:      model.ProviderOrange,
		CustomerPhone: "+237650000001",
	}, s.customer)
	require.NoError(s.T(), err)
	require.Equal(s.T(), uint(1), payment.PaymentMethodID)

	_, err = s.svc.CreatePayment(context.Background(), CreatePaymentRequest{
		OrderNumber:   "20260831-AB12",
		Provider:      model.ProviderTag("WAVE"),
		CustomerPhone: "+237650000001",
	}, s.customer)
	require.ErrorIs(s.T(), err, db.ErrPaymentMethodNotFound)
}

func (s *PaymentServiceTestSuite) TestCreatePaymentOnPaidOrder() {
	s.orders.orders["20260831-AB12"].IsPaid = true

	_, err := s.svc.CreatePayment(context.Background(), CreatePaymentRequest{
		OrderNumber:     "20260831-AB12",
		PaymentMethodID: 1,
		CustomerPhone:   "+237650000001",
	}, s.customer)
	require.ErrorIs(s.T(), err, ErrOrderAlreadyPaid)
}

func (s *PaymentServiceTestSuite) TestCreatePaymentAmountOutOfRange() {
	s.orders.orders["20260831-AB12"].TotalAmount = decimal.NewFromInt(50)

	_, err := s.svc.CreatePayment(context.Background(), CreatePaymentRequest{
		OrderNumber:     "20260831-AB12",
		PaymentMethodID: 1,
		CustomerPhone:   "+237650000001",
	}, s.customer)
	require.ErrorIs(s.T(), err, ErrAmountOutOfRange)
}

func (s *PaymentServiceTestSuite) TestStrangerCannotCreatePayment() {
	stranger := model.NewActor(1234, model.CapPlaceOrder)
	_, err := s.svc.CreatePayment(context.Background(), CreatePaymentRequest{
		OrderNumber:     "20260831-AB12",
		PaymentMethodID: 1,
		CustomerPhone:   "+237650000001",
	}, stranger)
	require.ErrorIs(s.T(), err, ErrForbidden)
}

func (s *PaymentServiceTestSuite) TestInitiatePaymentStoresTransaction() {
	payment := s.createPayment()

	updated, err := s.svc.InitiatePayment(context.Background(), payment.PaymentID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), model.PaymentStatusProcessing, updated.Status)
	require.Equal(s.T(), "txn-1", updated.TransactionID)
	require.NotEmpty(s.T(), updated.ProviderData)
	require.NotEmpty(s.T(), updated.ProviderResponse)

	require.Len(s.T(), s.repo.history, 1)
	require.Equal(s.T(), model.PaymentStatusPending, s.repo.history[0].PreviousStatus)
	require.Equal(s.T(), model.PaymentStatusProcessing, s.repo.history[0].NewStatus)
}

// provider 明確拒絕是唯一能在發起階段改變狀態的失敗
func (s *PaymentServiceTestSuite) TestInitiationRejectedConvergesToFailed() {
	payment := s.createPayment()
	s.stub.initErr = &provider.RejectionError{Reason: "insufficient funds", Raw: `{"code":"4001"}`}

	_, err := s.svc.InitiatePayment(context.Background(), payment.PaymentID)
	require.ErrorIs(s.T(), err, provider.ErrProviderRejected)

	stored := s.repo.payments[payment.PaymentID]
	require.Equal(s.T(), model.PaymentStatusFailed, stored.Status)
	require.Equal(s.T(), "insufficient funds", stored.FailureReason)

	require.Len(s.T(), s.repo.history, 1)
	require.Equal(s.T(), model.PaymentStatusPending, s.repo.history[0].PreviousStatus)
	require.Equal(s.T(), model.PaymentStatusFailed, s.repo.history[0].NewStatus)
	require.Equal(s.T(), `{"code":"4001"}`, s.repo.history[0].ProviderResponse, "原始拒絕回應要進歷程")
	require.Equal(s.T(), []string{payment.PaymentID}, s.publisher.failures)
}

// 發起階段的網路失敗可重試，狀態留在 PENDING
func (s *PaymentServiceTestSuite) TestInitiationTransportErrorLeavesPending() {
	payment := s.createPayment()
	s.stub.initErr = provider.ErrProviderUnavailable

	_, err := s.svc.InitiatePayment(context.Background(), payment.PaymentID)
	require.ErrorIs(s.T(), err, provider.ErrProviderUnavailable)
	require.Equal(s.T(), model.PaymentStatusPending, s.repo.payments[payment.PaymentID].Status)
	require.Empty(s.T(), s.repo.history)
	require.Empty(s.T(), s.publisher.failures)
}

func (s *PaymentServiceTestSuite) TestCheckStatusCompletesPayment() {
	payment := s.seedPayment(model.PaymentStatusProcessing, 10000)
	s.stub.statusResult = &provider.StatusResult{Status: model.PaymentStatusCompleted, RawResponse: `{"status":"SUCCESS"}`}

	updated, err := s.svc.CheckStatus(context.Background(), payment.PaymentID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), model.PaymentStatusCompleted, updated.Status)
	require.NotNil(s.T(), updated.ProcessedAt, "完成時間應寫入")
	require.Len(s.T(), s.repo.history, 1)
	require.Equal(s.T(), []string{payment.PaymentID}, s.publisher.successes)
	require.Equal(s.T(), []string{"20260831-AB12"}, s.publisher.paid)
}

// 重複輪詢同一結果必須是冪等的
func (s *PaymentServiceTestSuite) TestCheckStatusIdempotent() {
	payment := s.seedPayment(model.PaymentStatusProcessing, 10000)
	s.stub.statusResult = &provider.StatusResult{Status: model.PaymentStatusCompleted}
	ctx := context.Background()

	_, err := s.svc.CheckStatus(ctx, payment.PaymentID)
	require.NoError(s.T(), err)
	_, err = s.svc.CheckStatus(ctx, payment.PaymentID)
	require.NoError(s.T(), err)

	require.Len(s.T(), s.repo.history, 1, "重複輪詢不得重複記歷程")
	require.Len(s.T(), s.publisher.successes, 1, "事件只發一次")
}

// 網路失敗不得改變支付狀態
func (s *PaymentServiceTestSuite) TestCheckStatusTransportErrorLeavesState() {
	payment := s.seedPayment(model.PaymentStatusProcessing, 10000)
	s.stub.statusErr = provider.ErrProviderTimeout

	_, err := s.svc.CheckStatus(context.Background(), payment.PaymentID)
	require.ErrorIs(s.T(), err, provider.ErrProviderTimeout)
	require.Equal(s.T(), model.PaymentStatusProcessing, s.repo.payments[payment.PaymentID].Status)
	require.Empty(s.T(), s.repo.history)
}

// 晚到的 webhook 不能把終態翻回來
func (s *PaymentServiceTestSuite) TestLateWebhookDoesNotOverwriteTerminal() {
	payment := s.seedPayment(model.PaymentStatusFailed, 10000)
	s.stub.webhook = &provider.WebhookResult{PaymentID: payment.PaymentID, Status: model.PaymentStatusCompleted}

	updated, err := s.svc.HandleWebhook(context.Background(), model.ProviderOrange, []byte(`{}`))
	require.NoError(s.T(), err)
	require.Equal(s.T(), model.PaymentStatusFailed, updated.Status, "FAILED 是終態")
	require.Empty(s.T(), s.repo.history)
	require.Empty(s.T(), s.publisher.successes)
}

func (s *PaymentServiceTestSuite) TestWebhookFailure() {
	payment := s.seedPayment(model.PaymentStatusProcessing, 10000)
	s.stub.webhook = &provider.WebhookResult{
		PaymentID:     payment.PaymentID,
		Status:        model.PaymentStatusFailed,
		FailureReason: "INSUFFICIENT_FUNDS",
	}

	updated, err := s.svc.HandleWebhook(context.Background(), model.ProviderOrange, []byte(`{}`))
	require.NoError(s.T(), err)
	require.Equal(s.T(), model.PaymentStatusFailed, updated.Status)
	require.Equal(s.T(), "INSUFFICIENT_FUNDS", updated.FailureReason)
	require.Equal(s.T(), []string{payment.PaymentID}, s.publisher.failures)
}

func (s *PaymentServiceTestSuite) TestPartialThenExcessRefund() {
	payment := s.seedPayment(model.PaymentStatusCompleted, 5000)
	ctx := context.Background()

	refund, err := s.svc.InitiateRefund(ctx, payment.PaymentID, decimal.NewFromInt(3000), "damaged item", s.staff)
	require.NoError(s.T(), err)
	require.True(s.T(), decimal.NewFromInt(3000).Equal(refund.Amount))
	require.Equal(s.T(), model.PaymentStatusCompleted, s.repo.payments[payment.PaymentID].Status, "部分退款不改狀態")

	_, err = s.svc.InitiateRefund(ctx, payment.PaymentID, decimal.NewFromInt(3000), "again", s.staff)
	require.ErrorIs(s.T(), err, ErrRefundExceedsBalance, "累計退款不得超過原金額")
	require.True(s.T(), decimal.NewFromInt(3000).Equal(s.repo.payments[payment.PaymentID].RefundedAmount))
}

func (s *PaymentServiceTestSuite) TestFullRefundMirrorsOrder() {
	payment := s.seedPayment(model.PaymentStatusCompleted, 5000)

	_, err := s.svc.InitiateRefund(context.Background(), payment.PaymentID, decimal.NewFromInt(5000), "order cancelled", s.staff)
	require.NoError(s.T(), err)
	require.Equal(s.T(), model.PaymentStatusRefunded, s.repo.payments[payment.PaymentID].Status)
	require.Equal(s.T(), []string{"20260831-AB12"}, s.orders.refundedOrders, "全額退款要鏡射到訂單")
}

func (s *PaymentServiceTestSuite) TestRefundRequiresStaff() {
	payment := s.seedPayment(model.PaymentStatusCompleted, 5000)

	_, err := s.svc.InitiateRefund(context.Background(), payment.PaymentID, decimal.NewFromInt(1000), "nope", s.customer)
	require.ErrorIs(s.T(), err, ErrForbidden)
}

func (s *PaymentServiceTestSuite) TestRefundPendingPayment() {
	payment := s.seedPayment(model.PaymentStatusPending, 5000)

	_, err := s.svc.InitiateRefund(context.Background(), payment.PaymentID, decimal.NewFromInt(1000), "nope", s.staff)
	require.ErrorIs(s.T(), err, ErrNotRefundable)
}

func (s *PaymentServiceTestSuite) TestCompleteManualCashPayment() {
	payment := s.seedPayment(model.PaymentStatusPending, 5000)
	payment.PaymentMethod = &model.PaymentMethod{Provider: model.ProviderCash}

	updated, err := s.svc.CompleteManual(context.Background(), payment.PaymentID, s.staff)
	require.NoError(s.T(), err)
	require.Equal(s.T(), model.PaymentStatusCompleted, updated.Status)
	require.NotNil(s.T(), updated.ProcessedAt)
}

func (s *PaymentServiceTestSuite) TestCancelByOwner() {
	payment := s.seedPayment(model.PaymentStatusProcessing, 5000)

	updated, err := s.svc.CancelPayment(context.Background(), payment.PaymentID, s.customer)
	require.NoError(s.T(), err)
	require.Equal(s.T(), model.PaymentStatusCancelled, updated.Status)
}
