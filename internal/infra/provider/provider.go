package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/shopspring/decimal"
)

var (
	// ErrProviderUnavailable provider 還沒給出確定結果（網路/認證失敗），payment 狀態不可動
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderTimeout 呼叫逾時，同樣不可動狀態
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrProviderRejected provider 明確拒絕，這是唯一允許把 payment 轉 FAILED 的網路路徑
	ErrProviderRejected = errors.New("provider rejected payment")
	// ErrUnknownProvider 未註冊的 provider tag
	ErrUnknownProvider = errors.New("unknown payment provider")
	// ErrNoTransactionID 尚未取得 provider 交易ID，無法查詢
	ErrNoTransactionID = errors.New("no transaction id available")
)

// RejectionError 明確拒絕時帶回原由與原始回應
// Raw 要一路寫進 provider_response 與狀態歷程
type RejectionError struct {
	Reason string
	Raw    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrProviderRejected, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrProviderRejected }

type InitiationRequest struct {
	PaymentID     string
	OrderNumber   string
	Amount        decimal.Decimal // total_amount 含手續費
	Currency      string
	CustomerPhone string
	CustomerEmail string
	Description   string
}

type InitiationResult struct {
	TransactionID string
	PaymentURL    string // 需要跳轉時才有
	RawRequest    string // 送出的 payload JSON，存 provider_data
	RawResponse   string // provider 原始回應 JSON
	Message       string
}

type StatusResult struct {
	Status        model.PaymentStatus
	FailureReason string
	RawResponse   string
}

type WebhookResult struct {
	PaymentID     string // 商家側參考，對回 payment
	TransactionID string
	Status        model.PaymentStatus
	FailureReason string
	RawPayload    string
}

// MomoProvider 行動支付 provider 的共同能力
// 每個實作各自把遠端狀態詞彙映射到內部 PaymentStatus
type MomoProvider interface {
	Name() model.ProviderTag
	InitiatePayment(ctx context.Context, req InitiationRequest) (*InitiationResult, error)
	CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error)
	ParseWebhook(payload []byte) (*WebhookResult, error)
}

var providers map[model.ProviderTag]MomoProvider

// Register 註冊 provider 實作，啟動時由 cmd 呼叫
func Register(p MomoProvider) {
	if providers == nil {
		providers = make(map[model.ProviderTag]MomoProvider)
	}
	providers[p.Name()] = p
}

// Get 依 tag 取 provider，CASH/CARD 沒有遠端 provider 會回 nil
func Get(tag model.ProviderTag) MomoProvider {
	return providers[tag]
}

func AvailableProviders() []model.ProviderTag {
	tags := make([]model.ProviderTag, 0, len(providers))
	for tag := range providers {
		tags = append(tags, tag)
	}
	return tags
}

// ClassifyTransportError 把傳輸層錯誤歸類成 timeout / unavailable
// 兩者都代表「沒有確定答案」，呼叫端不得變更 payment 狀態
func ClassifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrProviderTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrProviderTimeout
	}
	return ErrProviderUnavailable
}
