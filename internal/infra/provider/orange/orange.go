package orange

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oapi-lab/canteen/internal/config"
	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/infra/provider"
	"github.com/rs/zerolog"
)

// Orange Money web payment
// token -> transactionrequests -> 使用者跳轉 paymentUrl -> webhook/輪詢對帳
type Orange struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	merchantKey string
	siteURL     string
	client      *http.Client
	logger      zerolog.Logger
}

func New(cf *config.Config, client *http.Client, logger zerolog.Logger) *Orange {
	return &Orange{
		baseURL:     cf.OrangeBaseURL,
		apiKey:      cf.OrangeAPIKey,
		apiSecret:   cf.OrangeAPISecret,
		merchantKey: cf.OrangeMerchantKey,
		siteURL:     cf.SiteURL,
		client:      client,
		logger:      logger,
	}
}

var _ provider.MomoProvider = (*Orange)(nil)

func (o *Orange) Name() model.ProviderTag {
	return model.ProviderOrange
}

func (o *Orange) basicAuth() string {
	credentials := fmt.Sprintf("%s:%s", o.apiKey, o.apiSecret)
	return base64.StdEncoding.EncodeToString([]byte(credentials))
}

// getAccessToken 取存取令牌
// 失敗一律歸類為 unavailable/timeout，不能動到 payment 狀態
func (o *Orange) getAccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+o.basicAuth())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Error().Err(err).Msg("orange money token request failed")
		return "", provider.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		o.logger.Error().Int("status", resp.StatusCode).Msg("orange money token request failed")
		return "", fmt.Errorf("%w: token status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", provider.ErrProviderUnavailable, err)
	}
	return tokenResp.AccessToken, nil
}

type initiationPayload struct {
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	OrderID               string `json:"orderId"`
	CustomerMsisdn        string `json:"customerMsisdn"`
	CustomerEmail         string `json:"customerEmail,omitempty"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	Description           string `json:"description"`
	ReturnURL             string `json:"returnUrl"`
	CancelURL             string `json:"cancelUrl"`
	NotifURL              string `json:"notifUrl"`
}

type transactionResponse struct {
	TransactionID string `json:"transactionId"`
	PaymentURL    string `json:"paymentUrl"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

func (o *Orange) InitiatePayment(ctx context.Context, req provider.InitiationRequest) (*provider.InitiationResult, error) {
	accessToken, err := o.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := initiationPayload{
		Amount:                req.Amount.StringFixed(0),
		Currency:              req.Currency,
		OrderID:               req.OrderNumber,
		CustomerMsisdn:        req.CustomerPhone,
		CustomerEmail:         req.CustomerEmail,
		MerchantTransactionID: req.PaymentID,
		Description:           req.Description,
		ReturnURL:             o.siteURL + "/payments/success/",
		CancelURL:             o.siteURL + "/payments/cancel/",
		NotifURL:              o.siteURL + "/payments/webhook/orange",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/webpayment/v1/transactionrequests", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Callback-Url", payload.NotifURL)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		o.logger.Error().Err(err).Str("payment_id", req.PaymentID).Msg("orange money initiation failed")
		return nil, provider.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	// 4xx 是明確拒絕，5xx 視為暫時不可用
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: initiation status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, &provider.RejectionError{
			Reason: fmt.Sprintf("initiation rejected with status %d", resp.StatusCode),
			Raw:    string(raw),
		}
	}

	var result transactionResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode initiation response: %v", provider.ErrProviderUnavailable, err)
	}

	return &provider.InitiationResult{
		TransactionID: result.TransactionID,
		PaymentURL:    result.PaymentURL,
		RawRequest:    string(body),
		RawResponse:   string(raw),
		Message:       "Payment initiated with Orange Money",
	}, nil
}

func (o *Orange) CheckStatus(ctx context.Context, transactionID string) (*provider.StatusResult, error) {
	if transactionID == "" {
		return nil, provider.ErrNoTransactionID
	}

	accessToken, err := o.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		o.baseURL+"/webpayment/v1/transactionrequests/"+transactionID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		o.logger.Error().Err(err).Str("transaction_id", transactionID).Msg("orange money status check failed")
		return nil, provider.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status check status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode status response: %v", provider.ErrProviderUnavailable, err)
	}

	mapped, reason := MapRemoteStatus(result.Status, result.Message)
	return &provider.StatusResult{
		Status:        mapped,
		FailureReason: reason,
		RawResponse:   string(raw),
	}, nil
}

type webhookPayload struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Status                string `json:"status"`
	Message               string `json:"message"`
}

func (o *Orange) ParseWebhook(payload []byte) (*provider.WebhookResult, error) {
	var wh webhookPayload
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, fmt.Errorf("invalid orange webhook payload: %w", err)
	}
	if wh.MerchantTransactionID == "" && wh.TransactionID == "" {
		return nil, fmt.Errorf("orange webhook payload missing transaction reference")
	}

	mapped, reason := MapRemoteStatus(wh.Status, wh.Message)
	return &provider.WebhookResult{
		PaymentID:     wh.MerchantTransactionID,
		TransactionID: wh.TransactionID,
		Status:        mapped,
		FailureReason: reason,
		RawPayload:    string(payload),
	}, nil
}

// MapRemoteStatus Orange 狀態詞彙 -> 內部狀態
// SUCCESS -> COMPLETED, FAILED/DECLINED -> FAILED, CANCELLED -> CANCELLED,
// EXPIRED -> EXPIRED, PENDING/INITIATED -> PROCESSING
func MapRemoteStatus(remote, message string) (model.PaymentStatus, string) {
	switch strings.ToUpper(remote) {
	case "SUCCESS":
		return model.PaymentStatusCompleted, ""
	case "FAILED", "DECLINED":
		if message == "" {
			message = "Payment failed"
		}
		return model.PaymentStatusFailed, message
	case "CANCELLED":
		return model.PaymentStatusCancelled, ""
	case "EXPIRED":
		return model.PaymentStatusExpired, ""
	default:
		return model.PaymentStatusProcessing, ""
	}
}
