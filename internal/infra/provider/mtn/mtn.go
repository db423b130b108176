package mtn

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oapi-lab/canteen/internal/config"
	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/infra/provider"
	"github.com/rs/zerolog"
)

// MTN MoMo collection
// requesttopay 是非同步的：202 受理後用 X-Reference-Id（即 payment_id）輪詢
type MTN struct {
	baseURL         string
	apiKey          string
	apiSecret       string
	subscriptionKey string
	targetEnv       string
	client          *http.Client
	logger          zerolog.Logger
}

func New(cf *config.Config, client *http.Client, logger zerolog.Logger) *MTN {
	targetEnv := cf.MTNTargetEnv
	if targetEnv == "" {
		targetEnv = "sandbox"
	}
	return &MTN{
		baseURL:         cf.MTNBaseURL,
		apiKey:          cf.MTNAPIKey,
		apiSecret:       cf.MTNAPISecret,
		subscriptionKey: cf.MTNSubscriptionKey,
		targetEnv:       targetEnv,
		client:          client,
		logger:          logger,
	}
}

var _ provider.MomoProvider = (*MTN)(nil)

func (m *MTN) Name() model.ProviderTag {
	return model.ProviderMTN
}

func (m *MTN) basicAuth() string {
	credentials := fmt.Sprintf("%s:%s", m.apiKey, m.apiSecret)
	return base64.StdEncoding.EncodeToString([]byte(credentials))
}

func (m *MTN) getAccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/collection/token/", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+m.basicAuth())
	req.Header.Set("Ocp-Apim-Subscription-Key", m.subscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Error().Err(err).Msg("mtn momo token request failed")
		return "", provider.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Error().Int("status", resp.StatusCode).Msg("mtn momo token request failed")
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

type requestToPayPayload struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        payer  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

type payer struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

func (m *MTN) InitiatePayment(ctx context.Context, req provider.InitiationRequest) (*provider.InitiationResult, error) {
	accessToken, err := m.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := requestToPayPayload{
		Amount:     req.Amount.StringFixed(0),
		Currency:   req.Currency,
		ExternalID: req.OrderNumber,
		Payer: payer{
			PartyIDType: "MSISDN",
			PartyID:     strings.ReplaceAll(req.CustomerPhone, "+", ""),
		},
		PayerMessage: req.Description,
		PayeeNote:    fmt.Sprintf("OAPI Canteen - Order #%s", req.OrderNumber),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/collection/v1_0/requesttopay", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("X-Reference-Id", req.PaymentID)
	httpReq.Header.Set("X-Target-Environment", m.targetEnv)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", m.subscriptionKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		m.logger.Error().Err(err).Str("payment_id", req.PaymentID).Msg("mtn momo initiation failed")
		return nil, provider.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	// MTN 受理回 202，交易ID就是送出的 reference
	switch {
	case resp.StatusCode == http.StatusAccepted:
		return &provider.InitiationResult{
			TransactionID: req.PaymentID,
			RawRequest:    string(body),
			RawResponse:   `{"status":"initiated"}`,
			Message:       "Payment initiated with MTN Mobile Money. Please complete on your phone.",
		}, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: initiation status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	default:
		return nil, &provider.RejectionError{
			Reason: fmt.Sprintf("initiation rejected with status %d", resp.StatusCode),
			Raw:    string(raw),
		}
	}
}

func (m *MTN) CheckStatus(ctx context.Context, transactionID string) (*provider.StatusResult, error) {
	if transactionID == "" {
		return nil, provider.ErrNoTransactionID
	}

	accessToken, err := m.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.baseURL+"/collection/v1_0/requesttopay/"+transactionID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("X-Target-Environment", m.targetEnv)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", m.subscriptionKey)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		m.logger.Error().Err(err).Str("transaction_id", transactionID).Msg("mtn momo status check failed")
		return nil, provider.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status check status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode status response: %v", provider.ErrProviderUnavailable, err)
	}

	mapped, reason := MapRemoteStatus(result.Status, result.Reason)
	return &provider.StatusResult{
		Status:        mapped,
		FailureReason: reason,
		RawResponse:   string(raw),
	}, nil
}

type webhookPayload struct {
	ReferenceID string `json:"referenceId"`
	ExternalID  string `json:"externalId"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
}

func (m *MTN) ParseWebhook(payload []byte) (*provider.WebhookResult, error) {
	var wh webhookPayload
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, fmt.Errorf("invalid mtn webhook payload: %w", err)
	}
	if wh.ReferenceID == "" {
		return nil, fmt.Errorf("mtn webhook payload missing referenceId")
	}

	mapped, reason := MapRemoteStatus(wh.Status, wh.Reason)
	return &provider.WebhookResult{
		PaymentID:     wh.ReferenceID,
		TransactionID: wh.ReferenceID,
		Status:        mapped,
		FailureReason: reason,
		RawPayload:    string(payload),
	}, nil
}

// MapRemoteStatus MTN 狀態詞彙 -> 內部狀態
// SUCCESSFUL -> COMPLETED, FAILED -> FAILED, PENDING -> PROCESSING
func MapRemoteStatus(remote, reason string) (model.PaymentStatus, string) {
	switch strings.ToUpper(remote) {
	case "SUCCESSFUL":
		return model.PaymentStatusCompleted, ""
	case "FAILED":
		if reason == "" {
			reason = "Payment failed"
		}
		return model.PaymentStatusFailed, reason
	default:
		return model.PaymentStatusProcessing, ""
	}
}
