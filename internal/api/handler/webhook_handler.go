package handler

import (
	"io"
	"net/http"

	"github.com/oapi-lab/canteen/internal/api"
	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/service"
	"github.com/rs/zerolog"
)

// provider 回呼不帶使用者身份，路由上不掛 actor 檢查
// 重送同一事件是冪等的，一律回 200 讓 provider 停止重試
type WebhookHandler struct {
	paymentService service.IPaymentService
	logger         zerolog.Logger
}

func NewWebhookHandler(paymentService service.IPaymentService, logger zerolog.Logger) *WebhookHandler {
	if paymentService == nil {
		panic("paymentService cannot be nil")
	}
	return &WebhookHandler{paymentService: paymentService, logger: logger}
}

func (h *WebhookHandler) OrangeWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, model.ProviderOrange)
}

func (h *WebhookHandler) MTNWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, model.ProviderMTN)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, tag model.ProviderTag) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "unable to read payload")
		return
	}

	payment, err := h.paymentService.HandleWebhook(r.Context(), tag, payload)
	if err != nil {
		// 對不回 payment 的回呼記log後回 200，provider 重送也救不回來
		h.logger.Error().Err(err).
			Str("provider", string(tag)).
			Msg("webhook processing failed")
		api.SuccessJSON(w, http.StatusOK, nil)
		return
	}

	h.logger.Info().
		Str("provider", string(tag)).
		Str("payment_id", payment.PaymentID).
		Str("status", string(payment.Status)).
		Msg("webhook processed")
	api.SuccessJSON(w, http.StatusOK, nil)
}
