package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-lab/canteen/internal/api"
	"github.com/oapi-lab/canteen/internal/api/dto"
	"github.com/oapi-lab/canteen/internal/api/middleware"
	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/oapi-lab/canteen/internal/service"
)

type PaymentHandler struct {
	paymentService service.IPaymentService
}

func NewPaymentHandler(paymentService service.IPaymentService) *PaymentHandler {
	if paymentService == nil {
		panic("paymentService cannot be nil")
	}
	return &PaymentHandler{paymentService: paymentService}
}

// CreatePayment 建立支付後立即向 provider 發起收款
// provider 網路失敗時支付仍是 PENDING，可用 check 端點重試
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePaymentDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	payment, err := h.paymentService.CreatePayment(r.Context(), service.CreatePaymentRequest{
		OrderNumber:     req.OrderNumber,
		PaymentMethodID: req.PaymentMethodID,
		Provider:        model.ProviderTag(req.Provider),
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		Description:     req.Description,
	}, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	initiated, err := h.paymentService.InitiatePayment(r.Context(), payment.PaymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusCreated, initiated)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	payment, err := h.paymentService.GetPayment(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if payment.CustomerID != actor.ID && !actor.Can(model.CapManageOrders) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}
	api.SuccessJSON(w, http.StatusOK, payment)
}

// CheckStatus 主動向 provider 對帳
func (h *PaymentHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	paymentID := chi.URLParam(r, "paymentID")

	payment, err := h.paymentService.GetPayment(r.Context(), paymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if payment.CustomerID != actor.ID && !actor.Can(model.CapManageOrders) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}

	checked, err := h.paymentService.CheckStatus(r.Context(), paymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, checked)
}

func (h *PaymentHandler) CompleteManual(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	payment, err := h.paymentService.CompleteManual(r.Context(), chi.URLParam(r, "paymentID"), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	payment, err := h.paymentService.CancelPayment(r.Context(), chi.URLParam(r, "paymentID"), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) InitiateRefund(w http.ResponseWriter, r *http.Request) {
	var req dto.RefundDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	refund, err := h.paymentService.InitiateRefund(r.Context(), chi.URLParam(r, "paymentID"), req.Amount, req.Reason, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusCreated, refund)
}

func (h *PaymentHandler) GetRefunds(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	if !actor.Can(model.CapManageOrders) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}
	refunds, err := h.paymentService.GetRefunds(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, refunds)
}

func (h *PaymentHandler) GetOrderPayments(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	if !actor.Can(model.CapManageOrders) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}
	payments, err := h.paymentService.GetPaymentsByOrder(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, payments)
}
