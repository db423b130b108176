package handler

import (
	"net/http"

	"github.com/oapi-lab/canteen/internal/api"
	"github.com/oapi-lab/canteen/internal/infra/repository/db"
)

// 菜單與支付方式是唯讀參照資料，handler 直接打 repo
type MenuHandler struct {
	menuRepo   db.IMenuRepository
	methodRepo db.IPaymentMethodRepository
}

func NewMenuHandler(menuRepo db.IMenuRepository, methodRepo db.IPaymentMethodRepository) *MenuHandler {
	return &MenuHandler{menuRepo: menuRepo, methodRepo: methodRepo}
}

func (h *MenuHandler) ListAvailableItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.menuRepo.GetAvailableMenuItems(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, items)
}

func (h *MenuHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.methodRepo.GetActiveMethods(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, methods)
}
