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

type CartHandler struct {
	cartService service.ICartService
}

func NewCartHandler(cartService service.ICartService) *CartHandler {
	if cartService == nil {
		panic("cartService cannot be nil")
	}
	return &CartHandler{cartService: cartService}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	cart, err := h.cartService.GetCart(r.Context(), actor.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req dto.AddCartItemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	cart, err := h.cartService.AddItem(r.Context(), actor.ID, req.MenuItemID, req.Quantity, req.SpecialInstructions)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AdjustItem(w http.ResponseWriter, r *http.Request) {
	var req dto.AdjustCartItemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	menuItemID := chi.URLParam(r, "menuItemID")
	cart, err := h.cartService.AdjustQuantity(r.Context(), actor.ID, menuItemID, req.Delta)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	menuItemID := chi.URLParam(r, "menuItemID")
	cart, err := h.cartService.RemoveItem(r.Context(), actor.ID, menuItemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r)
	if err := h.cartService.ClearCart(r.Context(), actor.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusOK, nil)
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.ErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := middleware.GetActor(r)
	if !actor.Can(model.CapPlaceOrder) {
		api.ErrorJSON(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}

	order, err := h.cartService.Checkout(r.Context(), actor.ID, service.CheckoutRequest{
		OrderType:           model.OrderType(req.OrderType),
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryPhone:       req.DeliveryPhone,
		DeliveryNotes:       req.DeliveryNotes,
		SpecialInstructions: req.SpecialInstructions,
		DiscountAmount:      req.DiscountAmount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.SuccessJSON(w, http.StatusCreated, order)
}
