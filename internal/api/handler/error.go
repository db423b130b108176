package handler

import (
	"errors"
	"net/http"

	"github.com/oapi-lab/canteen/internal/api"
	"github.com/oapi-lab/canteen/internal/infra/provider"
	"github.com/oapi-lab/canteen/internal/infra/repository/db"
	"github.com/oapi-lab/canteen/internal/infra/repository/redis_repo"
	"github.com/oapi-lab/canteen/internal/service"
)

// 服務層的sentinel error對到HTTP狀態碼，沒對到的一律500
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotExist),
		errors.Is(err, service.ErrPaymentNotExist),
		errors.Is(err, db.ErrMenuItemNotFound),
		errors.Is(err, db.ErrPaymentMethodNotFound),
		errors.Is(err, redis_repo.ErrCartNotFound):
		api.ErrorJSON(w, http.StatusNotFound, err.Error())

	case errors.Is(err, service.ErrForbidden):
		api.ErrorJSON(w, http.StatusForbidden, err.Error())

	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrInvalidPaymentTransition),
		errors.Is(err, service.ErrPaymentNotPending),
		errors.Is(err, service.ErrNotRefundable),
		errors.Is(err, service.ErrOrderNotModifiable),
		errors.Is(err, service.ErrOrderClosed),
		errors.Is(err, service.ErrOrderAlreadyPaid):
		api.ErrorJSON(w, http.StatusConflict, err.Error())

	case errors.Is(err, service.ErrRefundExceedsBalance),
		errors.Is(err, service.ErrInvalidRefundAmount),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrCancellationReasonRequired),
		errors.Is(err, service.ErrAmountOutOfRange),
		errors.Is(err, service.ErrMenuItemUnavailable),
		errors.Is(err, service.ErrDailyLimitReached),
		errors.Is(err, service.ErrNegativeTotal),
		errors.Is(err, service.ErrNegativeDiscount),
		errors.Is(err, redis_repo.ErrInsufficientQuantity):
		api.ErrorJSON(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, provider.ErrProviderUnavailable),
		errors.Is(err, provider.ErrProviderTimeout):
		api.ErrorJSON(w, http.StatusBadGateway, err.Error())

	case errors.Is(err, provider.ErrProviderRejected):
		api.ErrorJSON(w, http.StatusUnprocessableEntity, err.Error())

	default:
		api.ErrorJSON(w, http.StatusInternalServerError, "internal server error")
	}
}
