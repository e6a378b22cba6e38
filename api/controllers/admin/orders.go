package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/beadshop-backend/api/middleware"
	"github.com/angelmondragon/beadshop-backend/api/responses"
	"github.com/angelmondragon/beadshop-backend/api/validators"
	internalorders "github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/orderstate"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
)

type orderUpdater interface {
	Update(ctx context.Context, input orderstate.UpdateInput) (*orderstate.UpdateResult, error)
}

type updateOrderRequest struct {
	Status         *string `json:"status" validate:"omitempty,max=32"`
	TrackingNumber *string `json:"trackingNumber" validate:"omitempty,max=100"`
	TrackingURL    *string `json:"trackingUrl" validate:"omitempty,max=500"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
}

type balanceResponse struct {
	Stage        int    `json:"stage"`
	Provider     string `json:"provider,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Error        string `json:"error,omitempty"`
}

type updateOrderResponse struct {
	Order   internalorders.OrderDTO `json:"order"`
	Balance *balanceResponse        `json:"balance,omitempty"`
}

// UpdateOrder applies an admin status change and tracking details. A made-to-order
// order moved to processing gets its balance request attached to the response.
func UpdateOrder(svc orderUpdater, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order admin unavailable"))
			return
		}

		var req updateOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orderstate.UpdateInput{
			OrderNumber:    chi.URLParam(r, "orderNumber"),
			TrackingNumber: req.TrackingNumber,
			TrackingURL:    req.TrackingURL,
			Notes:          req.Notes,
			Actor:          middleware.CallerFromContext(r.Context()),
		}
		if req.Status != nil {
			status, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status"))
				return
			}
			input.Status = &status
		}

		result, err := svc.Update(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := updateOrderResponse{Order: internalorders.NewOrderDTO(result.Order)}
		switch {
		case result.Balance != nil:
			resp.Balance = &balanceResponse{
				Stage:        result.Balance.Stage,
				Provider:     string(result.Balance.Provider),
				RedirectURL:  result.Balance.RedirectURL(),
				ClientSecret: result.Balance.ClientSecret,
			}
		case result.BalanceError != nil:
			resp.Balance = &balanceResponse{Stage: 2, Error: "balance request failed; retry from the order page"}
		}
		responses.WriteSuccess(w, resp)
	}
}
