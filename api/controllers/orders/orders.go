package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/beadshop-backend/api/middleware"
	"github.com/angelmondragon/beadshop-backend/api/responses"
	"github.com/angelmondragon/beadshop-backend/api/validators"
	internalorders "github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/payments"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/types"
)

type attemptLister interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error)
}

type payer interface {
	Pay(ctx context.Context, input payments.PayInput) (*payments.Artifact, error)
}

type cartLineRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=99"`
}

type customerRequest struct {
	Email string  `json:"email" validate:"required,email,max=254"`
	Name  string  `json:"name" validate:"required,max=200"`
	Phone *string `json:"phone" validate:"omitempty,max=40"`
}

type createOrderRequest struct {
	Items           []cartLineRequest `json:"items" validate:"required,min=1,max=50,dive"`
	Customer        customerRequest   `json:"customer"`
	ShippingAddress types.Address     `json:"shippingAddress"`
	BillingAddress  *types.Address    `json:"billingAddress" validate:"omitempty"`
	PickupPointID   *string           `json:"pickupPointId" validate:"omitempty,max=64"`
	PaymentMethod   string            `json:"paymentMethod" validate:"required"`
	BonusPointsUsed int64             `json:"bonusPointsUsed" validate:"min=0"`
}

// Create prices the cart, reserves stock and persists a pending order.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method"))
			return
		}

		input := internalorders.CreateOrderInput{
			Items: make([]internalorders.CartLine, 0, len(req.Items)),
			Customer: internalorders.Customer{
				Email: req.Customer.Email,
				Name:  validators.SanitizeString(req.Customer.Name, 200),
				Phone: req.Customer.Phone,
			},
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			PickupPointID:   req.PickupPointID,
			PaymentMethod:   method,
			BonusPointsUsed: req.BonusPointsUsed,
			Caller:          middleware.CallerFromContext(r.Context()),
		}
		for _, line := range req.Items {
			input.Items = append(input.Items, internalorders.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
		}

		order, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderDTO(order))
	}
}

// Detail returns an order with its payment artifacts. Guests prove ownership
// with the ?email= query parameter.
func Detail(svc internalorders.Service, attempts attemptLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || attempts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		order, err := svc.GetOrder(r.Context(), internalorders.GetOrderInput{
			OrderNumber: chi.URLParam(r, "orderNumber"),
			Caller:      middleware.CallerFromContext(r.Context()),
			Email:       r.URL.Query().Get("email"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := attempts.ListByOrder(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments"))
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order).WithPayments(list))
	}
}

type payRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,max=32"`
	Email         string `json:"email" validate:"omitempty,email"`
}

type artifactResponse struct {
	Provider        enums.PaymentProvider `json:"provider"`
	Stage           int                   `json:"stage"`
	Amount          string                `json:"amount"`
	Currency        string                `json:"currency"`
	ClientSecret    string                `json:"clientSecret,omitempty"`
	PaymentIntentID string                `json:"paymentIntentId,omitempty"`
	CheckoutURL     string                `json:"checkoutUrl,omitempty"`
	PaymentURL      string                `json:"paymentUrl,omitempty"`
	TransactionID   string                `json:"transactionId,omitempty"`
}

func newArtifactResponse(a *payments.Artifact) artifactResponse {
	resp := artifactResponse{
		Provider:     a.Provider,
		Stage:        a.Stage,
		Amount:       a.Amount.StringFixed(2),
		Currency:     a.Currency,
		ClientSecret: a.ClientSecret,
		CheckoutURL:  a.CheckoutURL,
		PaymentURL:   a.PaymentURL,
	}
	if a.ClientSecret != "" {
		resp.PaymentIntentID = a.ExternalID
	} else if a.Provider == enums.PaymentProviderP24 {
		resp.TransactionID = a.ExternalID
	}
	return resp
}

// Pay requests the next due payment stage from the order's gateway.
func Pay(svc payer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var req payRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		input := payments.PayInput{
			OrderNumber: chi.URLParam(r, "orderNumber"),
			Caller:      middleware.CallerFromContext(r.Context()),
			Email:       strings.TrimSpace(req.Email),
		}
		if req.PaymentMethod != "" {
			method, err := enums.ParsePaymentMethod(req.PaymentMethod)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method"))
				return
			}
			input.Method = method
		}

		artifact, err := svc.Pay(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newArtifactResponse(artifact))
	}
}
