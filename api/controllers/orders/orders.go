package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type createOrderRequest struct {
	ShippingAddressID string `json:"shipping_address_id" validate:"required,uuid"`
	BillingAddressID  string `json:"billing_address_id" validate:"omitempty,uuid"`
}

type guestOrderRequest struct {
	CartID          string                 `json:"cart_id" validate:"required,uuid"`
	Email           string                 `json:"email" validate:"required,email"`
	ShippingAddress types.AddressSnapshot  `json:"shipping_address" validate:"required"`
	BillingAddress  *types.AddressSnapshot `json:"billing_address,omitempty"`
}

func (r *guestOrderRequest) Sanitize() {
	r.CartID = strings.TrimSpace(r.CartID)
	r.Email = validators.SanitizeEmail(r.Email)
	validators.SanitizeAddress(&r.ShippingAddress)
	validators.SanitizeAddress(r.BillingAddress)
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

func (r *cancelOrderRequest) Sanitize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

// Create converts the caller's active cart into a pending order.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, _, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalorders.CreateOrderInput{
			UserID:            userID,
			ShippingAddressID: uuid.MustParse(req.ShippingAddressID),
		}
		if req.BillingAddressID != "" {
			input.BillingAddressID = uuid.MustParse(req.BillingAddressID)
		}

		order, err := svc.CreateOrderFromCart(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderDTO(order))
	}
}

// CreateGuest converts an anonymous cart using address snapshots from the body.
func CreateGuest(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var req guestOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrderFromCartGuest(r.Context(), internalorders.GuestOrderInput{
			CartID:          uuid.MustParse(req.CartID),
			Email:           req.Email,
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderDTO(order))
	}
}

// Get returns an order to its buyer or to an admin.
func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, role, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if role != enums.UserRoleAdmin {
			owns, err := svc.DoesOrderBelongToUser(r.Context(), orderID, userID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !owns {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user"))
				return
			}
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// Cancel cancels a pending or processing order on behalf of its buyer.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, role, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.CancelOrder(r.Context(), orderID, internalorders.Actor{UserID: userID, Role: role}, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// Confirm marks a pending order paid without a gateway event. Admin only.
func Confirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		return svc.ConfirmOrderPayment(r.Context(), orderID, actor)
	})
}

// Ship moves a processing order to shipped for the owning seller.
func Ship(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		return svc.MarkShipped(r.Context(), orderID, actor)
	})
}

// Deliver moves a shipped order to delivered for the owning seller.
func Deliver(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		return svc.MarkDelivered(r.Context(), orderID, actor)
	})
}

type transitionFunc func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)

func transition(svc internalorders.Service, logg *logger.Logger, apply transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, role, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := apply(r, orderID, internalorders.Actor{UserID: userID, Role: role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
