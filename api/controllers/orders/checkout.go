package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
)

type guestCheckoutRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *guestCheckoutRequest) Sanitize() {
	r.Email = validators.SanitizeEmail(r.Email)
}

type checkoutSessionResponse struct {
	OrderID           uuid.UUID `json:"order_id"`
	SessionID         string    `json:"session_id"`
	URL               string    `json:"url"`
	PlatformFee       string    `json:"platform_fee"`
	ListingFeeApplied string    `json:"listing_fee_applied"`
	ApplicationFee    string    `json:"application_fee"`
}

// CheckoutSession opens a hosted payment session for the caller's pending order.
func CheckoutSession(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, _, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateCheckoutSession(r.Context(), checkout.Input{OrderID: orderID, UserID: &userID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutSessionResponse(result))
	}
}

// GuestCheckoutSession opens a session for a guest order; the body email must
// match the one the order was placed under.
func GuestCheckoutSession(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req guestCheckoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateCheckoutSession(r.Context(), checkout.Input{
			OrderID:    orderID,
			GuestEmail: req.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutSessionResponse(result))
	}
}

func newCheckoutSessionResponse(result *checkout.Result) checkoutSessionResponse {
	return checkoutSessionResponse{
		OrderID:           result.OrderID,
		SessionID:         result.SessionID,
		URL:               result.URL,
		PlatformFee:       money.Format(result.Fees.PlatformFeeCents),
		ListingFeeApplied: money.Format(result.Fees.ListingFeeAppliedCents),
		ApplicationFee:    money.Format(result.ApplicationFeeCents),
	}
}
