package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const maxPayloadBytes = int64(65536)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies the Stripe-Signature header and hands the event to the reconciler.
// Responses stay terse; diagnostics go to the log only.
func StripeWebhook(svc StripeWebhookService, client stripeClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil {
			responses.WriteWebhookError(ctx, logg, w, http.StatusInternalServerError, "unavailable", errors.New("stripe webhook not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
		if err != nil {
			responses.WriteWebhookError(ctx, logg, w, http.StatusBadRequest, "unreadable payload", err)
			return
		}
		if int64(len(payload)) > maxPayloadBytes {
			responses.WriteWebhookError(ctx, logg, w, http.StatusRequestEntityTooLarge, "payload too large", fmt.Errorf("stripe webhook body exceeds %d bytes", maxPayloadBytes))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteWebhookError(ctx, logg, w, http.StatusBadRequest, "missing signature", nil)
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			rejected := pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "stripe signature verification")
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.StatusOf(rejected), "invalid signature", rejected)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.StatusOf(err), "event not processed", err)
			return
		}

		responses.WriteWebhookAck(w)
	}
}
