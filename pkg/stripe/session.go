package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

// LineItem is one priced row of a hosted checkout page.
type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

// SessionRequest is everything needed to open a destination-charge checkout session.
type SessionRequest struct {
	IdempotencyKey       string
	ClientReferenceID    string
	CustomerEmail        string
	LineItems            []LineItem
	ApplicationFeeCents  int64
	DestinationAccountID string
	Metadata             PaymentMetadata
}

// Session is the subset of the gateway response the marketplace keeps.
type Session struct {
	ID              string
	URL             string
	PaymentIntentID string
	ExpiresAt       *time.Time
}

// CreateCheckoutSession opens a payment-mode session whose proceeds are routed to the
// seller's account minus the application fee. The idempotency key is sent as the
// request's deduplication token.
func (c *Client) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if c == nil {
		return nil, errors.New("stripe client not configured")
	}
	params, err := c.sessionParams(req)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	created, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	out := &Session{ID: created.ID, URL: created.URL}
	if created.PaymentIntent != nil {
		out.PaymentIntentID = created.PaymentIntent.ID
	}
	if created.ExpiresAt > 0 {
		expiresAt := time.Unix(created.ExpiresAt, 0).UTC()
		out.ExpiresAt = &expiresAt
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"checkout_session_id": created.ID,
			"destination":         req.DestinationAccountID,
			"application_fee":     req.ApplicationFeeCents,
		})
		c.logg.Info(logCtx, "stripe checkout session created")
	}
	return out, nil
}

func (c *Client) sessionParams(req SessionRequest) (*stripe.CheckoutSessionParams, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, errors.New("idempotency key is required")
	}
	if strings.TrimSpace(req.DestinationAccountID) == "" {
		return nil, errors.New("destination account is required")
	}
	if len(req.LineItems) == 0 {
		return nil, errors.New("at least one line item is required")
	}

	metadata := req.Metadata.ToMap()
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{
			Enabled: stripe.Bool(true),
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(req.ApplicationFeeCents),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(req.DestinationAccountID),
			},
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if c.sessionTTL > 0 {
		now := time.Now
		if c.now != nil {
			now = c.now
		}
		params.ExpiresAt = stripe.Int64(now().Add(c.sessionTTL).Unix())
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(c.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitAmountCents),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	params.SetIdempotencyKey(req.IdempotencyKey)
	return params, nil
}
