package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/oauth"
)

// ConnectAuthorizeURL is the OAuth page a seller visits to link a Standard account.
func (c *Client) ConnectAuthorizeURL(state string) (string, error) {
	if c == nil || c.connectClientID == "" {
		return "", errors.New("stripe connect client id not configured")
	}
	params := &stripe.AuthorizeURLParams{
		ClientID:     stripe.String(c.connectClientID),
		ResponseType: stripe.String("code"),
		Scope:        stripe.String(string(stripe.OAuthScopeTypeReadWrite)),
		State:        stripe.String(state),
	}
	if c.connectRedirect != "" {
		params.RedirectURI = stripe.String(c.connectRedirect)
	}
	return oauth.AuthorizeURL(params), nil
}

// ExchangeConnectCode trades an OAuth code for the connected account id.
func (c *Client) ExchangeConnectCode(ctx context.Context, code string) (string, error) {
	if c == nil {
		return "", errors.New("stripe client not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("authorization code is required")
	}
	params := &stripe.OAuthTokenParams{
		GrantType: stripe.String("authorization_code"),
		Code:      stripe.String(code),
	}
	params.Context = ctx
	token, err := oauth.New(params)
	if err != nil {
		return "", fmt.Errorf("exchange connect code: %w", err)
	}
	if token.StripeUserID == "" {
		return "", errors.New("connect token missing account id")
	}
	return token.StripeUserID, nil
}
