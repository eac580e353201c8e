package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Mode is the gateway account mode. Keys and webhook secrets are issued per mode.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// secret and restricted key prefixes accepted in each mode
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
	errUnknownMode    = fmt.Errorf("stripe environment must be %q or %q", ModeTest, ModeLive)
)

// Client opens checkout sessions and onboarding links for the marketplace.
// Gateway calls are never retried by the SDK: a failed call surfaces to the
// buyer, who retries checkout with a fresh idempotency key.
type Client struct {
	api             *stripe.Client
	mode            Mode
	signingSecret   string
	connectClientID string
	connectRedirect string
	successURL      string
	cancelURL       string
	currency        string
	sessionTTL      time.Duration
	now             func() time.Time
	logg            *logger.Logger
}

// NewClient validates the key against the configured mode and installs the
// SDK backend with network retries disabled.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}
	if !mode.accepts(apiKey) {
		return nil, fmt.Errorf("stripe environment %q requires a key starting with %s", mode, strings.Join(keyPrefixes[mode], " or "))
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     gatewayLogger{ctx: ctx, logg: logg},
	}
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))
	stripe.Key = apiKey

	client := &Client{
		api:             stripe.NewClient(apiKey),
		mode:            mode,
		signingSecret:   signingSecret,
		connectClientID: strings.TrimSpace(cfg.ConnectClientID),
		connectRedirect: strings.TrimSpace(cfg.ConnectRedirect),
		successURL:      cfg.SuccessURL,
		cancelURL:       cfg.CancelURL,
		currency:        normalizeCurrency(cfg.Currency),
		sessionTTL:      cfg.SessionTTL,
		now:             time.Now,
		logg:            logg,
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env":       string(mode),
			"currency":         client.currency,
			"connect_enabled":  client.connectClientID != "",
			"session_ttl_mins": int(cfg.SessionTTL.Minutes()),
		}), "stripe client initialized")
	}
	return client, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the gateway mode in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// Currency is the lowercase ISO currency every session is opened in.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

func parseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return mode, nil
	default:
		return "", errUnknownMode
	}
}

func (m Mode) accepts(key string) bool {
	for _, prefix := range keyPrefixes[m] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func normalizeCurrency(raw string) string {
	if c := strings.ToLower(strings.TrimSpace(raw)); c != "" {
		return c
	}
	return string(stripe.CurrencyUSD)
}

// gatewayLogger routes SDK request logs into the service logger. SDK debug and
// info lines are request traces, so they stay at debug.
type gatewayLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (g gatewayLogger) Debugf(format string, v ...any) { g.write(g.logg.Debug, format, v) }
func (g gatewayLogger) Infof(format string, v ...any)  { g.write(g.logg.Debug, format, v) }
func (g gatewayLogger) Warnf(format string, v ...any)  { g.write(g.logg.Warn, format, v) }

func (g gatewayLogger) Errorf(format string, v ...any) {
	if g.logg == nil {
		return
	}
	g.logg.Error(g.context(), "stripe sdk error", fmt.Errorf(format, v...))
}

func (g gatewayLogger) write(fn func(context.Context, string), format string, v []any) {
	if g.logg == nil {
		return
	}
	fn(g.context(), "stripe sdk: "+fmt.Sprintf(format, v...))
}

func (g gatewayLogger) context() context.Context {
	if g.ctx == nil {
		return context.Background()
	}
	return g.ctx
}
