package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

func TestWriteSuccessStatusWrapsOrder(t *testing.T) {
	w := httptest.NewRecorder()
	order := internalorders.OrderDTO{ID: uuid.New(), Status: enums.OrderStatusPending, Total: "42.50", Currency: "usd"}
	WriteSuccessStatus(w, http.StatusCreated, order)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, order.ID, body.Data.ID)
	assert.Equal(t, enums.OrderStatusPending, body.Data.Status)
	assert.Equal(t, "42.50", body.Data.Total)
}

func TestWriteErrorExposesStateConflictDetails(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-123")
	err := pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be shipped").
		WithDetails(map[string]any{"status": string(enums.OrderStatusPending), "trigger": "ship"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeStateConflict), body.Error.Code)
	assert.Equal(t, "order cannot be shipped", body.Error.Message)
	assert.Equal(t, "req-123", body.Error.RequestID)
	details, ok := body.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pending", details["status"])
}

func TestWriteErrorHidesInternalCauses(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("ledger insert failed: connection reset"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.Nil(t, body.Error.Details)
	assert.Empty(t, body.Error.RequestID)
}

func TestWriteErrorKeepsGatewayMessagePublic(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeGateway, errors.New("sk_live card_declined"), "create checkout session"))

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "sk_live")
	assert.Contains(t, w.Body.String(), "payment provider error")
}

func TestWebhookBodies(t *testing.T) {
	w := httptest.NewRecorder()
	WriteWebhookAck(w)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteWebhookError(context.Background(), nil, w, http.StatusBadRequest, "invalid signature", errors.New("timestamp outside tolerance"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid signature"}`, w.Body.String())
}

func TestWriteErrorLogsClientFaultsAsWarnings(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock for Mug"))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"error_class":"conflict"`)

	buf.Reset()
	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeGateway, "stripe unavailable"))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"error_class":"external"`)
}
