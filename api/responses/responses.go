package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// RequestIDHeader carries the request id set by the request middleware. Error
// bodies echo it so a buyer reporting a failed checkout can quote it.
const RequestIDHeader = "X-Request-Id"

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	// client-side classes carry messages written for the buyer or seller;
	// gateway and internal failures only expose the generic text.
	msg := meta.PublicMessage
	clientFault := meta.Class == pkgerrors.ClassValidation || meta.Class == pkgerrors.ClassConflict
	if clientFault && typed.Message() != "" {
		msg = typed.Message()
	}

	payload := ErrorEnvelope{
		Error: APIError{
			Code:      string(typed.Code()),
			Message:   msg,
			RequestID: w.Header().Get(RequestIDHeader),
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		ctx = logg.WithField(ctx, "error_class", string(meta.Class))
		if clientFault {
			logg.Warn(ctx, "request.rejected: "+err.Error())
		} else {
			logg.Error(ctx, "request.error", err)
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}

type webhookAck struct {
	Received bool `json:"received"`
}

type webhookError struct {
	Error string `json:"error"`
}

// WriteWebhookAck is the only body a gateway sees on success.
func WriteWebhookAck(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, webhookAck{Received: true})
}

// WriteWebhookError logs err and answers with a short public message only.
func WriteWebhookError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, status int, public string, err error) {
	if logg != nil && err != nil {
		logg.Error(logg.WithField(ctx, "http_status", status), "webhook.error", err)
	}
	writeJSON(w, status, webhookError{Error: public})
}
