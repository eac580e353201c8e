package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

const (
	// MaxEmailLen is the longest address a guest checkout accepts.
	MaxEmailLen = 254
	// MaxBodyBytes caps order, checkout and listing request bodies.
	MaxBodyBytes = 1 << 20
	moneyScale   = 2
)

// Sanitizer is implemented by request bodies that normalize their own fields.
// DecodeJSONBody calls it before validation so blank input fails "required".
type Sanitizer interface {
	Sanitize()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("money", validMoney)
	return v
}

// validMoney accepts non-negative amounts with at most cent precision.
func validMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.Equal(d.Truncate(moneyScale))
}

// DecodeJSONBody reads one JSON object of at most MaxBodyBytes into dest,
// sanitizes it and runs the struct's validate tags. Every failure is a
// CodeValidation error whose details are keyed by JSON path.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return decodeError(err)
	}
	if decoder.More() {
		return invalidBody(nil, map[string]string{"body": "must contain a single JSON object"})
	}
	if s, ok := dest.(Sanitizer); ok {
		s.Sanitize()
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func decodeError(err error) error {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		tooLargeErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return invalidBody(err, map[string]string{"body": "is required"})
	case errors.As(err, &tooLargeErr):
		return invalidBody(err, map[string]string{"body": fmt.Sprintf("must not exceed %d bytes", tooLargeErr.Limit)})
	case errors.As(err, &syntaxErr):
		return invalidBody(err, map[string]string{"body": fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)})
	case errors.Is(err, io.ErrUnexpectedEOF):
		return invalidBody(err, map[string]string{"body": "malformed JSON"})
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return invalidBody(err, map[string]string{typeErr.Field: "must be a " + typeErr.Value})
	}
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return invalidBody(err, map[string]string{strings.Trim(field, `"`): "is not allowed"})
	}
	return invalidBody(err, map[string]string{"body": err.Error()})
}

func invalidBody(cause error, details map[string]string) *pkgerrors.Error {
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid request body").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "invalid request body").WithDetails(details)
}

// formatValidationErrors keys details by JSON path, so a guest order with a bad
// billing city reports "billing_address.city" rather than a bare "city".
func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldPath(fieldErr)] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "email":
		return "must be a valid email"
	case "uuid":
		return "must be a valid id"
	case "money":
		return "must be a non-negative amount with at most two decimals"
	case "gt", "gte":
		return fmt.Sprintf("must be greater than %s%s", orEqual(fe.Tag()), fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}

func orEqual(tag string) string {
	if tag == "gte" {
		return "or equal to "
	}
	return ""
}

// SanitizeString trims input and caps it at maxLen bytes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeEmail trims and lowercases a buyer email so guest orders and their
// checkout sessions compare equal.
func SanitizeEmail(input string) string {
	return strings.ToLower(SanitizeString(input, MaxEmailLen))
}

// SanitizeAddress normalizes an address snapshot in place.
func SanitizeAddress(addr *types.AddressSnapshot) {
	if addr == nil {
		return
	}
	*addr = addr.Normalized()
}
