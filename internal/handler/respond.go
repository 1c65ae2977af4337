package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. Unknown fields are
// rejected.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindValidation, "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.New(apperr.KindValidation, "request body is too large")
		}
		return apperr.Wrap(apperr.KindValidation, err, "invalid request body").
			WithDetails(map[string]string{"body": err.Error()})
	}
	if dec.More() {
		return apperr.New(apperr.KindValidation, "request body must hold a single JSON object")
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return apperr.Wrap(apperr.KindValidation, err, "validation failed")
		}
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fieldPath(fe)] = fieldMessage(fe)
		}
		return apperr.New(apperr.KindValidation, "validation failed").WithDetails(details)
	}
	return nil
}

// fieldPath drops the request struct name from the namespace, leaving the
// JSON path of the field.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}

type errorResponse struct {
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

// writeError maps err to its HTTP status. Only internal failures are logged
// here; the request log line carries the status of everything else.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	switch kind {
	case apperr.KindInternal:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	case apperr.KindInconsistent:
		zctx.From(r.Context()).Warn("Request outcome unknown", zap.Error(err))
	}

	resp := errorResponse{
		StatusCode: status,
		Message:    apperr.PublicMessage(err),
	}
	if kind == apperr.KindValidation {
		resp.Details = apperr.DetailsOf(err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
