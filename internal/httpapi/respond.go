package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/middleware"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func (e errorBody) envelope() errorEnvelope { return errorEnvelope{Error: e} }

func bodyFor(err error) errorBody {
	return errorBody{Kind: string(apperr.KindOf(err)), Message: apperr.PublicMessage(err)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps err to its status and a generic body.  The cause is logged.
func (a *API) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", fields...)
	} else {
		a.log.Debug("request rejected", fields...)
	}
	writeJSON(w, status, bodyFor(err).envelope())
}

func (a *API) tooManyRequests(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests,
		errorBody{Kind: "rate_limited", Message: "too many requests"}.envelope())
}

// decode reads one JSON object from r into v.
func (a *API) decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	body := http.MaxBytesReader(w, r.Body, a.d.MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return apperr.Validation(op, "request body too large")
		case errors.Is(err, io.EOF):
			return apperr.Validation(op, "request body required")
		}
		return &apperr.Error{Kind: apperr.KindValidation, Op: op, Msg: "malformed JSON body", Err: err}
	}
	return nil
}

// required returns a ValidationError naming the first empty field.
func required(op string, fields ...[2]string) error {
	for _, f := range fields {
		if f[1] == "" {
			return apperr.Validation(op, f[0]+" is required")
		}
	}
	return nil
}
