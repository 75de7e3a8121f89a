// Package httpio holds the JSON request and response helpers shared by the
// ByteBites HTTP handlers.
package httpio

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// MaxBodyBytes bounds decoded request bodies.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of an error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as an ErrorBody. Errors without a code become
// INT_001 with a generic message so that causes never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	e, ok := sserr.AsError(err)
	if !ok {
		e = sserr.Internal("internal error")
	}
	if secs, ok := e.Details["retry_after"].(int); ok && secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	WriteJSON(w, e.HTTPStatus(), ErrorBody{Code: string(e.Code), Message: e.Message})
}

// DecodeJSON decodes a JSON body into v, rejecting unknown fields and
// trailing data. Failures are VAL_003.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return sserr.Wrap(err, sserr.CodeValidationFormat, "request body must be valid JSON")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return sserr.New(sserr.CodeValidationFormat, "request body must contain a single JSON object")
	}
	return nil
}
