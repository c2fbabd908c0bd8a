package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Skryldev/apikit/apperr"
)

const internalDetail = "Internal server error"

// errorBody is the error payload shape: a human-readable detail string,
// plus field-level messages for validation failures.
type errorBody struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError is the error translator: the single place that maps domain
// failures to externally visible statuses. Unclassified failures (pool
// exhaustion, connectivity loss, bugs) become a 500 with the detail
// suppressed from the client; the full error is recorded against the
// request so the lifecycle middleware logs it with a stack capture.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindNotFound:
			writeJSON(w, http.StatusNotFound, errorBody{Detail: ae.Detail})
			return
		case apperr.KindConflict:
			writeJSON(w, http.StatusConflict, errorBody{Detail: ae.Detail})
			return
		case apperr.KindValidation:
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: ae.Detail, Fields: ae.Fields})
			return
		case apperr.KindUnauthorized:
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, errorBody{Detail: ae.Detail})
			return
		case apperr.KindForbidden:
			writeJSON(w, http.StatusForbidden, errorBody{Detail: ae.Detail})
			return
		}
	}

	markFailed(r.Context(), err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Detail: internalDetail})
}
