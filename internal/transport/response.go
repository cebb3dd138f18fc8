// Package transport serves the console's browser-facing HTTP surface: the
// chi router, its middleware chain, and the session and page handlers.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// errorBody is what the browser receives for any non-2xx answer. Redirect
// is set when it must navigate, e.g. to the login route.
type errorBody struct {
	Error    *model.ErrorEnvelope `json:"error"`
	Redirect string               `json:"redirect,omitempty"`
}

// httpStatus picks the console status for an envelope. Backend rejections
// in the 4xx range are passed through so the browser can tell a conflict
// from a bad gateway.
func httpStatus(ee *model.ErrorEnvelope) int {
	switch ee.Code {
	case model.ErrBadRequest:
		return http.StatusBadRequest
	case model.ErrUnauthorized, model.ErrSessionExpired:
		return http.StatusUnauthorized
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrConflict:
		return http.StatusConflict
	case model.ErrValidationError:
		return http.StatusUnprocessableEntity
	case model.ErrBackendError:
		if ee.Status >= 400 && ee.Status < 500 {
			return ee.Status
		}
		return http.StatusBadGateway
	case model.ErrBackendUnavailable:
		return http.StatusBadGateway
	case model.ErrBackendTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// WriteJSON marshals body before touching the response so an encoding
// failure still yields a clean 500.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			status = http.StatusInternalServerError
			data, _ = json.Marshal(errorBody{Error: model.NewInternalError()})
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		_, _ = w.Write(append(data, '\n'))
	}
}

// WriteError answers with the envelope found in err's chain. Anything else
// is reported as a generic INTERNAL_ERROR so internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	ee, ok := model.AsEnvelope(err)
	if !ok {
		ee = model.NewInternalError()
	}
	if ee.Message == "" {
		withText := *ee
		withText.Message = ee.Text()
		ee = &withText
	}
	WriteJSON(w, httpStatus(ee), errorBody{Error: ee})
}

// WriteRedirect answers 401 and tells the browser where to go.
func WriteRedirect(w http.ResponseWriter, ee *model.ErrorEnvelope, location string) {
	WriteJSON(w, http.StatusUnauthorized, errorBody{Error: ee, Redirect: location})
}

func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}
