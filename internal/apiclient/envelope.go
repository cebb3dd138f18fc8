package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Envelope is the standard school API response wrapper:
// {success, message?, error?, data?, pagination?}.
type Envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`

	// explicitFailure is set when the body carried "success": false.
	explicitFailure bool
}

// Pagination is the list metadata returned next to list data.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
	Pages int `json:"pages,omitempty"`
}

// Total returns the pagination total, or 0 when absent.
func (e Envelope) Total() int {
	if e.Pagination == nil {
		return 0
	}
	return e.Pagination.Total
}

// DecodeData unmarshals the data member into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("apiclient: decode data: %w", err)
	}
	return nil
}

// DecodeEnvelope parses a response body. An empty body yields a successful
// empty envelope.
func DecodeEnvelope(body []byte) (Envelope, error) {
	if len(body) == 0 {
		return Envelope{Success: true}, nil
	}
	var raw struct {
		Success    *bool           `json:"success"`
		Message    string          `json:"message"`
		Error      string          `json:"error"`
		Data       json.RawMessage `json:"data"`
		Pagination *Pagination     `json:"pagination"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("apiclient: decode envelope: %w", err)
	}
	env := Envelope{
		Success:    raw.Success == nil || *raw.Success,
		Message:    raw.Message,
		Error:      raw.Error,
		Data:       raw.Data,
		Pagination: raw.Pagination,
	}
	env.explicitFailure = raw.Success != nil && !*raw.Success
	return env, nil
}

// errorFromResponse builds the error for a status >= 400.
func errorFromResponse(resp *Response) error {
	msg := backendMessage(resp.Body, "")
	switch resp.Status {
	case http.StatusUnauthorized:
		if msg == "" {
			msg = "Not authorized"
		}
		return model.NewUnauthorizedError(msg)
	case http.StatusNotFound:
		e := model.NewNotFoundError(msg)
		e.Status = resp.Status
		return e
	}
	return model.NewBackendError(resp.Status, msg)
}

// backendMessage extracts the human-readable message from a JSON error body:
// "message" first, then "error".
func backendMessage(body []byte, fallback string) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return fallback
	}
	if payload.Message != "" {
		return payload.Message
	}
	switch e := payload.Error.(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		if m, ok := e["message"].(string); ok && m != "" {
			return m
		}
	}
	return fallback
}

// IsCancelled reports whether err stems from a cancelled context. Cancelled
// requests are not failures and must not be shown to the user.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// MessageFrom normalises err to a human-readable message: the backend
// provided message when there is one, fallback otherwise.
func MessageFrom(err error, fallback string) string {
	if ee, ok := model.AsEnvelope(err); ok && ee.Message != "" {
		return ee.Message
	}
	return fallback
}
