package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// GetJSON performs a GET and decodes the response envelope.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (Envelope, error) {
	return c.envelopeCall(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// PostJSON performs a POST with a JSON body and decodes the response envelope.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (Envelope, error) {
	return c.envelopeCall(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// PutJSON performs a PUT with a JSON body and decodes the response envelope.
func (c *Client) PutJSON(ctx context.Context, path string, body any) (Envelope, error) {
	return c.envelopeCall(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE and decodes the response envelope.
func (c *Client) Delete(ctx context.Context, path string) (Envelope, error) {
	return c.envelopeCall(ctx, Request{Method: http.MethodDelete, Path: path})
}

// Upload posts a multipart form and decodes the response envelope.
func (c *Client) Upload(ctx context.Context, path string, form *Multipart) (Envelope, error) {
	return c.envelopeCall(ctx, Request{Method: http.MethodPost, Path: path, Multipart: form})
}

// Download performs a GET for a binary body. The body is returned as is
// together with the response headers.
func (c *Client) Download(ctx context.Context, path string, query url.Values) (*Response, error) {
	header := http.Header{}
	header.Set("Accept", "*/*")
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Header: header})
}

func (c *Client) envelopeCall(ctx context.Context, req Request) (Envelope, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return Envelope{}, err
	}
	env, err := DecodeEnvelope(resp.Body)
	if err != nil {
		return Envelope{}, model.NewBackendError(resp.Status, "")
	}
	if env.explicitFailure {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return env, model.NewBackendError(resp.Status, msg)
	}
	return env, nil
}
