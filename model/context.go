package model

import "context"

// RequestContext identifies one console request, or one CLI invocation,
// across log lines, spans and backend calls. Values stored in a
// context.Context are treated as read-only; bind more fields on a copy.
type RequestContext struct {
	CorrelationID string
	SubjectID     string // token subject once signed in
	PageID        string
	Scope         string // campus id the page is scoped to
	TraceID       string
}

type requestContextKey struct{}

func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the stored RequestContext or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// WithPage copies rc and binds the copy to a page and scope. It is safe on
// a nil receiver.
func (rc *RequestContext) WithPage(pageID, scope string) *RequestContext {
	out := &RequestContext{}
	if rc != nil {
		*out = *rc
	}
	out.PageID, out.Scope = pageID, scope
	return out
}
