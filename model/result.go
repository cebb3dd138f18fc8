package model

// Result is the uniform outcome of a feature-level operation (create, update,
// archive, bulk actions). Feature operations never return raw errors to the
// page; they resolve to a Result instead.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`

	// Invalidate lists the page state the orchestrator must refetch.
	Invalidate []Target `json:"-"`
}

// Succeeded builds a successful Result.
func Succeeded(message string, data any, invalidate ...Target) Result {
	return Result{Success: true, Message: message, Data: data, Invalidate: invalidate}
}

// Failed builds a failed Result from an error. The envelope message wins,
// then fallback, then the code's default message.
func Failed(err error, fallback string) Result {
	r := Result{Error: fallback, Code: ErrInternalError}
	ee, ok := AsEnvelope(err)
	if !ok {
		if r.Error == "" {
			r.Error = defaultMessages[ErrInternalError]
		}
		return r
	}
	r.Code = ee.Code
	switch {
	case ee.Message != "":
		r.Error = ee.Message
	case r.Error == "":
		r.Error = ee.Text()
	}
	return r
}

// Invalidates reports whether the result asks for the given target.
func (r Result) Invalidates(t Target) bool {
	for _, v := range r.Invalidate {
		if v == t {
			return true
		}
	}
	return false
}
