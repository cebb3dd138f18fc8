package transport

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// responseSink streams a download to the browser as an attachment.
type responseSink struct {
	w         http.ResponseWriter
	delivered bool
}

// Deliver writes the file with a Content-Disposition attachment header.
func (s *responseSink) Deliver(_ context.Context, file model.Download, body []byte) (model.Download, error) {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := s.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	h.Set("Content-Length", strconv.Itoa(len(body)))
	s.w.WriteHeader(http.StatusOK)
	s.delivered = true

	if _, err := s.w.Write(body); err != nil {
		return file, fmt.Errorf("transport: streaming download: %w", err)
	}
	file.Size = int64(len(body))
	return file, nil
}
