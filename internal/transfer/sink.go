package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Sink delivers a downloaded file to the user.
type Sink interface {
	Deliver(ctx context.Context, file model.Download, body []byte) (model.Download, error)
}

// DirSink writes downloads into a directory. Existing files are never
// overwritten; a numeric suffix is added instead.
type DirSink struct {
	Dir string
}

// Deliver writes body under file.Filename and records the final location.
func (s DirSink) Deliver(_ context.Context, file model.Download, body []byte) (model.Download, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return file, fmt.Errorf("transfer: creating download dir: %w", err)
	}

	name := filepath.Base(file.Filename)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(s.Dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return file, fmt.Errorf("transfer: creating %s: %w", path, err)
		}
		_, werr := f.Write(body)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			os.Remove(path)
			return file, fmt.Errorf("transfer: writing %s: %w", path, err)
		}
		file.Filename = candidate
		file.Location = path
		file.Size = int64(len(body))
		return file, nil
	}
	return file, fmt.Errorf("transfer: no free file name for %s in %s", name, s.Dir)
}
