// Package filter holds the filter and search bar state: resolution of filter
// configuration, active filter counting, chips and reset.
package filter

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Source is where the filter descriptors of a page come from: a fixed list
// or a function computing one.
type Source struct {
	static   []model.FilterDescriptor
	computed func() []model.FilterDescriptor
}

// Static wraps a fixed descriptor list.
func Static(list []model.FilterDescriptor) Source {
	return Source{static: list}
}

// Computed wraps a function returning the descriptor list.
func Computed(fn func() []model.FilterDescriptor) Source {
	return Source{computed: fn}
}

// List resolves the source into a plain list.
func (s Source) List() []model.FilterDescriptor {
	if s.computed != nil {
		return s.computed()
	}
	return s.static
}

// Resolve converts loosely typed filter configuration into descriptors. It
// accepts a descriptor slice, a function returning one, or a decoded
// JSON/YAML list of objects. A function or a non-list is tolerated with a
// warning; a non-list yields no filters.
func Resolve(v any, logger *zap.Logger) []model.FilterDescriptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch val := v.(type) {
	case nil:
		return nil
	case Source:
		return val.List()
	case []model.FilterDescriptor:
		return val
	case func() []model.FilterDescriptor:
		logger.Warn("filters supplied as a function; resolving it")
		return val()
	case []any:
		out := make([]model.FilterDescriptor, 0, len(val))
		for i, item := range val {
			fd, ok := descriptorFromMap(item)
			if !ok {
				logger.Warn("skipping malformed filter entry", zap.Int("index", i))
				continue
			}
			out = append(out, fd)
		}
		return out
	default:
		logger.Warn("filters is not a list; ignoring it", zap.String("type", fmt.Sprintf("%T", v)))
		return nil
	}
}

func descriptorFromMap(item any) (model.FilterDescriptor, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return model.FilterDescriptor{}, false
	}
	key, _ := m["key"].(string)
	if key == "" {
		return model.FilterDescriptor{}, false
	}
	fd := model.FilterDescriptor{Key: key, Type: model.FilterText}
	fd.Label, _ = m["label"].(string)
	if fd.Label == "" {
		fd.Label = key
	}
	if t, ok := m["type"].(string); ok && t != "" {
		fd.Type = t
	}
	if opts, ok := m["options"].([]any); ok {
		for _, o := range opts {
			om, ok := o.(map[string]any)
			if !ok {
				continue
			}
			value, _ := model.FilterValueString(om["value"])
			label, _ := om["label"].(string)
			if label == "" {
				label = value
			}
			fd.Options = append(fd.Options, model.OptionDescriptor{Label: label, Value: value})
		}
	}
	return fd, true
}
