// Package definition loads YAML entity-page definitions, validates them, and
// provides a fast-lookup registry with atomic pointer swap.
package definition

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/filter"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Loader scans directories for YAML definition files, parses them, computes
// SHA-256 checksums and fills page defaults from the entity configuration.
type Loader struct {
	defaults config.EntityConfig
	logger   *zap.Logger
}

// NewLoader creates a new definition Loader. Pages that omit scope_key,
// scope_root or rows_per_page_options inherit them from defaults.
func NewLoader(defaults config.EntityConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{defaults: defaults, logger: logger}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a DefinitionFile.
func (l *Loader) LoadAll(directories []string) ([]model.DefinitionFile, error) {
	var defs []model.DefinitionFile

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single YAML definition file. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (model.DefinitionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DefinitionFile{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.DefinitionFile{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	filters, err := detachFilters(&doc)
	if err != nil {
		return model.DefinitionFile{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	var def model.DefinitionFile
	if doc.Kind != 0 {
		if err := doc.Decode(&def); err != nil {
			return model.DefinitionFile{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	for i := range def.Pages {
		if raw, ok := filters[i]; ok {
			logger := l.logger.With(zap.String("file", path), zap.String("page", def.Pages[i].ID))
			def.Pages[i].Filters = filterDefinitions(filter.Resolve(raw, logger))
		}
		l.applyDefaults(&def.Pages[i])
	}

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = path

	return def, nil
}

func (l *Loader) applyDefaults(p *model.PageDefinition) {
	p.Endpoint = strings.Trim(strings.TrimSpace(p.Endpoint), "/")
	if p.ScopeKey == "" {
		p.ScopeKey = l.defaults.ScopeKey
	}
	if p.ScopeRoot == "" {
		p.ScopeRoot = l.defaults.ScopeRoot
	}
	if len(p.RowsPerPageOptions) == 0 {
		p.RowsPerPageOptions = append([]int(nil), l.defaults.RowsPerPageOptions...)
	}
	if p.EntityPlural == "" && p.Entity != "" {
		p.EntityPlural = strings.ToLower(p.Entity) + "s"
	}
	if p.Route == "" && p.Endpoint != "" {
		p.Route = "/" + p.Endpoint
	}
	if p.SearchPlaceholder == "" && p.EntityPlural != "" {
		p.SearchPlaceholder = "Search " + p.EntityPlural + "..."
	}
	for i := range p.Filters {
		if p.Filters[i].Type == "" {
			p.Filters[i].Type = model.FilterText
		}
	}
}

// detachFilters removes the filters entry of every page from doc and returns
// its loosely decoded value by page index. Filter configuration that is not
// a list of filter objects must not reject the whole file.
func detachFilters(doc *yaml.Node) (map[int]any, error) {
	out := make(map[int]any)
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return out, nil
	}
	pages := mappingValue(doc.Content[0], "pages")
	if pages == nil || pages.Kind != yaml.SequenceNode {
		return out, nil
	}
	for i, page := range pages.Content {
		if page.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(page.Content); j += 2 {
			if page.Content[j].Value != "filters" {
				continue
			}
			var raw any
			if err := page.Content[j+1].Decode(&raw); err != nil {
				return nil, fmt.Errorf("pages[%d].filters: %w", i, err)
			}
			out[i] = raw
			page.Content = append(page.Content[:j], page.Content[j+2:]...)
			break
		}
	}
	return out, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func filterDefinitions(fds []model.FilterDescriptor) []model.FilterDefinition {
	if len(fds) == 0 {
		return nil
	}
	out := make([]model.FilterDefinition, 0, len(fds))
	for _, fd := range fds {
		f := model.FilterDefinition{Key: fd.Key, Label: fd.Label, Type: fd.Type}
		for _, o := range fd.Options {
			f.Options = append(f.Options, model.StaticOption{Label: o.Label, Value: o.Value})
		}
		out = append(out, f)
	}
	return out
}
