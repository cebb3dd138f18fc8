package definition

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally (struct tags) and across
// fields and files (unique ids, select options, bulk action prerequisites).
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator. Field paths in errors use the YAML
// key names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate checks all definition files and returns every problem found.
func (v *Validator) Validate(defs []model.DefinitionFile) []VError {
	var errs []VError
	pageOwners := make(map[string]string)

	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		errs = append(errs, v.validateFile(prefix, def)...)

		for j, p := range def.Pages {
			if p.ID == "" {
				continue
			}
			if owner, dup := pageOwners[p.ID]; dup {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.pages[%d].id", prefix, j),
					Code:    "DUPLICATE_ID",
					Message: fmt.Sprintf("page id %q is already declared in %s", p.ID, owner),
				})
				continue
			}
			owner := def.SourceFile
			if owner == "" {
				owner = prefix
			}
			pageOwners[p.ID] = owner
		}
	}
	return errs
}

func (v *Validator) validateFile(prefix string, def model.DefinitionFile) []VError {
	var errs []VError

	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}
	if len(def.Pages) == 0 {
		errs = append(errs, VError{Path: prefix + ".pages", Code: "REQUIRED", Message: "at least one page is required"})
	}

	errs = append(errs, v.structErrors(prefix, def)...)

	for i, p := range def.Pages {
		pp := fmt.Sprintf("%s.pages[%d]", prefix, i)
		errs = append(errs, v.validatePage(pp, p)...)
	}
	return errs
}

// structErrors runs the struct tag rules and maps each failure to a VError
// whose path is rooted at prefix.
func (v *Validator) structErrors(prefix string, def model.DefinitionFile) []VError {
	err := v.validate.Struct(def)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []VError{{Path: prefix, Code: "INVALID", Message: err.Error()}}
	}

	out := make([]VError, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i:]
		}
		out = append(out, VError{
			Path:    prefix + ns,
			Code:    tagCode(fe.Tag()),
			Message: tagMessage(fe),
		})
	}
	return out
}

func tagCode(tag string) string {
	switch tag {
	case "required", "min":
		return "REQUIRED"
	case "oneof":
		return "INVALID_VALUE"
	case "gt", "gte", "lte":
		return "OUT_OF_RANGE"
	default:
		return "INVALID"
	}
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s %q must be one of: %s", fe.Field(), fmt.Sprint(fe.Value()), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
}

func (v *Validator) validatePage(prefix string, p model.PageDefinition) []VError {
	var errs []VError

	if strings.ContainsAny(p.Endpoint, "?# ") {
		errs = append(errs, VError{
			Path:    prefix + ".endpoint",
			Code:    "INVALID_ENDPOINT",
			Message: fmt.Sprintf("endpoint %q must be a plain resource path", p.Endpoint),
		})
	}
	if p.ScopeKey == "" {
		errs = append(errs, VError{Path: prefix + ".scope_key", Code: "REQUIRED", Message: "scope_key is required"})
	}
	if p.ScopeRoot == "" {
		errs = append(errs, VError{Path: prefix + ".scope_root", Code: "REQUIRED", Message: "scope_root is required"})
	}

	fields := make(map[string]bool, len(p.Columns))
	for i, c := range p.Columns {
		if fields[c.Field] && c.Field != "" {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.columns[%d].field", prefix, i),
				Code:    "DUPLICATE_KEY",
				Message: fmt.Sprintf("column %q is declared twice", c.Field),
			})
		}
		fields[c.Field] = true
	}

	keys := make(map[string]bool, len(p.Filters))
	for i, f := range p.Filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		if keys[f.Key] && f.Key != "" {
			errs = append(errs, VError{Path: fp + ".key", Code: "DUPLICATE_KEY", Message: fmt.Sprintf("filter %q is declared twice", f.Key)})
		}
		keys[f.Key] = true
		if f.Type == model.FilterSelect && len(f.Options) == 0 {
			errs = append(errs, VError{Path: fp + ".options", Code: "MISSING_OPTIONS", Message: fmt.Sprintf("select filter %q needs options", f.Key)})
		}
		if f.Type == model.FilterText && len(f.Options) > 0 {
			errs = append(errs, VError{Path: fp + ".options", Code: "INVALID_VALUE", Message: fmt.Sprintf("text filter %q cannot declare options", f.Key)})
		}
	}

	kpis := make(map[string]bool, len(p.KPIs))
	for i, k := range p.KPIs {
		if kpis[k.Key] && k.Key != "" {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.kpis[%d].key", prefix, i),
				Code:    "DUPLICATE_KEY",
				Message: fmt.Sprintf("kpi %q is declared twice", k.Key),
			})
		}
		kpis[k.Key] = true
	}

	seen := make(map[string]bool, len(p.BulkActions))
	for i, a := range p.BulkActions {
		if seen[a] {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.bulk_actions[%d]", prefix, i),
				Code:    "DUPLICATE_KEY",
				Message: fmt.Sprintf("bulk action %q is listed twice", a),
			})
		}
		seen[a] = true
	}
	if seen[model.BulkReclassify] && p.RelatedLabel == "" {
		errs = append(errs, VError{
			Path:    prefix + ".related_label",
			Code:    "REQUIRED",
			Message: "related_label is required when the reclassify bulk action is enabled",
		})
	}

	return errs
}
