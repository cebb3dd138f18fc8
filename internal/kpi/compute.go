// Package kpi turns scope dashboard data into metric descriptors and lays
// them out as summary blocks.
package kpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Compute maps dashboard data to metrics using the dot paths of each
// definition. Missing values resolve to 0; missing decorations are omitted.
func Compute(source map[string]any, defs []model.MetricDefinition) []model.Metric {
	out := make([]model.Metric, 0, len(defs))
	for _, d := range defs {
		m := model.Metric{
			Key:   d.Key,
			Label: d.Label,
			Icon:  d.Icon,
			Color: d.Color,
		}

		raw, ok := Lookup(source, d.ValuePath)
		if !ok {
			raw = 0.0
		}
		m.Value = formatValue(raw, d.Format)

		if d.TrendPath != "" {
			if v, ok := number(source, d.TrendPath); ok {
				m.Trend = &v
			}
		}
		if d.ProgressPath != "" {
			if v, ok := number(source, d.ProgressPath); ok {
				m.Progress = &model.Progress{
					Value:     math.Max(0, math.Min(100, v)),
					Threshold: d.ProgressThreshold,
				}
			}
		}
		if d.SubtitlePath != "" {
			if v, ok := Lookup(source, d.SubtitlePath); ok && v != nil {
				m.Subtitle = fmt.Sprint(v)
			}
		}
		if d.AlertPath != "" {
			m.Alert = alertText(source, d.AlertPath)
		}
		out = append(out, m)
	}
	return out
}

// Lookup resolves a dot-separated path ("students.active") in nested maps.
func Lookup(source map[string]any, path string) (any, bool) {
	if path == "" || source == nil {
		return nil, false
	}
	var cur any = source
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func number(source map[string]any, path string) (float64, bool) {
	v, ok := Lookup(source, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		return f, err == nil
	}
	return 0, false
}

func formatValue(v any, format string) any {
	f, isNum := v.(float64)
	if i, ok := v.(int); ok {
		f, isNum = float64(i), true
	}
	if !isNum {
		return v
	}
	switch format {
	case "percent":
		return strconv.FormatFloat(math.Round(f*10)/10, 'f', -1, 64) + "%"
	case "currency":
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return f
}

// alertText renders the alert badge: a non-empty string, or a positive count.
func alertText(source map[string]any, path string) string {
	v, ok := Lookup(source, path)
	if !ok {
		return ""
	}
	switch a := v.(type) {
	case string:
		return a
	case float64:
		if a > 0 {
			return strconv.FormatFloat(a, 'f', -1, 64)
		}
	case bool:
		if a {
			return "!"
		}
	}
	return ""
}
