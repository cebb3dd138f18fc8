package kpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// defaultThreshold applies when a metric declares no progress threshold.
const defaultThreshold = 50

// Trend directions.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// Block is one rendered KPI card.
type Block struct {
	Placeholder bool         `json:"placeholder,omitempty"`
	Key         string       `json:"key,omitempty"`
	Label       string       `json:"label,omitempty"`
	Value       string       `json:"value,omitempty"`
	Icon        string       `json:"icon,omitempty"`
	Color       string       `json:"color,omitempty"`
	Subtitle    string       `json:"subtitle,omitempty"`
	Trend       *Trend       `json:"trend,omitempty"`
	Progress    *ProgressBar `json:"progress,omitempty"`
	Alert       string       `json:"alert,omitempty"`
}

// Trend is the signed, coloured trend indicator.
type Trend struct {
	Direction string `json:"direction"`
	Text      string `json:"text"`
	Color     string `json:"color"`
}

// ProgressBar is a 0-100 bar coloured against its threshold.
type ProgressBar struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Render lays out metrics. While loading it returns expected placeholder
// blocks. metrics must be a []model.Metric; anything else renders nothing.
func Render(metrics any, loading bool, expected int) []Block {
	list, ok := metrics.([]model.Metric)
	if loading {
		n := expected
		if n <= 0 && ok {
			n = len(list)
		}
		blocks := make([]Block, n)
		for i := range blocks {
			blocks[i].Placeholder = true
		}
		return blocks
	}
	if !ok {
		return nil
	}

	blocks := make([]Block, 0, len(list))
	for _, m := range list {
		b := Block{
			Key:      m.Key,
			Label:    m.Label,
			Value:    displayValue(m.Value),
			Icon:     m.Icon,
			Color:    m.Color,
			Subtitle: m.Subtitle,
			Alert:    m.Alert,
		}
		if m.Trend != nil {
			b.Trend = trendFor(*m.Trend)
		}
		if m.Progress != nil {
			threshold := m.Progress.Threshold
			if threshold == 0 {
				threshold = defaultThreshold
			}
			color := "warning"
			if m.Progress.Value >= threshold {
				color = "success"
			}
			b.Progress = &ProgressBar{Value: m.Progress.Value, Color: color}
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func trendFor(v float64) *Trend {
	text := strconv.FormatFloat(math.Abs(v), 'f', -1, 64) + "%"
	switch {
	case v > 0:
		return &Trend{Direction: TrendUp, Text: "+" + text, Color: "success"}
	case v < 0:
		return &Trend{Direction: TrendDown, Text: "-" + text, Color: "error"}
	}
	return &Trend{Direction: TrendFlat, Text: "0%", Color: "default"}
}

func displayValue(v any) string {
	switch n := v.(type) {
	case nil:
		return "0"
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return groupThousands(int64(n))
		}
		return strconv.FormatFloat(n, 'f', 2, 64)
	case int:
		return groupThousands(int64(n))
	case string:
		return n
	}
	return fmt.Sprint(v)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
