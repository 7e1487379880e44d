package dashboard

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"autodash-backend/internal/models"
)

// Layout is the portable description of an assembled dashboard: the chart
// list in display order plus the KPI card selection. It round-trips through
// YAML so a dashboard can be saved and restored across sessions.
type Layout struct {
	Resolution string        `yaml:"resolution,omitempty"`
	KPICards   []string      `yaml:"kpi_cards,omitempty"`
	Charts     []layoutChart `yaml:"charts"`
}

type layoutChart struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Type        string   `yaml:"chart_type"`
	XField      string   `yaml:"x_field,omitempty"`
	YFields     []string `yaml:"y_fields,omitempty"`
	Aggregation string   `yaml:"aggregation"`
	ColorField  string   `yaml:"color_field,omitempty"`
	SizeField   string   `yaml:"size_field,omitempty"`
	NamesField  string   `yaml:"names_field,omitempty"`
	ValuesField string   `yaml:"values_field,omitempty"`
}

// FromCharts builds a layout from the live dashboard state.
func FromCharts(charts []models.ChartSpec, kpiCards []string, resolution string) Layout {
	layout := Layout{Resolution: resolution, KPICards: kpiCards}
	for _, c := range charts {
		layout.Charts = append(layout.Charts, layoutChart{
			ID:          c.ID,
			Title:       c.Title,
			Type:        c.Type,
			XField:      c.XField,
			YFields:     c.YFields,
			Aggregation: c.Aggregation,
			ColorField:  c.ColorField,
			SizeField:   c.SizeField,
			NamesField:  c.NamesField,
			ValuesField: c.ValuesField,
		})
	}
	return layout
}

// Specs converts the layout back to chart specs, validating each entry.
func (l Layout) Specs() ([]models.ChartSpec, error) {
	specs := make([]models.ChartSpec, 0, len(l.Charts))
	for i, c := range l.Charts {
		if !models.ValidChartType(c.Type) {
			return nil, fmt.Errorf("chart %d: unknown chart type %q", i, c.Type)
		}
		agg := c.Aggregation
		if agg == "" {
			agg = models.AggNone
		}
		if !models.ValidAggregation(agg) {
			return nil, fmt.Errorf("chart %d: unknown aggregation %q", i, c.Aggregation)
		}
		specs = append(specs, models.ChartSpec{
			ID:          c.ID,
			Title:       c.Title,
			Type:        c.Type,
			XField:      c.XField,
			YFields:     c.YFields,
			Aggregation: agg,
			ColorField:  c.ColorField,
			SizeField:   c.SizeField,
			NamesField:  c.NamesField,
			ValuesField: c.ValuesField,
		})
	}
	return specs, nil
}

// Encode renders the layout as YAML.
func (l Layout) Encode() ([]byte, error) {
	return yaml.Marshal(l)
}

// Decode parses a YAML layout.
func Decode(data []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	return l, nil
}
