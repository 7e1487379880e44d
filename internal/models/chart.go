package models

// Chart types supported by the dashboard builder.
const (
	ChartBar       = "bar"
	ChartLine      = "line"
	ChartArea      = "area"
	ChartScatter   = "scatter"
	ChartScatter3D = "scatter3d"
	ChartBubble    = "bubble"
	ChartDonut     = "donut"
	ChartTreemap   = "treemap"
	ChartSunburst  = "sunburst"
	ChartFunnel    = "funnel"
	ChartHistogram = "histogram"
	ChartBox       = "box"
	ChartViolin    = "violin"
	ChartHeatmap   = "heatmap"
	ChartTable     = "table"
	ChartGantt     = "gantt"
)

// Aggregations applicable to a chart's measure.
const (
	AggSum   = "sum"
	AggMean  = "mean"
	AggCount = "count"
	AggNone  = "none"
)

// ChartSpec describes a single chart: its fields and aggregation. Produced
// by the dashboard builder, consumed read-only by the narrative generator.
type ChartSpec struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Type        string   `json:"chart_type"`
	XField      string   `json:"x_field,omitempty"`
	YFields     []string `json:"y_fields,omitempty"`
	Aggregation string   `json:"aggregation"`
	ColorField  string   `json:"color_field,omitempty"`
	SizeField   string   `json:"size_field,omitempty"`
	NamesField  string   `json:"names_field,omitempty"`
	ValuesField string   `json:"values_field,omitempty"`
}

// Dimension returns the field the chart groups by: the composition names
// field when set, otherwise the x axis.
func (s ChartSpec) Dimension() string {
	if s.NamesField != "" {
		return s.NamesField
	}
	return s.XField
}

// Measure returns the field the chart measures: the composition values
// field when set, otherwise the first y field.
func (s ChartSpec) Measure() string {
	if s.ValuesField != "" {
		return s.ValuesField
	}
	if len(s.YFields) > 0 {
		return s.YFields[0]
	}
	return ""
}

// Fields returns every field the chart references, in a fixed order.
func (s ChartSpec) Fields() []string {
	var fields []string
	add := func(f string) {
		if f == "" {
			return
		}
		for _, existing := range fields {
			if existing == f {
				return
			}
		}
		fields = append(fields, f)
	}
	add(s.XField)
	for _, y := range s.YFields {
		add(y)
	}
	add(s.NamesField)
	add(s.ValuesField)
	add(s.SizeField)
	add(s.ColorField)
	return fields
}

// ValidChartType reports whether the chart type is one the builder knows.
func ValidChartType(t string) bool {
	switch t {
	case ChartBar, ChartLine, ChartArea, ChartScatter, ChartScatter3D,
		ChartBubble, ChartDonut, ChartTreemap, ChartSunburst, ChartFunnel,
		ChartHistogram, ChartBox, ChartViolin, ChartHeatmap, ChartTable,
		ChartGantt:
		return true
	}
	return false
}

// ValidAggregation reports whether the aggregation is supported.
func ValidAggregation(a string) bool {
	switch a {
	case AggSum, AggMean, AggCount, AggNone:
		return true
	}
	return false
}
