package feature

import (
	"autodash-backend/internal/analysis"
	"autodash-backend/internal/dataset"
)

// Measures computes single-value KPI measures from a cleaned table: sum and
// average for every non-constant numeric column, distinct count for every
// categorical column.
func Measures(t *dataset.Table) map[string]float64 {
	measures := make(map[string]float64)
	for i := range t.Columns {
		col := &t.Columns[i]
		switch col.Type {
		case dataset.Numeric:
			if distinctFloats(col.Numbers) < 2 {
				continue
			}
			sum := 0.0
			for _, v := range col.Numbers {
				sum += v
			}
			measures["Sum of "+col.Name] = sum
			measures["Average of "+col.Name] = analysis.Mean(col.Numbers)
		case dataset.Categorical, dataset.Text:
			measures["Count of "+col.Name] = float64(distinctLabels(col.Labels))
		}
	}
	return measures
}

func distinctFloats(vals []float64) int {
	seen := make(map[float64]bool, len(vals))
	for _, v := range vals {
		seen[v] = true
	}
	return len(seen)
}

func distinctLabels(vals []string) int {
	seen := make(map[string]bool, len(vals))
	for _, v := range vals {
		seen[v] = true
	}
	return len(seen)
}
