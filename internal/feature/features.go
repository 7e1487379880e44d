package feature

import (
	"fmt"
	"math"
	"sort"

	"autodash-backend/internal/analysis"
	"autodash-backend/internal/dataset"
)

// maxAutoSourceColumns caps how many numeric columns feed the pairwise
// transforms, keeping the feature explosion bounded on wide tables.
const maxAutoSourceColumns = 8

// divisionEpsilon avoids division by zero in derived ratios.
const divisionEpsilon = 1e-6

// AutoEngineer derives new columns from the numeric columns already in the
// table: pairwise sums and products plus a percentile rank per column. It
// returns the number of columns added.
func AutoEngineer(t *dataset.Table) int {
	numeric := t.NumericColumns()
	if len(numeric) > maxAutoSourceColumns {
		numeric = numeric[:maxAutoSourceColumns]
	}

	added := 0
	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			a, _ := t.Column(numeric[i])
			b, _ := t.Column(numeric[j])
			if addDerived(t, numeric[i]+"_plus_"+numeric[j], combine(a.Numbers, b.Numbers, func(x, y float64) float64 { return x + y })) {
				added++
			}
			a, _ = t.Column(numeric[i])
			b, _ = t.Column(numeric[j])
			if addDerived(t, numeric[i]+"_times_"+numeric[j], combine(a.Numbers, b.Numbers, func(x, y float64) float64 { return x * y })) {
				added++
			}
		}
	}
	for _, name := range numeric {
		col, _ := t.Column(name)
		if addDerived(t, name+"_pctile", percentileRank(col.Numbers)) {
			added++
		}
	}
	return added
}

// Definition describes a user-defined feature.
type Definition struct {
	Type string `json:"type"` // arithmetic | unary | categorical_count
	Col1 string `json:"col1,omitempty"`
	Col2 string `json:"col2,omitempty"`
	Col  string `json:"col,omitempty"`
	Op   string `json:"op"`
}

// Apply creates the feature described by def and returns the new column
// name. Unlike the cleaning core this can fail: the definition comes from
// user input and may reference missing columns or unknown operations.
func Apply(t *dataset.Table, def Definition) (string, error) {
	switch def.Type {
	case "arithmetic":
		return applyArithmetic(t, def)
	case "unary":
		return applyUnary(t, def)
	case "categorical_count":
		return applyCategoricalCount(t, def)
	default:
		return "", fmt.Errorf("unknown feature type %q", def.Type)
	}
}

func applyArithmetic(t *dataset.Table, def Definition) (string, error) {
	a, err := numericColumn(t, def.Col1)
	if err != nil {
		return "", err
	}
	b, err := numericColumn(t, def.Col2)
	if err != nil {
		return "", err
	}

	var fn func(x, y float64) float64
	switch def.Op {
	case "add":
		fn = func(x, y float64) float64 { return x + y }
	case "subtract":
		fn = func(x, y float64) float64 { return x - y }
	case "multiply":
		fn = func(x, y float64) float64 { return x * y }
	case "divide":
		fn = func(x, y float64) float64 { return x / (y + divisionEpsilon) }
	default:
		return "", fmt.Errorf("unknown arithmetic op %q", def.Op)
	}

	name := fmt.Sprintf("%s_%s_%s", def.Col1, def.Op, def.Col2)
	col := numericColumnOf(name, combine(a.Numbers, b.Numbers, fn))
	if err := t.AddColumn(col); err != nil {
		return "", err
	}
	return name, nil
}

func applyUnary(t *dataset.Table, def Definition) (string, error) {
	src, err := numericColumn(t, def.Col)
	if err != nil {
		return "", err
	}

	out := make([]float64, len(src.Numbers))
	switch def.Op {
	case "log":
		for i, v := range src.Numbers {
			out[i] = math.Log(v + 1)
		}
	case "square":
		for i, v := range src.Numbers {
			out[i] = v * v
		}
	case "sqrt":
		for i, v := range src.Numbers {
			if v < 0 {
				v = 0
			}
			out[i] = math.Sqrt(v)
		}
	case "average":
		avg := analysis.Mean(src.Numbers)
		for i := range out {
			out[i] = avg
		}
	default:
		return "", fmt.Errorf("unknown unary op %q", def.Op)
	}

	name := fmt.Sprintf("%s_of_%s", def.Op, def.Col)
	if err := t.AddColumn(numericColumnOf(name, out)); err != nil {
		return "", err
	}
	return name, nil
}

func applyCategoricalCount(t *dataset.Table, def Definition) (string, error) {
	src, ok := t.Column(def.Col)
	if !ok {
		return "", fmt.Errorf("column %q not found", def.Col)
	}
	if src.Type != dataset.Categorical && src.Type != dataset.Text {
		return "", fmt.Errorf("column %q is not categorical", def.Col)
	}

	counts := make(map[string]int)
	for _, v := range src.Labels {
		counts[v]++
	}
	out := make([]float64, len(src.Labels))
	for i, v := range src.Labels {
		out[i] = float64(counts[v])
	}

	name := def.Col + "_counts"
	if err := t.AddColumn(numericColumnOf(name, out)); err != nil {
		return "", err
	}
	return name, nil
}

func numericColumn(t *dataset.Table, name string) (*dataset.Column, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	if col.Type != dataset.Numeric {
		return nil, fmt.Errorf("column %q is not numeric", name)
	}
	return col, nil
}

func numericColumnOf(name string, vals []float64) dataset.Column {
	return dataset.Column{
		Name:    name,
		Type:    dataset.Numeric,
		Numbers: vals,
		Missing: make([]bool, len(vals)),
	}
}

func addDerived(t *dataset.Table, name string, vals []float64) bool {
	return t.AddColumn(numericColumnOf(name, vals)) == nil
}

func combine(a, b []float64, fn func(x, y float64) float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = fn(a[i], b[i])
	}
	return out
}

// percentileRank maps each value to its percentile (0..100) within the
// column.
func percentileRank(vals []float64) []float64 {
	n := len(vals)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	for i, v := range vals {
		// Rank of the first occurrence keeps ties deterministic.
		rank := sort.SearchFloat64s(sorted, v)
		out[i] = float64(rank) / float64(n-1) * 100
	}
	return out
}
