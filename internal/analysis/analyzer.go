package analysis

import (
	"fmt"
	"math"
	"sort"

	"autodash-backend/internal/dataset"
)

// Analyzer runs the post-cleaning analysis suite: correlation matrix,
// outlier flagging and key driver ranking.
type Analyzer struct {
	profiler *Profiler
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{profiler: NewProfiler()}
}

// Result bundles the outcome of a full analysis pass.
type Result struct {
	Profiles           []ColumnProfile `json:"profiles"`
	CorrelationColumns []string        `json:"correlation_columns,omitempty"`
	CorrelationMatrix  [][]float64     `json:"correlation_matrix,omitempty"`
	OutliersIdentified int             `json:"outliers_identified"`
}

// Run profiles every column, builds the numeric correlation matrix and
// flags outlier rows.
func (a *Analyzer) Run(t *dataset.Table) Result {
	result := Result{Profiles: a.profiler.ProfileTable(t)}

	cols, matrix := a.CorrelationMatrix(t)
	if len(cols) > 1 {
		result.CorrelationColumns = cols
		result.CorrelationMatrix = matrix
	}
	result.OutliersIdentified = len(a.OutlierRows(t))
	return result
}

// CorrelationMatrix returns the pairwise Pearson matrix over the numeric
// columns, in column order.
func (a *Analyzer) CorrelationMatrix(t *dataset.Table) ([]string, [][]float64) {
	var series [][]float64
	var names []string
	for i := range t.Columns {
		if t.Columns[i].Type == dataset.Numeric {
			names = append(names, t.Columns[i].Name)
			series = append(series, t.Columns[i].Numbers)
		}
	}

	matrix := make([][]float64, len(series))
	for i := range series {
		matrix[i] = make([]float64, len(series))
		for j := range series {
			if i == j {
				matrix[i][j] = 1
				continue
			}
			matrix[i][j] = Pearson(series[i], series[j])
		}
	}
	return names, matrix
}

// Driver is one entry of a key-driver ranking.
type Driver struct {
	Column            string  `json:"column"`
	Correlation       float64 `json:"correlation"`
	MutualInformation float64 `json:"mutual_information"`
}

// KeyDrivers ranks the numeric columns most associated with the target by
// absolute correlation, strongest first, capped at five. Mutual information
// is reported alongside to surface non-linear association.
func (a *Analyzer) KeyDrivers(t *dataset.Table, target string) ([]Driver, error) {
	targetCol, ok := t.Column(target)
	if !ok {
		return nil, fmt.Errorf("column %q not found", target)
	}
	if targetCol.Type != dataset.Numeric {
		return nil, fmt.Errorf("column %q is not numeric", target)
	}

	var drivers []Driver
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.Type != dataset.Numeric || col.Name == target {
			continue
		}
		drivers = append(drivers, Driver{
			Column:            col.Name,
			Correlation:       Pearson(targetCol.Numbers, col.Numbers),
			MutualInformation: MutualInformation(targetCol.Numbers, col.Numbers),
		})
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].Correlation) > math.Abs(drivers[j].Correlation)
	})
	if len(drivers) > 5 {
		drivers = drivers[:5]
	}
	return drivers, nil
}

// OutlierRows flags rows where any numeric cell falls outside the Tukey
// fences (1.5 IQR beyond the quartiles) of its column. Deterministic, in
// row order.
func (a *Analyzer) OutlierRows(t *dataset.Table) []int {
	rows := t.NumRows()
	if rows == 0 {
		return nil
	}

	flagged := make([]bool, rows)
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.Type != dataset.Numeric || len(col.Numbers) < 4 {
			continue
		}
		q1 := Quantile(col.Numbers, 0.25)
		q3 := Quantile(col.Numbers, 0.75)
		iqr := q3 - q1
		lo := q1 - 1.5*iqr
		hi := q3 + 1.5*iqr
		for ri, v := range col.Numbers {
			if v < lo || v > hi {
				flagged[ri] = true
			}
		}
	}

	var out []int
	for ri, f := range flagged {
		if f {
			out = append(out, ri)
		}
	}
	return out
}
