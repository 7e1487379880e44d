package analysis

import (
	"math"

	"autodash-backend/internal/dataset"
)

// NumericSummary holds basic statistics for a numeric column.
type NumericSummary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// ColumnProfile holds quality metrics for one column of a cleaned table.
type ColumnProfile struct {
	Name            string             `json:"name"`
	Type            dataset.ColumnType `json:"type"`
	TotalRows       int                `json:"total_rows"`
	DistinctCount   int                `json:"distinct_count"`
	UniquenessRatio float64            `json:"uniqueness_ratio"`
	Entropy         float64            `json:"entropy"`
	Numeric         *NumericSummary    `json:"numeric,omitempty"`
}

// Profiler computes per-column quality metrics.
type Profiler struct{}

// NewProfiler creates a profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// ProfileColumn computes metrics for a single column.
func (p *Profiler) ProfileColumn(col *dataset.Column) ColumnProfile {
	profile := ColumnProfile{
		Name:      col.Name,
		Type:      col.Type,
		TotalRows: col.Len(),
	}

	counts := make(map[string]int)
	for i := 0; i < col.Len(); i++ {
		counts[col.CellString(i)]++
	}
	profile.DistinctCount = len(counts)
	if col.Len() > 0 {
		profile.UniquenessRatio = float64(len(counts)) / float64(col.Len())
	}
	profile.Entropy = shannonEntropy(counts, col.Len())

	if col.Type == dataset.Numeric && col.Len() > 0 {
		profile.Numeric = &NumericSummary{
			Min:    col.Numbers[0],
			Max:    col.Numbers[0],
			Mean:   Mean(col.Numbers),
			Median: Median(col.Numbers),
			StdDev: StdDev(col.Numbers),
		}
		for _, v := range col.Numbers {
			if v < profile.Numeric.Min {
				profile.Numeric.Min = v
			}
			if v > profile.Numeric.Max {
				profile.Numeric.Max = v
			}
		}
	}
	return profile
}

// ProfileTable profiles every column in order.
func (p *Profiler) ProfileTable(t *dataset.Table) []ColumnProfile {
	profiles := make([]ColumnProfile, len(t.Columns))
	for i := range t.Columns {
		profiles[i] = p.ProfileColumn(&t.Columns[i])
	}
	return profiles
}

// shannonEntropy computes Shannon entropy in bits over a value histogram.
func shannonEntropy(counts map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / float64(total)
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
