package narrative

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"autodash-backend/internal/analysis"
	"autodash-backend/internal/dataset"
	"autodash-backend/internal/models"
)

// Options holds the narrative thresholds. The defaults follow common
// practice; callers load them from configuration.
type Options struct {
	// FlatSlopeRatio: a trend is "flat" when the per-period slope magnitude
	// is below this fraction of the series value range.
	FlatSlopeRatio float64
	// WeakBand and StrongBand split |r| into weak / moderate / strong.
	WeakBand   float64
	StrongBand float64
}

// DefaultOptions returns the default narrative thresholds.
func DefaultOptions() Options {
	return Options{
		FlatSlopeRatio: 0.01,
		WeakBand:       0.2,
		StrongBand:     0.5,
	}
}

// Generator produces a one-sentence description of a chart's single most
// notable feature. It is a pure function of the chart spec and table:
// identical inputs produce byte-identical output, and a spec referencing
// fields the table does not have falls back to a generic sentence rather
// than failing.
type Generator struct {
	opts Options
}

// NewGenerator creates a narrative generator.
func NewGenerator(opts Options) *Generator {
	if opts.FlatSlopeRatio <= 0 {
		opts.FlatSlopeRatio = DefaultOptions().FlatSlopeRatio
	}
	if opts.WeakBand <= 0 {
		opts.WeakBand = DefaultOptions().WeakBand
	}
	if opts.StrongBand <= 0 {
		opts.StrongBand = DefaultOptions().StrongBand
	}
	return &Generator{opts: opts}
}

// Narrate applies the first matching rule:
//  1. numeric measure aggregated over a categorical dimension with at least
//     two categories: top category and its share of the total;
//  2. time series: trend direction and percent change first to last;
//  3. two numeric fields: correlation sign and strength;
//  4. fallback: row count and the fields involved, no interpretive claim.
func (g *Generator) Narrate(spec models.ChartSpec, t *dataset.Table) string {
	if t == nil {
		return g.fallback(spec, 0)
	}

	if s, ok := g.topCategory(spec, t); ok {
		return s
	}
	if s, ok := g.timeTrend(spec, t); ok {
		return s
	}
	if s, ok := g.correlation(spec, t); ok {
		return s
	}
	return g.fallback(spec, t.NumRows())
}

// topCategory handles aggregation of a numeric measure across a categorical
// dimension with two or more categories.
func (g *Generator) topCategory(spec models.ChartSpec, t *dataset.Table) (string, bool) {
	if spec.Aggregation == models.AggNone || spec.Aggregation == "" {
		return "", false
	}
	dim, ok := t.Column(spec.Dimension())
	if !ok || (dim.Type != dataset.Categorical && dim.Type != dataset.Text) {
		return "", false
	}
	measure, ok := t.Column(spec.Measure())
	if !ok || measure.Type != dataset.Numeric {
		return "", false
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[string]*bucket)
	var order []string
	for i := 0; i < dim.Len(); i++ {
		key := dim.Labels[i]
		b, seen := buckets[key]
		if !seen {
			b = &bucket{}
			buckets[key] = b
			order = append(order, key)
		}
		b.sum += measure.Numbers[i]
		b.count++
	}
	if len(buckets) < 2 {
		return "", false
	}

	agg := func(b *bucket) float64 {
		switch spec.Aggregation {
		case models.AggMean:
			return b.sum / float64(b.count)
		case models.AggCount:
			return float64(b.count)
		default:
			return b.sum
		}
	}

	// First-seen order breaks ties deterministically.
	top := order[0]
	topVal := agg(buckets[top])
	total := 0.0
	for _, key := range order {
		v := agg(buckets[key])
		total += v
		if v > topVal {
			top = key
			topVal = v
		}
	}
	if total == 0 {
		return "", false
	}

	share := topVal / total * 100
	return fmt.Sprintf("%s accounts for %.1f%% of total %s.", top, share, spec.Measure()), true
}

// timeTrend handles charts whose x axis is a datetime column.
func (g *Generator) timeTrend(spec models.ChartSpec, t *dataset.Table) (string, bool) {
	x, ok := t.Column(spec.XField)
	if !ok || x.Type != dataset.Datetime {
		return "", false
	}
	y, ok := t.Column(spec.Measure())
	if !ok || y.Type != dataset.Numeric || y.Len() < 2 {
		return "", false
	}

	// Order the series by time; ties keep row order.
	idx := make([]int, x.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return x.Times[idx[a]].Before(x.Times[idx[b]])
	})
	series := make([]float64, len(idx))
	for i, ri := range idx {
		series[i] = y.Numbers[ri]
	}

	slope, _ := analysis.Trend(series)
	minV, maxV := series[0], series[0]
	for _, v := range series {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	valueRange := maxV - minV

	direction := "flat"
	if valueRange > 0 && math.Abs(slope) >= g.opts.FlatSlopeRatio*valueRange {
		if slope > 0 {
			direction = "increasing"
		} else {
			direction = "decreasing"
		}
	}

	first, last := series[0], series[len(series)-1]
	if first == 0 {
		return fmt.Sprintf("Over the observed period, %s is %s (from %.2f to %.2f).",
			spec.Measure(), direction, first, last), true
	}
	pct := (last - first) / math.Abs(first) * 100
	return fmt.Sprintf("Over the observed period, %s is %s, a change of %.1f%% from the first to the last point.",
		spec.Measure(), direction, pct), true
}

// correlation handles charts plotting two numeric fields.
func (g *Generator) correlation(spec models.ChartSpec, t *dataset.Table) (string, bool) {
	x, ok := t.Column(spec.XField)
	if !ok || x.Type != dataset.Numeric {
		return "", false
	}
	y, ok := t.Column(spec.Measure())
	if !ok || y.Type != dataset.Numeric {
		return "", false
	}

	r := analysis.Pearson(x.Numbers, y.Numbers)
	abs := math.Abs(r)
	if abs < g.opts.WeakBand {
		return fmt.Sprintf("There is a weak or no relationship between %s and %s.", spec.XField, spec.Measure()), true
	}

	strength := "moderate"
	if abs > g.opts.StrongBand {
		strength = "strong"
	}
	direction := "positive"
	if r < 0 {
		direction = "negative"
	}
	return fmt.Sprintf("There is a %s %s relationship between %s and %s.", strength, direction, spec.XField, spec.Measure()), true
}

// fallback reports the shape of the data with no interpretive claim.
func (g *Generator) fallback(spec models.ChartSpec, rows int) string {
	fields := spec.Fields()
	if len(fields) == 0 {
		return fmt.Sprintf("This chart draws on %d rows.", rows)
	}
	return fmt.Sprintf("This chart draws on %d rows across %s.", rows, strings.Join(fields, ", "))
}
