package cleaning

import (
	"sort"
	"strings"
	"time"

	"autodash-backend/internal/dataset"
)

// Options controls the cleaning heuristics. The defaults mirror common
// practice; callers load them from configuration.
type Options struct {
	// IdentifierPatterns are lowercase substrings that mark a column name
	// as identifier-like (serial keys, codes).
	IdentifierPatterns []string
}

// DefaultOptions returns the default cleaning options.
func DefaultOptions() Options {
	return Options{
		IdentifierPatterns: []string{"id", "code", "key"},
	}
}

// Engine turns a raw frame into a typed table plus a structured report of
// every action taken. Cleaning is deterministic and total: malformed cells
// degrade to missing, an empty frame yields an empty table and an empty
// report, and the engine never returns an error.
type Engine struct {
	opts Options
}

// NewEngine creates a cleaning engine.
func NewEngine(opts Options) *Engine {
	if len(opts.IdentifierPatterns) == 0 {
		opts.IdentifierPatterns = DefaultOptions().IdentifierPatterns
	}
	return &Engine{opts: opts}
}

// Clean runs the full pipeline. Declared types (from the type declaration
// step) override inference for the named columns; cells that fail to parse
// under a declared type degrade to missing.
//
// Step order matters: identifier and useless columns are dropped before
// imputation so they never contribute fill counts, and duplicates are
// removed last so imputed values take part in the comparison.
func (e *Engine) Clean(frame *dataset.Frame, declared map[string]dataset.ColumnType) (*dataset.Table, *Report) {
	report := NewReport()
	table := &dataset.Table{}

	if frame == nil || len(frame.Headers) == 0 || len(frame.Rows) == 0 {
		return table, report
	}

	rows := e.dropEmptyRows(frame, report)
	if len(rows) == 0 {
		return table, report
	}

	// Per-column raw values.
	cols := make([][]string, len(frame.Headers))
	for ci := range frame.Headers {
		vals := make([]string, len(rows))
		for ri, row := range rows {
			if ci < len(row) {
				vals[ri] = row[ci]
			}
		}
		cols[ci] = vals
	}

	for ci, name := range frame.Headers {
		vals := cols[ci]

		if reason, drop := e.shouldDrop(name, vals); drop {
			report.ColumnsDropped = append(report.ColumnsDropped, DroppedColumn{Name: name, Reason: reason})
			continue
		}

		col := e.coerce(name, vals, declared, report)
		e.impute(&col, report)
		// Duplicate header names would break the table invariant; suffix
		// later occurrences instead of dropping them.
		for {
			if _, exists := table.Column(col.Name); !exists {
				break
			}
			col.Name += "_2"
		}
		table.Columns = append(table.Columns, col)
	}

	e.dedupe(table, report)
	return table, report
}

// dropEmptyRows filters out rows whose every cell is missing. The median
// and mode used for imputation are computed after this pass.
func (e *Engine) dropEmptyRows(frame *dataset.Frame, report *Report) [][]string {
	var kept [][]string
	for _, row := range frame.Rows {
		empty := true
		for _, cell := range row {
			if !dataset.IsMissing(cell) {
				empty = false
				break
			}
		}
		if empty {
			report.EmptyRowsRemoved++
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// shouldDrop applies the identifier and useless-column rules, in that order.
func (e *Engine) shouldDrop(name string, vals []string) (string, bool) {
	distinct := make(map[string]bool)
	nonMissing := 0
	for _, v := range vals {
		if dataset.IsMissing(v) {
			continue
		}
		nonMissing++
		distinct[v] = true
	}

	// Identifier-like: every row has a unique value and either the name
	// suggests a key role or the values form a serial integer sequence.
	// A single-row table is ambiguous and never triggers this rule.
	if len(vals) > 1 && len(distinct) == len(vals) && nonMissing == len(vals) {
		if e.nameLooksLikeID(name) || isSerialSequence(vals) {
			return ReasonIdentifier, true
		}
	}

	if nonMissing == 0 {
		return ReasonAllNull, true
	}
	// Constant columns carry no signal. A single row cannot establish
	// constancy, so the rule needs at least two rows.
	if len(distinct) == 1 && len(vals) > 1 {
		return ReasonConstant, true
	}
	return "", false
}

func (e *Engine) nameLooksLikeID(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range e.opts.IdentifierPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// isSerialSequence reports whether the values are integers increasing by
// exactly one, the shape of an auto-generated row number.
func isSerialSequence(vals []string) bool {
	prev, ok := dataset.ParseInt(vals[0])
	if !ok {
		return false
	}
	for _, v := range vals[1:] {
		n, ok := dataset.ParseInt(v)
		if !ok || n != prev+1 {
			return false
		}
		prev = n
	}
	return true
}

// coerce resolves the column type and builds the typed column. Automatic
// coercion is all-or-nothing: if any non-missing value fails to parse as a
// date or number the whole column keeps its string form. Declared types
// win over inference.
func (e *Engine) coerce(name string, vals []string, declared map[string]dataset.ColumnType, report *Report) dataset.Column {
	inferred := dataset.InferType(vals)
	target := inferred
	if declared != nil {
		if t, ok := declared[name]; ok && t != "" {
			target = t
		}
	}

	if target != inferred || inferred == dataset.Numeric || inferred == dataset.Datetime {
		// Raw CSV cells arrive as text; a numeric or datetime result is a
		// conversion worth logging.
		from := dataset.Text
		if target != inferred {
			from = inferred
		}
		if from != target {
			report.TypeConversions = append(report.TypeConversions, TypeConversion{Column: name, From: from, To: target})
		}
	}

	return dataset.BuildColumn(name, target, vals)
}

// impute fills missing cells: numeric columns with the median, categorical
// and datetime columns with the mode (first occurrence wins ties). Columns
// that were entirely missing never reach this step.
func (e *Engine) impute(col *dataset.Column, report *Report) {
	filled := 0
	switch col.Type {
	case dataset.Numeric:
		var present []float64
		for i := range col.Missing {
			if !col.Missing[i] {
				present = append(present, col.Numbers[i])
			}
		}
		med := median(present)
		for i := range col.Missing {
			if col.Missing[i] {
				col.Numbers[i] = med
				col.Missing[i] = false
				filled++
			}
		}
	case dataset.Datetime:
		mode := modeTime(col)
		for i := range col.Missing {
			if col.Missing[i] {
				col.Times[i] = mode
				col.Missing[i] = false
				filled++
			}
		}
	default:
		mode := modeLabel(col)
		for i := range col.Missing {
			if col.Missing[i] {
				col.Labels[i] = mode
				col.Missing[i] = false
				filled++
			}
		}
	}
	if filled > 0 {
		report.MissingValuesFilled[col.Name] = filled
	}
}

// dedupe removes exact full-row duplicates, keeping the first occurrence.
func (e *Engine) dedupe(table *dataset.Table, report *Report) {
	rows := table.NumRows()
	if rows == 0 || len(table.Columns) == 0 {
		return
	}
	seen := make(map[string]bool, rows)
	keep := make([]bool, rows)
	removed := 0
	var sb strings.Builder
	for ri := 0; ri < rows; ri++ {
		sb.Reset()
		for ci := range table.Columns {
			sb.WriteString(table.Columns[ci].CellString(ri))
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		keep[ri] = true
	}
	if removed == 0 {
		return
	}
	report.DuplicatesRemoved = removed
	*table = *table.SelectRows(keep)
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func modeLabel(col *dataset.Column) string {
	counts := make(map[string]int)
	var order []string
	for i := range col.Missing {
		if col.Missing[i] {
			continue
		}
		v := col.Labels[i]
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	// Scanning in first-seen order with strictly-greater comparison makes the
	// first-seen value win ties.
	best := ""
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

func modeTime(col *dataset.Column) time.Time {
	counts := make(map[int64]int)
	var order []time.Time
	for i := range col.Missing {
		if col.Missing[i] {
			continue
		}
		v := col.Times[i]
		if counts[v.UnixNano()] == 0 {
			order = append(order, v)
		}
		counts[v.UnixNano()]++
	}
	var best time.Time
	bestCount := 0
	for _, v := range order {
		if counts[v.UnixNano()] > bestCount {
			best = v
			bestCount = counts[v.UnixNano()]
		}
	}
	return best
}
