package cleaning

import "autodash-backend/internal/dataset"

// Drop reasons recorded in the report.
const (
	ReasonIdentifier = "identifier-like"
	ReasonAllNull    = "all-null"
	ReasonConstant   = "constant"
)

// DroppedColumn records a column removed during cleaning and why.
type DroppedColumn struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// TypeConversion records a whole-column type coercion.
type TypeConversion struct {
	Column string             `json:"column"`
	From   dataset.ColumnType `json:"from_type"`
	To     dataset.ColumnType `json:"to_type"`
}

// Report is the structured log of one cleaning run. It is created once per
// run and not mutated afterwards.
type Report struct {
	MissingValuesFilled map[string]int   `json:"missing_values_filled"`
	DuplicatesRemoved   int              `json:"duplicates_removed"`
	EmptyRowsRemoved    int              `json:"empty_rows_removed"`
	ColumnsDropped      []DroppedColumn  `json:"columns_dropped"`
	TypeConversions     []TypeConversion `json:"type_conversions"`
}

// NewReport returns an empty report with initialized collections.
func NewReport() *Report {
	return &Report{
		MissingValuesFilled: make(map[string]int),
		ColumnsDropped:      []DroppedColumn{},
		TypeConversions:     []TypeConversion{},
	}
}

// TotalFilled sums the per-column fill counts.
func (r *Report) TotalFilled() int {
	total := 0
	for _, n := range r.MissingValuesFilled {
		total += n
	}
	return total
}

// DroppedNames returns the names of dropped columns in drop order.
func (r *Report) DroppedNames() []string {
	names := make([]string, len(r.ColumnsDropped))
	for i, d := range r.ColumnsDropped {
		names[i] = d.Name
	}
	return names
}
