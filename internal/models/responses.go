package models

// SessionResponse describes a session's wizard position and dataset status.
type SessionResponse struct {
	ID          string `json:"id"`
	Step        string `json:"step"`
	FrameLoaded bool   `json:"frame_loaded"`
	Processed   bool   `json:"processed"`
	Rows        int    `json:"rows"`
	Columns     int    `json:"columns"`
	Charts      int    `json:"charts"`
}

// UploadResponse is returned after a successful dataset upload.
type UploadResponse struct {
	Message     string   `json:"message"`
	Rows        int      `json:"rows"`
	Columns     int      `json:"columns"`
	ColumnNames []string `json:"column_names"`
}

// ColumnTypeInfo pairs a column with its inferred type for the type
// declaration step.
type ColumnTypeInfo struct {
	Name     string   `json:"name"`
	Inferred string   `json:"inferred_type"`
	Declared string   `json:"declared_type,omitempty"`
	Samples  []string `json:"samples,omitempty"`
}

// NarrativeResponse pairs a chart with its generated sentence.
type NarrativeResponse struct {
	ChartID   string `json:"chart_id"`
	Narrative string `json:"narrative"`
}

// PreviewResponse carries the first rows of the processed table.
type PreviewResponse struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Total   int        `json:"total_rows"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
