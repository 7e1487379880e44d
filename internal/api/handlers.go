package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"autodash-backend/internal/analysis"
	"autodash-backend/internal/cleaning"
	"autodash-backend/internal/cluster"
	"autodash-backend/internal/config"
	"autodash-backend/internal/dashboard"
	"autodash-backend/internal/dataset"
	"autodash-backend/internal/feature"
	"autodash-backend/internal/models"
	"autodash-backend/internal/narrative"
	"autodash-backend/internal/session"
	"autodash-backend/internal/storage"
)

// Handler wires the HTTP surface to the analytics services.
type Handler struct {
	Config     *config.Config
	Sessions   *session.Store
	Engine     *cleaning.Engine
	Analyzer   *analysis.Analyzer
	Narratives *narrative.Cache

	dbMu      sync.Mutex
	currentDB storage.DataSource // guarded by dbMu, nil until /api/db/connect
}

// NewHandler assembles the handler from configuration.
func NewHandler(cfg *config.Config) *Handler {
	generator := narrative.NewGenerator(narrative.Options{
		FlatSlopeRatio: cfg.Narrative.FlatSlopeRatio,
		WeakBand:       cfg.Narrative.WeakBand,
		StrongBand:     cfg.Narrative.StrongBand,
	})
	ttl := time.Duration(cfg.Narrative.CacheTTLMinutes) * time.Minute
	return &Handler{
		Config:     cfg,
		Sessions:   session.NewStore(),
		Engine:     cleaning.NewEngine(cleaning.Options{IdentifierPatterns: cfg.Cleaning.IdentifierPatterns}),
		Analyzer:   analysis.NewAnalyzer(),
		Narratives: narrative.NewCache(generator, ttl, ttl),
	}
}

// RegisterRoutes mounts every API route on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Post("/api/sessions", h.CreateSession)
	r.Get("/api/sessions/{sessionID}", h.GetSession)
	r.Post("/api/sessions/{sessionID}/advance", h.AdvanceStep)
	r.Post("/api/sessions/{sessionID}/back", h.BackStep)

	r.Post("/api/sessions/{sessionID}/upload", h.Upload)
	r.Get("/api/sessions/{sessionID}/types", h.GetColumnTypes)
	r.Post("/api/sessions/{sessionID}/types", h.DeclareTypes)
	r.Post("/api/sessions/{sessionID}/process", h.Process)

	r.Get("/api/sessions/{sessionID}/profile", h.GetProfile)
	r.Get("/api/sessions/{sessionID}/preview", h.GetPreview)
	r.Get("/api/sessions/{sessionID}/correlation", h.GetCorrelation)
	r.Get("/api/sessions/{sessionID}/drivers/{target}", h.GetKeyDrivers)

	r.Post("/api/sessions/{sessionID}/features", h.AddFeature)
	r.Get("/api/sessions/{sessionID}/cluster/diagnostics", h.ClusterDiagnostics)
	r.Post("/api/sessions/{sessionID}/segment", h.Segment)

	r.Get("/api/sessions/{sessionID}/charts", h.ListCharts)
	r.Post("/api/sessions/{sessionID}/charts", h.AddChart)
	r.Delete("/api/sessions/{sessionID}/charts/{chartID}", h.DeleteChart)
	r.Put("/api/sessions/{sessionID}/charts/order", h.ReorderCharts)
	r.Get("/api/sessions/{sessionID}/charts/compatible", h.CompatibleColumns)
	r.Get("/api/sessions/{sessionID}/charts/{chartID}/narrative", h.GetNarrative)
	r.Get("/api/sessions/{sessionID}/story", h.GetStory)

	r.Get("/api/sessions/{sessionID}/kpis", h.GetKPIs)
	r.Post("/api/sessions/{sessionID}/kpis", h.SetKPIs)

	r.Get("/api/sessions/{sessionID}/export/csv", h.ExportCSV)
	r.Get("/api/sessions/{sessionID}/export/json", h.ExportJSON)
	r.Get("/api/sessions/{sessionID}/dashboard/export", h.ExportDashboard)
	r.Post("/api/sessions/{sessionID}/dashboard/import", h.ImportDashboard)

	r.Post("/api/db/connect", h.ConnectDB)
	r.Get("/api/db/tables", h.ListDBTables)
	r.Post("/api/sessions/{sessionID}/db/load", h.LoadDBTable)
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, models.ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

// sessionFrom resolves the session named in the URL, writing a 404 on miss.
func (h *Handler) sessionFrom(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	s, ok := h.Sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session %q not found", id)
		return nil, false
	}
	return s, true
}

// tableFrom fetches the processed table, writing a 409 if processing has
// not run yet.
func (h *Handler) tableFrom(w http.ResponseWriter, s *session.Session) (*dataset.Table, bool) {
	t := s.Table()
	if t == nil {
		writeError(w, http.StatusConflict, "dataset has not been processed yet")
		return nil, false
	}
	return t, true
}

// ============================================================================
// Health and sessions
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Create()
	writeJSON(w, http.StatusCreated, h.sessionResponse(s))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(s))
}

func (h *Handler) sessionResponse(s *session.Session) models.SessionResponse {
	resp := models.SessionResponse{
		ID:          s.ID,
		Step:        string(s.Step()),
		FrameLoaded: s.Frame() != nil,
		Charts:      len(s.Charts()),
	}
	if t := s.Table(); t != nil {
		resp.Processed = true
		resp.Rows = t.NumRows()
		resp.Columns = t.NumColumns()
	} else if f := s.Frame(); f != nil {
		resp.Rows = f.NumRows()
		resp.Columns = len(f.Headers)
	}
	return resp
}

func (h *Handler) AdvanceStep(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	step, err := s.Advance()
	if err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"step": string(step)})
}

func (h *Handler) BackStep(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	step, err := s.Back()
	if err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"step": string(step)})
}

// ============================================================================
// Upload and type declaration
// ============================================================================

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.Config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "only CSV files are allowed")
		return
	}

	frame, err := readCSV(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse CSV: %v", err)
		return
	}

	s.SetFrame(frame)
	writeJSON(w, http.StatusOK, models.UploadResponse{
		Message:     "File uploaded successfully",
		Rows:        frame.NumRows(),
		Columns:     len(frame.Headers),
		ColumnNames: frame.Headers,
	})
}

// readCSV parses an uploaded CSV stream into a raw frame, tolerating ragged
// rows.
func readCSV(r io.Reader) (*dataset.Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	frame := &dataset.Frame{Headers: headers}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		frame.Rows = append(frame.Rows, record)
	}
	return frame, nil
}

func (h *Handler) GetColumnTypes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	frame := s.Frame()
	if frame == nil {
		writeError(w, http.StatusConflict, "no dataset uploaded yet")
		return
	}

	declared := s.DeclaredTypes()
	infos := make([]models.ColumnTypeInfo, len(frame.Headers))
	for ci, name := range frame.Headers {
		values := make([]string, 0, frame.NumRows())
		for ri := range frame.Rows {
			values = append(values, frame.Cell(ri, ci))
		}
		info := models.ColumnTypeInfo{
			Name:     name,
			Inferred: string(dataset.InferType(values)),
		}
		if t, ok := declared[name]; ok {
			info.Declared = string(t)
		}
		for _, v := range values {
			if len(info.Samples) >= 5 {
				break
			}
			if !dataset.IsMissing(v) {
				info.Samples = append(info.Samples, v)
			}
		}
		infos[ci] = info
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"columns": infos})
}

func (h *Handler) DeclareTypes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	if s.Frame() == nil {
		writeError(w, http.StatusConflict, "no dataset uploaded yet")
		return
	}

	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	types := make(map[string]dataset.ColumnType, len(req))
	for col, raw := range req {
		t := dataset.ColumnType(raw)
		switch t {
		case dataset.Numeric, dataset.Categorical, dataset.Datetime, dataset.Text:
			types[col] = t
		default:
			writeError(w, http.StatusBadRequest, "unknown type %q for column %q", raw, col)
			return
		}
	}
	s.DeclareTypes(types)
	writeJSON(w, http.StatusOK, map[string]int{"declared": len(types)})
}

// ============================================================================
// Processing
// ============================================================================

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	frame := s.Frame()
	if frame == nil {
		writeError(w, http.StatusConflict, "no dataset uploaded yet")
		return
	}

	table, report := h.Engine.Clean(frame, s.DeclaredTypes())
	result := h.Analyzer.Run(table)
	featuresAdded := feature.AutoEngineer(table)
	measures := feature.Measures(table)

	log := map[string]int{
		"missing_values_filled": report.TotalFilled(),
		"duplicates_removed":    report.DuplicatesRemoved,
		"outliers_identified":   result.OutliersIdentified,
		"features_engineered":   featuresAdded,
	}
	s.SetProcessed(table, report, measures, log)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report":   report,
		"log":      log,
		"measures": measures,
		"rows":     table.NumRows(),
		"columns":  table.NumColumns(),
	})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}
	result := h.Analyzer.Run(t)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": result.Profiles,
		"report":   s.Report(),
		"log":      s.ProcessingLog(),
		"measures": s.Measures(),
	})
}

func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("rows"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	frame := t.ToFrame()
	if len(frame.Rows) > limit {
		frame.Rows = frame.Rows[:limit]
	}
	writeJSON(w, http.StatusOK, models.PreviewResponse{
		Headers: frame.Headers,
		Rows:    frame.Rows,
		Total:   t.NumRows(),
	})
}

func (h *Handler) GetCorrelation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}
	cols, matrix := h.Analyzer.CorrelationMatrix(t)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"columns": cols,
		"matrix":  matrix,
	})
}

func (h *Handler) GetKeyDrivers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}
	target := chi.URLParam(r, "target")
	drivers, err := h.Analyzer.KeyDrivers(t, target)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"target":  target,
		"drivers": drivers,
	})
}

// ============================================================================
// Features and segmentation
// ============================================================================

func (h *Handler) AddFeature(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}

	var def feature.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	name, err := feature.Apply(t, def)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	s.BumpVersion()
	writeJSON(w, http.StatusCreated, map[string]string{"column": name})
}

func (h *Handler) ClusterDiagnostics(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}

	maxK := h.Config.Cluster.MaxK
	if raw := r.URL.Query().Get("max_k"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 2 && n <= h.Config.Cluster.MaxK {
			maxK = n
		}
	}

	diag, err := cluster.Diagnose(t, maxK)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

func (h *Handler) Segment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}

	var req struct {
		K int `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	labels, err := cluster.Segment(t, req.K)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	s.BumpVersion()

	sizes := make(map[string]int)
	for _, l := range labels {
		sizes[fmt.Sprintf("Segment %d", l)]++
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"segments_created": req.K,
		"segment_sizes":    sizes,
	})
}

// ============================================================================
// Charts and narratives
// ============================================================================

func (h *Handler) ListCharts(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"charts": s.Charts()})
}

func (h *Handler) AddChart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	if _, ok := h.tableFrom(w, s); !ok {
		return
	}

	var spec models.ChartSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !models.ValidChartType(spec.Type) {
		writeError(w, http.StatusBadRequest, "unknown chart type %q", spec.Type)
		return
	}
	if spec.Aggregation == "" {
		spec.Aggregation = models.AggNone
	}
	if !models.ValidAggregation(spec.Aggregation) {
		writeError(w, http.StatusBadRequest, "unknown aggregation %q", spec.Aggregation)
		return
	}
	spec.ID = uuid.NewString()
	if spec.Title == "" {
		spec.Title = "New chart"
	}

	if err := s.AddChart(spec); err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, spec)
}

func (h *Handler) DeleteChart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "chartID")
	if !s.RemoveChart(id) {
		writeError(w, http.StatusNotFound, "chart %q not found", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *Handler) ReorderCharts(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.ReorderCharts(req.IDs); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"charts": s.Charts()})
}

// CompatibleColumns guides the chart builder: it lists which columns can
// serve each role of the requested chart type.
func (h *Handler) CompatibleColumns(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}

	chartType := r.URL.Query().Get("type")
	if !models.ValidChartType(chartType) {
		writeError(w, http.StatusBadRequest, "unknown chart type %q", chartType)
		return
	}

	var numeric, categorical, datetime, all []string
	for i := range t.Columns {
		col := &t.Columns[i]
		all = append(all, col.Name)
		switch col.Type {
		case dataset.Numeric:
			numeric = append(numeric, col.Name)
		case dataset.Datetime:
			datetime = append(datetime, col.Name)
		default:
			categorical = append(categorical, col.Name)
		}
	}

	roles := map[string][]string{}
	switch chartType {
	case models.ChartBar, models.ChartLine, models.ChartArea,
		models.ChartHistogram, models.ChartBox, models.ChartViolin:
		roles["x"] = append(append(append([]string{}, categorical...), datetime...), numeric...)
		roles["y"] = numeric
		roles["color"] = categorical
	case models.ChartScatter, models.ChartBubble, models.ChartScatter3D:
		roles["x"] = numeric
		roles["y"] = numeric
		roles["size"] = numeric
		roles["color"] = all
	case models.ChartDonut, models.ChartTreemap, models.ChartSunburst, models.ChartFunnel:
		roles["names"] = append(append([]string{}, categorical...), datetime...)
		roles["values"] = numeric
	case models.ChartHeatmap:
		roles["numeric"] = numeric
	case models.ChartGantt:
		roles["task"] = categorical
		roles["start"] = datetime
		roles["finish"] = datetime
	default:
		roles["all"] = all
	}
	writeJSON(w, http.StatusOK, roles)
}

func (h *Handler) GetNarrative(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}
	id := chi.URLParam(r, "chartID")
	spec, found := s.Chart(id)
	if !found {
		writeError(w, http.StatusNotFound, "chart %q not found", id)
		return
	}

	text := h.Narratives.Narrate(spec, t, s.Version())
	writeJSON(w, http.StatusOK, models.NarrativeResponse{ChartID: id, Narrative: text})
}

func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	suggestion, err := narrative.SuggestStory(s.Charts())
	if err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// ============================================================================
// KPIs
// ============================================================================

func (h *Handler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	measures := s.Measures()
	kpis := make([]map[string]interface{}, 0, len(s.KPICards()))
	for _, name := range s.KPICards() {
		kpis = append(kpis, map[string]interface{}{
			"name":  name,
			"value": measures[name],
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kpis": kpis})
}

func (h *Handler) SetKPIs(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Measures []string `json:"measures"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.SetKPICards(req.Measures); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kpis": req.Measures})
}

// ============================================================================
// Export and dashboard layout
// ============================================================================

func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="processed_data.csv"`)

	frame := t.ToFrame()
	writer := csv.NewWriter(w)
	writer.Write(frame.Headers)
	for _, row := range frame.Rows {
		writer.Write(row)
	}
	writer.Flush()
	// The status line is already out; a write failure here means the client
	// got a truncated download, which is worth a log line.
	if err := writer.Error(); err != nil {
		log.Printf("export csv: %v", err)
	}
}

func (h *Handler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	t, ok := h.tableFrom(w, s)
	if !ok {
		return
	}

	frame := t.ToFrame()
	records := make([]map[string]string, len(frame.Rows))
	for ri, row := range frame.Rows {
		record := make(map[string]string, len(frame.Headers))
		for ci, name := range frame.Headers {
			if ci < len(row) {
				record[name] = row[ci]
			}
		}
		records[ri] = record
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": records})
}

func (h *Handler) ExportDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	layout := dashboard.FromCharts(s.Charts(), s.KPICards(), r.URL.Query().Get("resolution"))
	data, err := layout.Encode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode layout: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="dashboard.yaml"`)
	w.Write(data)
}

func (h *Handler) ImportDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: %v", err)
		return
	}
	layout, err := dashboard.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	specs, err := layout.Specs()
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if len(specs) > session.MaxCharts {
		writeError(w, http.StatusBadRequest, "layout has %d charts, maximum is %d", len(specs), session.MaxCharts)
		return
	}
	for i := range specs {
		if specs[i].ID == "" {
			specs[i].ID = uuid.NewString()
		}
	}
	s.SetCharts(specs)
	writeJSON(w, http.StatusOK, map[string]interface{}{"charts": s.Charts()})
}

// ============================================================================
// Database sources
// ============================================================================

func (h *Handler) ConnectDB(w http.ResponseWriter, r *http.Request) {
	var cfg storage.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ds, err := storage.Open(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := ds.Connect(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to connect: %v", err)
		return
	}

	h.dbMu.Lock()
	if h.currentDB != nil {
		h.currentDB.Close()
	}
	h.currentDB = ds
	h.dbMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// dataSource returns the active DB connection, nil when none is connected.
func (h *Handler) dataSource() storage.DataSource {
	h.dbMu.Lock()
	defer h.dbMu.Unlock()
	return h.currentDB
}

func (h *Handler) ListDBTables(w http.ResponseWriter, r *http.Request) {
	ds := h.dataSource()
	if ds == nil {
		writeError(w, http.StatusConflict, "no database connection")
		return
	}
	tables, err := ds.ListTables()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list tables: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

func (h *Handler) LoadDBTable(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	ds := h.dataSource()
	if ds == nil {
		writeError(w, http.StatusConflict, "no database connection")
		return
	}

	var req struct {
		TableName string `json:"table_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	frame, err := ds.FetchFrame(req.TableName, h.Config.DB.FetchLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fetch table: %v", err)
		return
	}

	s.SetFrame(frame)
	writeJSON(w, http.StatusOK, models.UploadResponse{
		Message:     fmt.Sprintf("Loaded table %q", req.TableName),
		Rows:        frame.NumRows(),
		Columns:     len(frame.Headers),
		ColumnNames: frame.Headers,
	})
}
