package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"autodash-backend/internal/cleaning"
	"autodash-backend/internal/config"
	"autodash-backend/internal/dataset"
	"autodash-backend/internal/models"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Port:           8001,
		MaxUploadBytes: 10 * 1024 * 1024,
	}
	cfg.Cleaning.IdentifierPatterns = []string{"id", "code", "key"}
	cfg.Narrative.FlatSlopeRatio = 0.01
	cfg.Narrative.WeakBand = 0.2
	cfg.Narrative.StrongBand = 0.5
	cfg.Narrative.CacheTTLMinutes = 30
	cfg.Cluster.MaxK = 10
	cfg.DB.FetchLimit = 10000
	return cfg
}

func newTestServer() *httptest.Server {
	r := chi.NewRouter()
	NewHandler(testConfig()).RegisterRoutes(r)
	return httptest.NewServer(r)
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp
}

func createSession(t *testing.T, baseURL string) string {
	t.Helper()
	var session models.SessionResponse
	resp := doJSON(t, http.MethodPost, baseURL+"/api/sessions", nil, &session)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	if session.ID == "" {
		t.Fatal("create session: empty ID")
	}
	return session.ID
}

func uploadCSV(t *testing.T, baseURL, sessionID, csvData string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "data.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(csvData))
	writer.Close()

	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/api/sessions/%s/upload", baseURL, sessionID), &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}
}

const salesCSV = `OrderID,Region,Sales,Date
1,North,100,2024-01-01
2,North,110,2024-02-01
3,South,,2024-03-01
4,West,130,2024-04-01
5,South,150,2024-05-01
`

func TestWizardFlow(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	id := createSession(t, srv.URL)
	uploadCSV(t, srv.URL, id, salesCSV)

	// Inferred types for the declaration step.
	var types struct {
		Columns []models.ColumnTypeInfo `json:"columns"`
	}
	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/sessions/%s/types", srv.URL, id), nil, &types)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get types: status %d", resp.StatusCode)
	}
	byName := map[string]string{}
	for _, c := range types.Columns {
		byName[c.Name] = c.Inferred
	}
	if byName["Sales"] != "numeric" {
		t.Errorf("Sales inferred as %q", byName["Sales"])
	}
	if byName["Date"] != "datetime" {
		t.Errorf("Date inferred as %q", byName["Date"])
	}

	// Process: OrderID dropped, the missing Sales cell filled.
	var processed struct {
		Log     map[string]int `json:"log"`
		Rows    int            `json:"rows"`
		Columns int            `json:"columns"`
	}
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/sessions/%s/process", srv.URL, id), nil, &processed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("process: status %d", resp.StatusCode)
	}
	if processed.Rows != 5 {
		t.Errorf("rows = %d, want 5", processed.Rows)
	}
	if processed.Log["missing_values_filled"] != 1 {
		t.Errorf("log = %v", processed.Log)
	}

	// Preview shows the cleaned table without the identifier column.
	var preview models.PreviewResponse
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/sessions/%s/preview", srv.URL, id), nil, &preview)
	for _, h := range preview.Headers {
		if h == "OrderID" {
			t.Error("identifier column survived cleaning")
		}
	}

	// Add a chart and fetch its narrative.
	chartReq := models.ChartSpec{
		Title:       "Sales by region",
		Type:        models.ChartBar,
		XField:      "Region",
		YFields:     []string{"Sales"},
		Aggregation: models.AggSum,
	}
	var chart models.ChartSpec
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/sessions/%s/charts", srv.URL, id), chartReq, &chart)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add chart: status %d", resp.StatusCode)
	}
	if chart.ID == "" {
		t.Fatal("chart has no ID")
	}

	var narrative models.NarrativeResponse
	resp = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/sessions/%s/charts/%s/narrative", srv.URL, id, chart.ID), nil, &narrative)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("narrative: status %d", resp.StatusCode)
	}
	if !strings.Contains(narrative.Narrative, "of total Sales") {
		t.Errorf("narrative = %q", narrative.Narrative)
	}
}

func TestUpload_RejectsNonCSV(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "data.xlsx")
	part.Write([]byte("not a csv"))
	writer.Close()

	req, _ := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/api/sessions/%s/upload", srv.URL, id), &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionNotFound(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProcessBeforeUpload(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/sessions/%s/process", srv.URL, id), nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestDeclareTypes_RejectsUnknownType(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)
	uploadCSV(t, srv.URL, id, salesCSV)

	resp := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/sessions/%s/types", srv.URL, id),
		map[string]string{"Sales": "complex128"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAddChart_RejectsUnknownType(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)
	uploadCSV(t, srv.URL, id, salesCSV)
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/sessions/%s/process", srv.URL, id), nil, nil)

	resp := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/sessions/%s/charts", srv.URL, id),
		models.ChartSpec{Type: "pie3000"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStory_RequiresFourCharts(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)
	uploadCSV(t, srv.URL, id, salesCSV)
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/sessions/%s/process", srv.URL, id), nil, nil)

	chartsURL := fmt.Sprintf("%s/api/sessions/%s/charts", srv.URL, id)
	for _, spec := range []models.ChartSpec{
		{Title: "a", Type: models.ChartDonut, NamesField: "Region", ValuesField: "Sales", Aggregation: models.AggSum},
		{Title: "b", Type: models.ChartLine, XField: "Date", YFields: []string{"Sales"}},
		{Title: "c", Type: models.ChartBar, XField: "Region", YFields: []string{"Sales"}, Aggregation: models.AggSum},
	} {
		doJSON(t, http.MethodPost, chartsURL, spec, nil)
	}

	storyURL := fmt.Sprintf("%s/api/sessions/%s/story", srv.URL, id)
	if resp := doJSON(t, http.MethodGet, storyURL, nil, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409 below the minimum", resp.StatusCode)
	}

	doJSON(t, http.MethodPost, chartsURL,
		models.ChartSpec{Title: "d", Type: models.ChartTable}, nil)

	var suggestion struct {
		OrderedIDs []string `json:"ordered_ids"`
		Text       string   `json:"text"`
	}
	if resp := doJSON(t, http.MethodGet, storyURL, nil, &suggestion); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(suggestion.OrderedIDs) != 4 {
		t.Errorf("ordered IDs = %v", suggestion.OrderedIDs)
	}
	if !strings.HasPrefix(suggestion.Text, "Suggested order: a") {
		t.Errorf("text = %q", suggestion.Text)
	}
}

func TestKPIFlow(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)
	uploadCSV(t, srv.URL, id, salesCSV)
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/sessions/%s/process", srv.URL, id), nil, nil)

	kpiURL := fmt.Sprintf("%s/api/sessions/%s/kpis", srv.URL, id)
	resp := doJSON(t, http.MethodPost, kpiURL,
		map[string][]string{"measures": {"Sum of Sales"}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set KPIs: status %d", resp.StatusCode)
	}

	var got struct {
		KPIs []struct {
			Name  string  `json:"name"`
			Value float64 `json:"value"`
		} `json:"kpis"`
	}
	doJSON(t, http.MethodGet, kpiURL, nil, &got)
	if len(got.KPIs) != 1 || got.KPIs[0].Name != "Sum of Sales" {
		t.Fatalf("kpis = %+v", got.KPIs)
	}
	// 100 + 110 + 130 + 150 plus the median fill of 120.
	if got.KPIs[0].Value != 610 {
		t.Errorf("Sum of Sales = %v, want 610", got.KPIs[0].Value)
	}
}

func TestDashboardExportImport(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)
	uploadCSV(t, srv.URL, id, salesCSV)
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/sessions/%s/process", srv.URL, id), nil, nil)

	chartsURL := fmt.Sprintf("%s/api/sessions/%s/charts", srv.URL, id)
	doJSON(t, http.MethodPost, chartsURL,
		models.ChartSpec{Title: "Sales by region", Type: models.ChartBar, XField: "Region", YFields: []string{"Sales"}, Aggregation: models.AggSum}, nil)

	resp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/dashboard/export", srv.URL, id))
	if err != nil {
		t.Fatal(err)
	}
	var exported bytes.Buffer
	exported.ReadFrom(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: status %d", resp.StatusCode)
	}

	// Import the layout into a fresh session.
	other := createSession(t, srv.URL)
	req, _ := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/api/sessions/%s/dashboard/import", srv.URL, other), &exported)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import: status %d", resp.StatusCode)
	}

	var charts struct {
		Charts []models.ChartSpec `json:"charts"`
	}
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/sessions/%s/charts", srv.URL, other), nil, &charts)
	if len(charts.Charts) != 1 || charts.Charts[0].Title != "Sales by region" {
		t.Errorf("imported charts = %+v", charts.Charts)
	}
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)
	uploadCSV(t, srv.URL, id, salesCSV)
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/sessions/%s/process", srv.URL, id), nil, nil)

	resp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/export/csv", srv.URL, id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q", ct)
	}

	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	firstLine := strings.SplitN(body.String(), "\n", 2)[0]
	if strings.Contains(firstLine, "OrderID") {
		t.Errorf("exported header still has the identifier column: %q", firstLine)
	}
	if !strings.Contains(firstLine, "Region") {
		t.Errorf("header = %q", firstLine)
	}
}

func TestDBTables_ConcurrentWithoutConnection(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	// Overlapping requests against the shared connection state.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.URL + "/api/db/tables")
			if err != nil {
				t.Error(err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusConflict {
				t.Errorf("status = %d, want 409", resp.StatusCode)
			}
		}()
	}
	wg.Wait()
}

// brokenWriter fails every body write, like a client that hung up mid
// download.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection closed")
}

func TestExportCSV_WriteFailureLogged(t *testing.T) {
	h := NewHandler(testConfig())
	s := h.Sessions.Create()

	tbl := &dataset.Table{}
	tbl.AddColumn(dataset.BuildColumn("Region", dataset.Categorical, []string{"North", "South"}))
	tbl.AddColumn(dataset.BuildColumn("Sales", dataset.Numeric, []string{"10", "20"}))
	s.SetProcessed(tbl, cleaning.NewReport(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+s.ID+"/export/csv", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", s.ID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	h.ExportCSV(brokenWriter{httptest.NewRecorder()}, req)

	if !strings.Contains(logs.String(), "export csv") {
		t.Errorf("write failure not logged, log output: %q", logs.String())
	}
}

func TestAdvanceAndBack(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	id := createSession(t, srv.URL)

	advanceURL := fmt.Sprintf("%s/api/sessions/%s/advance", srv.URL, id)
	if resp := doJSON(t, http.MethodPost, advanceURL, nil, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("advance without upload: status %d, want 409", resp.StatusCode)
	}

	uploadCSV(t, srv.URL, id, salesCSV)
	var step struct {
		Step string `json:"step"`
	}
	if resp := doJSON(t, http.MethodPost, advanceURL, nil, &step); resp.StatusCode != http.StatusOK {
		t.Fatalf("advance: status %d", resp.StatusCode)
	}
	if step.Step != "type_declaration" {
		t.Errorf("step = %q", step.Step)
	}

	backURL := fmt.Sprintf("%s/api/sessions/%s/back", srv.URL, id)
	doJSON(t, http.MethodPost, backURL, nil, &step)
	if step.Step != "upload" {
		t.Errorf("step after back = %q", step.Step)
	}
}
