package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"autodash-backend/internal/cleaning"
	"autodash-backend/internal/dataset"
	"autodash-backend/internal/models"
)

// Step is one stage of the guided wizard.
type Step string

const (
	StepUpload          Step = "upload"
	StepTypeDeclaration Step = "type_declaration"
	StepProcessing      Step = "processing"
	StepProfiling       Step = "profiling"
	StepFeatureCreation Step = "feature_creation"
	StepTargetAnalysis  Step = "target_analysis"
	StepClustering      Step = "clustering"
	StepSegmentation    Step = "segmentation"
	StepDashboard       Step = "dashboard"
	StepPresentation    Step = "presentation"
)

// stepOrder is the forward path through the wizard.
var stepOrder = []Step{
	StepUpload,
	StepTypeDeclaration,
	StepProcessing,
	StepProfiling,
	StepFeatureCreation,
	StepTargetAnalysis,
	StepClustering,
	StepSegmentation,
	StepDashboard,
	StepPresentation,
}

// Session carries one user's state through the wizard. All wizard state
// lives here explicitly; nothing is global.
type Session struct {
	mu sync.RWMutex

	ID        string
	CreatedAt time.Time

	step          Step
	frame         *dataset.Frame
	declaredTypes map[string]dataset.ColumnType
	table         *dataset.Table
	version       int
	report        *cleaning.Report
	measures      map[string]float64
	processingLog map[string]int
	charts        []models.ChartSpec
	kpiCards      []string
}

func newSession() *Session {
	return &Session{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now(),
		step:          StepUpload,
		declaredTypes: make(map[string]dataset.ColumnType),
	}
}

// Step returns the current wizard step.
func (s *Session) Step() Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// Advance moves to the next wizard step after validating that the session
// carries the state that step needs.
func (s *Session) Advance() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := stepIndex(s.step)
	if idx == len(stepOrder)-1 {
		return s.step, fmt.Errorf("already at the final step %q", s.step)
	}
	next := stepOrder[idx+1]
	if err := s.canEnter(next); err != nil {
		return s.step, err
	}
	s.step = next
	return s.step, nil
}

// Back moves to the previous wizard step.
func (s *Session) Back() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := stepIndex(s.step)
	if idx == 0 {
		return s.step, fmt.Errorf("already at the first step %q", s.step)
	}
	s.step = stepOrder[idx-1]
	return s.step, nil
}

// canEnter validates a step's preconditions. Caller holds the lock.
func (s *Session) canEnter(step Step) error {
	switch step {
	case StepTypeDeclaration, StepProcessing:
		if s.frame == nil {
			return fmt.Errorf("no dataset uploaded yet")
		}
	case StepProfiling, StepFeatureCreation, StepTargetAnalysis,
		StepClustering, StepSegmentation, StepDashboard:
		if s.table == nil {
			return fmt.Errorf("dataset has not been processed yet")
		}
	case StepPresentation:
		if len(s.charts) == 0 {
			return fmt.Errorf("add at least one chart before presenting")
		}
	}
	return nil
}

// SetFrame stores the uploaded raw frame and resets downstream state.
func (s *Session) SetFrame(f *dataset.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
	s.table = nil
	s.report = nil
	s.measures = nil
	s.processingLog = nil
	s.charts = nil
	s.kpiCards = nil
	s.declaredTypes = make(map[string]dataset.ColumnType)
	s.version++
}

// Frame returns the raw frame, nil before upload.
func (s *Session) Frame() *dataset.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// DeclareTypes records user type overrides from the declaration step.
func (s *Session) DeclareTypes(types map[string]dataset.ColumnType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for col, t := range types {
		s.declaredTypes[col] = t
	}
}

// DeclaredTypes returns a copy of the user's type overrides.
func (s *Session) DeclaredTypes() map[string]dataset.ColumnType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]dataset.ColumnType, len(s.declaredTypes))
	for k, v := range s.declaredTypes {
		out[k] = v
	}
	return out
}

// SetProcessed stores the outcome of the processing step.
func (s *Session) SetProcessed(t *dataset.Table, report *cleaning.Report, measures map[string]float64, log map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
	s.report = report
	s.measures = measures
	s.processingLog = log
	s.version++
}

// Table returns the processed table, nil before processing.
func (s *Session) Table() *dataset.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Version identifies the current table contents; it bumps on every
// mutation, which invalidates cached narratives.
func (s *Session) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// BumpVersion marks the table as mutated in place (new feature column,
// segmentation).
func (s *Session) BumpVersion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
}

// Report returns the cleaning report, nil before processing.
func (s *Session) Report() *cleaning.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// Measures returns the automated measures, nil before processing.
func (s *Session) Measures() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.measures
}

// ProcessingLog returns the processing counters (outliers, features).
func (s *Session) ProcessingLog() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processingLog
}

// MaxCharts caps the dashboard size.
const MaxCharts = 10

// AddChart appends a chart spec to the dashboard.
func (s *Session) AddChart(spec models.ChartSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.charts) >= MaxCharts {
		return fmt.Errorf("maximum of %d charts reached", MaxCharts)
	}
	s.charts = append(s.charts, spec)
	return nil
}

// Charts returns a copy of the chart list in dashboard order.
func (s *Session) Charts() []models.ChartSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ChartSpec(nil), s.charts...)
}

// Chart looks a chart up by ID.
func (s *Session) Chart(id string) (models.ChartSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.charts {
		if c.ID == id {
			return c, true
		}
	}
	return models.ChartSpec{}, false
}

// RemoveChart deletes a chart by ID.
func (s *Session) RemoveChart(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.charts {
		if c.ID == id {
			s.charts = append(s.charts[:i], s.charts[i+1:]...)
			return true
		}
	}
	return false
}

// ReorderCharts rearranges the dashboard to the given ID order. Every
// existing chart must appear exactly once.
func (s *Session) ReorderCharts(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) != len(s.charts) {
		return fmt.Errorf("order lists %d charts, dashboard has %d", len(ids), len(s.charts))
	}
	byID := make(map[string]models.ChartSpec, len(s.charts))
	for _, c := range s.charts {
		byID[c.ID] = c
	}
	ordered := make([]models.ChartSpec, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok || seen[id] {
			return fmt.Errorf("unknown or repeated chart id %q", id)
		}
		seen[id] = true
		ordered = append(ordered, c)
	}
	s.charts = ordered
	return nil
}

// SetCharts replaces the whole dashboard (layout import).
func (s *Session) SetCharts(charts []models.ChartSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charts = append([]models.ChartSpec(nil), charts...)
}

// MaxKPICards caps the KPI strip.
const MaxKPICards = 3

// SetKPICards selects measures for the KPI strip.
func (s *Session) SetKPICards(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(names) > MaxKPICards {
		return fmt.Errorf("maximum of %d KPI cards", MaxKPICards)
	}
	for _, name := range names {
		if _, ok := s.measures[name]; !ok {
			return fmt.Errorf("unknown measure %q", name)
		}
	}
	s.kpiCards = append([]string(nil), names...)
	return nil
}

// KPICards returns the selected KPI measures.
func (s *Session) KPICards() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.kpiCards...)
}

func stepIndex(step Step) int {
	for i, s := range stepOrder {
		if s == step {
			return i
		}
	}
	return 0
}

// Store holds live sessions keyed by ID.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session at the upload step.
func (st *Store) Create() *Session {
	s := newSession()
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
	return s
}

// Get looks a session up by ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete removes a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}
