package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/abhinaya/internal/calibration"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/hook"
	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

type fakeController struct {
	enabled     bool
	calibrating bool
	startErr    error
	history     []gesture.Event
	lastPattern []gesture.Type
	lastGap     time.Duration
	submitted   []landmark.Bundle
}

func (f *fakeController) Submit(b landmark.Bundle) bool {
	f.submitted = append(f.submitted, b)
	return true
}

func (f *fakeController) SetEnabled(enabled bool) error {
	f.enabled = enabled
	return nil
}

func (f *fakeController) Enabled() bool { return f.enabled }

func (f *fakeController) StartCalibration() error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.calibrating {
		return calibration.ErrAlreadyRunning
	}
	f.calibrating = true
	return nil
}

func (f *fakeController) StopCalibration() bool {
	was := f.calibrating
	f.calibrating = false
	return was
}

func (f *fakeController) Progress() calibration.Progress {
	if !f.calibrating {
		return calibration.Progress{State: calibration.StateIdle, TotalSteps: 7}
	}
	return calibration.Progress{State: calibration.StateStepActive, StepID: "intro", CurrentStep: 1, TotalSteps: 7}
}

func (f *fakeController) Steps() []calibration.Step { return calibration.DefaultSteps() }

func (f *fakeController) History() []gesture.Event { return f.history }

func (f *fakeController) MatchSequence(pattern []gesture.Type, maxGap time.Duration, entity gesture.Entity) bool {
	f.lastPattern = pattern
	f.lastGap = maxGap
	return len(pattern) > 0
}

func (f *fakeController) Active() map[gesture.Entity]gesture.Type {
	return map[gesture.Entity]gesture.Type{gesture.RightHand: gesture.Fist}
}

type fakeHooks struct {
	hooks []*hook.Hook
}

func (f *fakeHooks) Get(name string) (*hook.Hook, error) {
	for _, h := range f.hooks {
		if h.Manifest.Name == name {
			return h, nil
		}
	}
	return nil, hook.ErrHookNotFound
}

func (f *fakeHooks) List() []*hook.Hook { return f.hooks }

func serve(h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestCalibrationHandler(t *testing.T) {
	ctl := &fakeController{}
	h := NewCalibrationHandler(ctl)

	rec := serve(h, http.MethodGet, "/api/calibration", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var status calibrationResponse
	decode(t, rec, &status)
	if status.State != calibration.StateIdle {
		t.Errorf("expected idle, got %s", status.State)
	}
	if len(status.Steps) != 7 {
		t.Fatalf("expected 7 steps, got %d", len(status.Steps))
	}
	if status.Steps[0].DurationMs != 3000 || status.Steps[0].RequiredGestures == nil {
		t.Errorf("unexpected first step: %+v", status.Steps[0])
	}

	rec = serve(h, http.MethodPost, "/api/calibration", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
	decode(t, rec, &status)
	if status.StepID != "intro" || status.CurrentStep != 1 {
		t.Errorf("unexpected progress: %+v", status.Progress)
	}

	rec = serve(h, http.MethodPost, "/api/calibration", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d for second start, got %d", http.StatusConflict, rec.Code)
	}

	rec = serve(h, http.MethodDelete, "/api/calibration", "")
	var stopped stopResponse
	decode(t, rec, &stopped)
	if !stopped.Stopped {
		t.Error("expected stopped=true")
	}

	rec = serve(h, http.MethodPut, "/api/calibration", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestRecognitionHandler(t *testing.T) {
	s := newTestStore(t)
	ctl := &fakeController{enabled: true}
	h := NewRecognitionHandler(ctl, s)

	rec := serve(h, http.MethodPut, "/api/recognition", `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ctl.enabled {
		t.Error("expected recognition disabled")
	}

	persisted, err := s.Settings().GetBool(store.SettingRecognitionEnabled, true)
	if err != nil {
		t.Fatalf("GetBool() failed: %v", err)
	}
	if persisted {
		t.Error("expected persisted flag false")
	}

	var resp recognitionResponse
	decode(t, serve(h, http.MethodGet, "/api/recognition", ""), &resp)
	if resp.Enabled {
		t.Error("expected enabled=false")
	}

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing flag", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodPut, "/api/recognition", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestHistoryHandler(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	ctl := &fakeController{history: []gesture.Event{
		{Type: gesture.Fist, Entity: gesture.RightHand, Timestamp: now},
		{Type: gesture.OpenHand, Entity: gesture.LeftHand, Timestamp: now.Add(-time.Second)},
	}}
	h := NewHistoryHandler(ctl)

	var resp historyResponse
	decode(t, serve(h, http.MethodGet, "/api/history?entity=left_hand", ""), &resp)
	if len(resp.Events) != 1 || resp.Events[0].Type != gesture.OpenHand {
		t.Errorf("expected only the left hand event, got %+v", resp.Events)
	}
	if resp.Active[gesture.RightHand] != gesture.Fist {
		t.Errorf("expected active fist, got %v", resp.Active)
	}

	rec := serve(h, http.MethodGet, "/api/history?entity=tail", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	var match matchResponse
	decode(t, serve(h, http.MethodPost, "/api/history/match", `{"pattern":["open_hand","fist"],"maxGapMs":1500}`), &match)
	if !match.Matched {
		t.Error("expected matched=true")
	}
	if ctl.lastGap != 1500*time.Millisecond || len(ctl.lastPattern) != 2 {
		t.Errorf("unexpected match arguments: %v %v", ctl.lastPattern, ctl.lastGap)
	}

	rec = serve(h, http.MethodPost, "/api/history/match", `{"pattern":["fist"],"maxGapMs":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	rec = serve(h, http.MethodGet, "/api/history/match", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
	rec = serve(h, http.MethodGet, "/api/history/other", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestEventLogHandler(t *testing.T) {
	s := newTestStore(t)
	base := time.UnixMilli(1_700_000_000_000)
	for i, typ := range []gesture.Type{gesture.Fist, gesture.Punch, gesture.OpenHand} {
		entity := gesture.RightHand
		if i == 2 {
			entity = gesture.LeftHand
		}
		if err := s.Events().Create(gesture.Event{Type: typ, Entity: entity, Timestamp: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
	}
	h := NewEventLogHandler(s)

	var resp eventLogResponse
	decode(t, serve(h, http.MethodGet, "/api/events/log?limit=2", ""), &resp)
	if len(resp.Events) != 2 || resp.Events[0].Type != gesture.OpenHand {
		t.Errorf("expected newest two events, got %+v", resp.Events)
	}

	decode(t, serve(h, http.MethodGet, "/api/events/log?entity=right_hand", ""), &resp)
	if len(resp.Events) != 2 || resp.Events[0].Type != gesture.Punch {
		t.Errorf("expected right hand events, got %+v", resp.Events)
	}

	for _, q := range []string{"limit=0", "limit=abc", "entity=tail"} {
		rec := serve(h, http.MethodGet, "/api/events/log?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", q, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestReportHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewReportHandler(s)

	rec := serve(h, http.MethodGet, "/api/reports/latest", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d with no reports, got %d", http.StatusNotFound, rec.Code)
	}

	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"older", "newer"} {
		r := &calibration.Report{
			ID:          id,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			CompletedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Ready:       i == 1,
		}
		if err := s.SaveReport(r); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
	}

	var list listReportsResponse
	decode(t, serve(h, http.MethodGet, "/api/reports", ""), &list)
	if len(list.Reports) != 2 || list.Reports[0].ID != "newer" {
		t.Errorf("expected newest first, got %+v", list.Reports)
	}

	var report calibration.Report
	decode(t, serve(h, http.MethodGet, "/api/reports/latest", ""), &report)
	if report.ID != "newer" || !report.Ready {
		t.Errorf("unexpected latest report: %+v", report)
	}

	decode(t, serve(h, http.MethodGet, "/api/reports/older", ""), &report)
	if report.ID != "older" {
		t.Errorf("expected older report, got %s", report.ID)
	}

	rec = serve(h, http.MethodDelete, "/api/reports/older", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	rec = serve(h, http.MethodGet, "/api/reports/older", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d after delete, got %d", http.StatusNotFound, rec.Code)
	}
	rec = serve(h, http.MethodDelete, "/api/reports/latest", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestBindingHandler_Workflow(t *testing.T) {
	s := newTestStore(t)
	hooks := &fakeHooks{hooks: []*hook.Hook{{Manifest: hook.Manifest{Name: "keyboard"}}}}
	h := NewBindingHandler(s, hooks)

	rec := serve(h, http.MethodPost, "/api/bindings", `{"gesture":"fist","entity":"right_hand","hook":"keyboard","action":"keystroke","config":{"key":"space"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var created store.Binding
	decode(t, rec, &created)
	if created.ID == "" || !created.Enabled || created.Entity != gesture.RightHand {
		t.Errorf("unexpected binding: %+v", created)
	}

	var list listBindingsResponse
	decode(t, serve(h, http.MethodGet, "/api/bindings", ""), &list)
	if len(list.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(list.Bindings))
	}

	rec = serve(h, http.MethodPut, "/api/bindings/"+created.ID, `{"enabled":false,"action":"shortcut"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var updated store.Binding
	decode(t, rec, &updated)
	if updated.Enabled || updated.Action != "shortcut" || updated.Gesture != gesture.Fist {
		t.Errorf("unexpected update: %+v", updated)
	}

	rec = serve(h, http.MethodDelete, "/api/bindings/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	rec = serve(h, http.MethodGet, "/api/bindings/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	rec = serve(h, http.MethodPut, "/api/bindings/missing", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestBindingHandler_CreateValidation(t *testing.T) {
	s := newTestStore(t)
	hooks := &fakeHooks{hooks: []*hook.Hook{{Manifest: hook.Manifest{Name: "keyboard"}}}}
	h := NewBindingHandler(s, hooks)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing gesture", `{"hook":"keyboard","action":"keystroke"}`},
		{"missing hook", `{"gesture":"fist","action":"keystroke"}`},
		{"missing action", `{"gesture":"fist","hook":"keyboard"}`},
		{"unknown gesture", `{"gesture":"wave","hook":"keyboard","action":"keystroke"}`},
		{"unknown entity", `{"gesture":"fist","entity":"tail","hook":"keyboard","action":"keystroke"}`},
		{"unknown hook", `{"gesture":"fist","hook":"mouse","action":"click"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodPost, "/api/bindings", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestHookHandler(t *testing.T) {
	hooks := &fakeHooks{hooks: []*hook.Hook{
		{Manifest: hook.Manifest{Name: "keyboard", Gestures: []string{"fist"}}},
	}}
	h := NewHookHandler(hooks)

	var resp listHooksResponse
	decode(t, serve(h, http.MethodGet, "/api/hooks", ""), &resp)
	if len(resp.Hooks) != 1 || resp.Hooks[0].Name != "keyboard" {
		t.Errorf("unexpected hooks: %+v", resp.Hooks)
	}
	rec := serve(h, http.MethodPost, "/api/hooks", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
