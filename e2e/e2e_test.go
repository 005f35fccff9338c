package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/ayusman/abhinaya/internal/app"
	"github.com/ayusman/abhinaya/internal/config"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/hook"
	"github.com/ayusman/abhinaya/internal/pipeline"
	"github.com/ayusman/abhinaya/testdata"
)

func ptr[T any](v T) *T { return &v }

type committed struct {
	Type   gesture.Type
	Entity gesture.Entity
}

// replay runs a recorded session through a fresh engine on the session's own
// timestamps.
func replay(t *testing.T, cfg *config.Config, session string) (*pipeline.Engine, []committed) {
	t.Helper()

	bundles, err := testdata.LoadSession(session)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	engine, err := pipeline.NewEngine(cfg.Pipeline(), nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	var got []committed
	engine.Subscribe(pipeline.ObserverFunc(func(e pipeline.Event) {
		if e.Kind == pipeline.KindGesture {
			got = append(got, committed{e.Gesture.Type, e.Gesture.Entity})
		}
	}))
	for _, b := range bundles {
		engine.ProcessBundle(b, b.Timestamp)
	}
	return engine, got
}

func TestE2E_ReplaySessions(t *testing.T) {
	cfg := config.Empty()
	cfg.SmoothingFactor = ptr(0.0)

	tests := []struct {
		session string
		want    []committed
	}{
		{
			session: testdata.FistHold,
			want:    []committed{{gesture.Fist, gesture.LeftHand}},
		},
		{
			session: testdata.SwipeRight,
			want: []committed{
				{gesture.OpenHand, gesture.RightHand},
				{gesture.SwipeRight, gesture.RightHand},
				{gesture.OpenHand, gesture.RightHand},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.session, func(t *testing.T) {
			_, got := replay(t, cfg, tt.session)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("committed gestures mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestE2E_SequenceFromReplay(t *testing.T) {
	cfg := config.Empty()
	cfg.SmoothingFactor = ptr(0.0)

	engine, _ := replay(t, cfg, testdata.SwipeRight)
	history := engine.Recognizer().History()

	if !history.MatchSequence([]gesture.Type{gesture.OpenHand, gesture.SwipeRight}, time.Second, gesture.RightHand) {
		t.Error("expected open_hand then swipe_right within 1s")
	}
	if history.MatchSequence([]gesture.Type{gesture.OpenHand, gesture.SwipeRight}, 100*time.Millisecond, gesture.RightHand) {
		t.Error("expected no match with a 100ms gap")
	}
	if history.MatchSequence([]gesture.Type{gesture.SwipeRight}, time.Second, gesture.LeftHand) {
		t.Error("expected no match for the left hand")
	}
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	cfg := config.Empty()
	cfg.DataDir = ptr(t.TempDir())
	cfg.ListenAddr = ptr("127.0.0.1:0")
	cfg.HoldTime = ptr("0s")
	cfg.SmoothingFactor = ptr(0.0)

	// A hook with no gestures in its manifest only runs through bindings.
	hookDir := filepath.Join(cfg.GetHookDir(), "capture")
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest, _ := json.Marshal(hook.Manifest{Name: "capture", Executable: "run.sh", Actions: []string{"record"}})
	if err := os.WriteFile(filepath.Join(hookDir, hook.ManifestFile), manifest, 0644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat > request.tmp && mv request.tmp request.json\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(hookDir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	application, err := app.New(cfg, app.Options{})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer application.Stop()

	baseURL := "http://" + application.Addr()
	client := &http.Client{Timeout: 5 * time.Second}

	t.Run("ListHooks", func(t *testing.T) {
		resp, err := client.Get(baseURL + "/api/hooks")
		if err != nil {
			t.Fatalf("GET /api/hooks error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Hooks []hook.Manifest `json:"hooks"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if len(body.Hooks) != 1 || body.Hooks[0].Name != "capture" {
			t.Fatalf("unexpected hooks: %+v", body.Hooks)
		}
	})

	t.Run("CreateBinding", func(t *testing.T) {
		resp, err := client.Post(
			baseURL+"/api/bindings",
			"application/json",
			strings.NewReader(`{"gesture":"fist","entity":"left_hand","hook":"capture","action":"record","config":{"tag":"e2e"}}`),
		)
		if err != nil {
			t.Fatalf("create binding error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
	})

	t.Run("StreamSession", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/frames"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer conn.Close()

		raw, err := testdata.Raw(testdata.FistHold)
		if err != nil {
			t.Fatal(err)
		}
		for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				t.Fatalf("WriteMessage() error = %v", err)
			}
		}
	})

	t.Run("HookInvoked", func(t *testing.T) {
		var req hook.Request
		deadline := time.Now().Add(5 * time.Second)
		for {
			data, err := os.ReadFile(filepath.Join(hookDir, "request.json"))
			if err == nil && json.Unmarshal(data, &req) == nil {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("timed out waiting for the hook to run")
			}
			time.Sleep(10 * time.Millisecond)
		}

		if req.Action != "record" || req.Gesture != string(gesture.Fist) || req.Entity != string(gesture.LeftHand) {
			t.Errorf("unexpected hook request: %+v", req)
		}
		if diff := cmp.Diff(`{"tag":"e2e"}`, string(req.Config)); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("EventLog", func(t *testing.T) {
		var body struct {
			Events []gesture.Event `json:"events"`
		}
		deadline := time.Now().Add(5 * time.Second)
		for len(body.Events) == 0 {
			if time.Now().After(deadline) {
				t.Fatal("timed out waiting for the event log")
			}
			resp, err := client.Get(baseURL + "/api/events/log?entity=left_hand")
			if err != nil {
				t.Fatalf("GET /api/events/log error = %v", err)
			}
			json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			time.Sleep(10 * time.Millisecond)
		}

		if len(body.Events) != 1 || body.Events[0].Type != gesture.Fist {
			t.Errorf("unexpected event log: %+v", body.Events)
		}
	})

	t.Run("MatchSequence", func(t *testing.T) {
		resp, err := client.Post(
			baseURL+"/api/history/match",
			"application/json",
			strings.NewReader(`{"pattern":["fist"],"maxGapMs":1000,"entity":"left_hand"}`),
		)
		if err != nil {
			t.Fatalf("POST /api/history/match error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Matched bool `json:"matched"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if !body.Matched {
			t.Error("expected the fist to match")
		}
	})
}
