package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ayusman/abhinaya/internal/config"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/hook"
	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/source"
	"github.com/ayusman/abhinaya/internal/store"
)

func ptr[T any](v T) *T { return &v }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Empty()
	cfg.DataDir = ptr(t.TempDir())
	cfg.ListenAddr = ptr("127.0.0.1:0")
	cfg.HoldTime = ptr("0s")
	cfg.SmoothingFactor = ptr(0.0)
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		a.Stop()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(a.Stop)
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func eventCount(t *testing.T, a *App) int {
	t.Helper()
	events, err := a.Store().Events().List(0, "")
	if err != nil {
		t.Fatalf("Events().List() error = %v", err)
	}
	return len(events)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SmoothingFactor = ptr(1.5)

	if _, err := New(cfg, Options{}); err == nil {
		t.Fatal("expected an error for smoothing_factor 1.5")
	}
}

func TestApp_StartStop(t *testing.T) {
	a := startApp(t, testConfig(t))

	if !a.Runner().Enabled() {
		t.Error("expected recognition enabled by default")
	}

	resp, err := http.Get("http://" + a.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if !a.Runner().Submit(landmark.Bundle{Hands: []landmark.Hand{source.Fist("Right", 300, 300, 0)}}) {
		t.Fatal("Submit() rejected the bundle")
	}
	waitFor(t, "recorded gesture", func() bool { return eventCount(t, a) == 1 })

	events, _ := a.Store().Events().List(0, "")
	if events[0].Type != gesture.Fist || events[0].Entity != gesture.RightHand {
		t.Errorf("recorded %+v, want right-hand fist", events[0])
	}
}

func TestApp_StartTwiceIsNoop(t *testing.T) {
	a := startApp(t, testConfig(t))
	addr := a.Addr()

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if a.Addr() != addr {
		t.Errorf("Addr() = %s after second Start, want %s", a.Addr(), addr)
	}
}

func TestApp_RestoresRecognitionFlag(t *testing.T) {
	cfg := testConfig(t)

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	if err := st.Settings().SetBool(store.SettingRecognitionEnabled, false); err != nil {
		t.Fatalf("SetBool() error = %v", err)
	}
	st.Close()

	a := startApp(t, cfg)
	if a.Runner().Enabled() {
		t.Error("expected recognition disabled after restart")
	}
}

func TestApp_RunsManifestHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	cfg := testConfig(t)
	hookDir := filepath.Join(cfg.GetHookDir(), "capture")
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest, _ := json.Marshal(hook.Manifest{
		Name:       "capture",
		Executable: "run.sh",
		Gestures:   []string{string(gesture.Fist)},
	})
	if err := os.WriteFile(filepath.Join(hookDir, hook.ManifestFile), manifest, 0644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat > request.tmp && mv request.tmp request.json\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(hookDir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	a := startApp(t, cfg)
	if len(a.Hooks().List()) != 1 {
		t.Fatalf("expected 1 hook discovered, got %d", len(a.Hooks().List()))
	}

	a.Runner().Submit(landmark.Bundle{Hands: []landmark.Hand{source.Fist("Left", 200, 300, 0)}})

	var req hook.Request
	waitFor(t, "hook request", func() bool {
		data, err := os.ReadFile(filepath.Join(hookDir, "request.json"))
		return err == nil && json.Unmarshal(data, &req) == nil
	})
	if req.Gesture != string(gesture.Fist) || req.Entity != string(gesture.LeftHand) {
		t.Errorf("hook got %+v, want left-hand fist", req)
	}
	if req.Action != hook.DefaultAction {
		t.Errorf("action = %q, want %q", req.Action, hook.DefaultAction)
	}
}

func TestApp_FeedsEstimatorOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	line, err := json.Marshal(source.Bundle(1000, source.Fist("Right", 300, 300, 0)))
	if err != nil {
		t.Fatal(err)
	}
	bundles := filepath.Join(t.TempDir(), "bundles.jsonl")
	if err := os.WriteFile(bundles, []byte(fmt.Sprintf("%s\n", line)), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	cfg.EstimatorCommand = []string{"cat", bundles}

	a := startApp(t, cfg)
	waitFor(t, "gesture from estimator", func() bool { return eventCount(t, a) == 1 })
}

func TestApp_WithoutRedisStillStarts(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = ptr("127.0.0.1:1")

	a := startApp(t, cfg)
	if a.publisher != nil {
		t.Error("expected redis fan-out to be disabled")
	}
}
