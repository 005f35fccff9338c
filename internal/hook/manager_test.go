package hook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir string, m Manifest) string {
	t.Helper()

	hookDir := filepath.Join(dir, m.Name)
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return hookDir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()

	hookDir := writeManifest(t, tmpDir, Manifest{
		Name:        "keyboard",
		Version:     "1.0.0",
		Description: "Sends keystrokes",
		Executable:  "keyboard",
		Actions:     []string{"keystroke"},
		Gestures:    []string{"swipe_left", "swipe_right"},
	})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}

	h := hooks[0]
	if h.Manifest.Name != "keyboard" {
		t.Errorf("expected hook name 'keyboard', got %q", h.Manifest.Name)
	}
	if h.Manifest.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", h.Manifest.Version)
	}
	if len(h.Manifest.Gestures) != 2 {
		t.Errorf("expected 2 gestures, got %d", len(h.Manifest.Gestures))
	}
	if h.Path != hookDir {
		t.Errorf("expected path %q, got %q", hookDir, h.Path)
	}
	if want := filepath.Join(hookDir, "keyboard"); h.Executable != want {
		t.Errorf("expected executable %q, got %q", want, h.Executable)
	}
}

func TestManager_Discover_SortsAndSkipsInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	writeManifest(t, tmpDir, Manifest{Name: "zeta", Executable: "run"})
	writeManifest(t, tmpDir, Manifest{Name: "alpha", Executable: "run"})
	writeManifest(t, tmpDir, Manifest{Name: "no-exec"})

	broken := filepath.Join(tmpDir, "broken")
	if err := os.MkdirAll(broken, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(broken, ManifestFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	if hooks[0].Manifest.Name != "alpha" || hooks[1].Manifest.Name != "zeta" {
		t.Errorf("expected [alpha zeta], got [%s %s]", hooks[0].Manifest.Name, hooks[1].Manifest.Name)
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing"))
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() on missing dir should not fail: %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no hooks")
	}
}

func TestManager_Get(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "keyboard", Executable: "keyboard"})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	h, err := manager.Get("keyboard")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if h.Manifest.Name != "keyboard" {
		t.Errorf("expected 'keyboard', got %q", h.Manifest.Name)
	}

	if _, err := manager.Get("missing"); err != ErrHookNotFound {
		t.Errorf("expected ErrHookNotFound, got %v", err)
	}
	if manager.Dir() != tmpDir {
		t.Errorf("expected dir %q, got %q", tmpDir, manager.Dir())
	}
}

func TestHook_Wants(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		event    string
		gesture  string
		want     bool
	}{
		{"listed gesture", Manifest{Gestures: []string{"fist"}}, gestureEvent, "fist", true},
		{"other gesture", Manifest{Gestures: []string{"fist"}}, gestureEvent, "punch", false},
		{"wildcard", Manifest{Gestures: []string{AnyGesture}}, gestureEvent, "punch", true},
		{"no gestures", Manifest{}, gestureEvent, "fist", false},
		{"default ignores calibration", Manifest{Gestures: []string{AnyGesture}}, "calibration-completed", "", false},
		{"listed event", Manifest{Events: []string{"calibration-completed"}}, "calibration-completed", "", true},
		{"events without gestures", Manifest{Events: []string{gestureEvent}}, gestureEvent, "fist", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Hook{Manifest: tt.manifest}
			if got := h.Wants(tt.event, tt.gesture); got != tt.want {
				t.Errorf("Wants(%q, %q) = %v, want %v", tt.event, tt.gesture, got, tt.want)
			}
		})
	}
}

func TestHook_Action(t *testing.T) {
	if got := (&Hook{}).Action(); got != DefaultAction {
		t.Errorf("expected %q, got %q", DefaultAction, got)
	}
	h := &Hook{Manifest: Manifest{Actions: []string{"keystroke", "type"}}}
	if got := h.Action(); got != "keystroke" {
		t.Errorf("expected 'keystroke', got %q", got)
	}
}
