// Command keyboard is a hook that turns gestures into keystrokes.
// It uses AppleScript on macOS and xdotool elsewhere.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// dryRunEnv makes the hook print the command instead of running it.
const dryRunEnv = "ABHINAYA_HOOK_DRY_RUN"

// Request is the hook input.
type Request struct {
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Event   string          `json:"event"`
	Gesture string          `json:"gesture"`
	Entity  string          `json:"entity"`
	Config  json.RawMessage `json:"config"`
}

// Response is the hook output.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Keystroke is one key with optional modifiers.
type Keystroke struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// Config either names a key directly or maps gesture types to keys.
type Config struct {
	Keystroke
	Keys map[string]Keystroke `json:"keys"`
}

var appleModifiers = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

var xdotoolModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	args, err := handle(req, runtime.GOOS)
	if err != nil {
		writeResponse(Response{Error: err.Error()})
		return
	}

	if os.Getenv(dryRunEnv) != "" {
		data, _ := json.Marshal(args)
		writeResponse(Response{Success: true, Data: data})
		return
	}

	if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("%s failed: %v: %s", args[0], err, out)})
		return
	}
	writeResponse(Response{Success: true})
}

// handle resolves the keystroke for a request and returns the command line
// that sends it.
func handle(req Request, goos string) ([]string, error) {
	if req.Action != "keystroke" && req.Action != "shortcut" {
		return nil, fmt.Errorf("unknown action: %s", req.Action)
	}

	ks, err := resolve(req)
	if err != nil {
		return nil, err
	}

	if goos == "darwin" {
		return []string{"osascript", "-e", appleScript(ks)}, nil
	}
	return []string{"xdotool", "key", xdotoolKey(ks)}, nil
}

func resolve(req Request) (Keystroke, error) {
	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return Keystroke{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cfg.Key != "" {
		return cfg.Keystroke, nil
	}
	if ks, ok := cfg.Keys[req.Gesture]; ok && ks.Key != "" {
		return ks, nil
	}
	if req.Gesture == "" {
		return Keystroke{}, errors.New("key is required")
	}
	return Keystroke{}, fmt.Errorf("no key configured for gesture %s", req.Gesture)
}

func appleScript(ks Keystroke) string {
	var mods []string
	for _, m := range ks.Modifiers {
		if am, ok := appleModifiers[strings.ToLower(m)]; ok {
			mods = append(mods, am)
		}
	}
	if len(mods) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, ks.Key)
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, ks.Key, strings.Join(mods, ", "))
}

func xdotoolKey(ks Keystroke) string {
	parts := make([]string, 0, len(ks.Modifiers)+1)
	for _, m := range ks.Modifiers {
		if xm, ok := xdotoolModifiers[strings.ToLower(m)]; ok {
			parts = append(parts, xm)
		}
	}
	return strings.Join(append(parts, ks.Key), "+")
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
