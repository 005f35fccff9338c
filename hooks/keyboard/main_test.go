package main

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHandle(t *testing.T) {
	mapping := json.RawMessage(`{"keys":{"punch":{"key":"j"},"swipe_left":{"key":"a","modifiers":["shift"]}}}`)

	tests := []struct {
		name string
		req  Request
		goos string
		want []string
	}{
		{
			name: "mapped gesture on linux",
			req:  Request{Action: "keystroke", Gesture: "punch", Config: mapping},
			goos: "linux",
			want: []string{"xdotool", "key", "j"},
		},
		{
			name: "modifiers on linux",
			req:  Request{Action: "keystroke", Gesture: "swipe_left", Config: mapping},
			goos: "linux",
			want: []string{"xdotool", "key", "shift+a"},
		},
		{
			name: "modifiers on macOS",
			req:  Request{Action: "keystroke", Gesture: "swipe_left", Config: mapping},
			goos: "darwin",
			want: []string{"osascript", "-e", `tell application "System Events" to keystroke "a" using {shift down}`},
		},
		{
			name: "direct key wins over mapping",
			req:  Request{Action: "shortcut", Gesture: "punch", Config: json.RawMessage(`{"key":"c","modifiers":["cmd","bogus"],"keys":{"punch":{"key":"j"}}}`)},
			goos: "darwin",
			want: []string{"osascript", "-e", `tell application "System Events" to keystroke "c" using {command down}`},
		},
		{
			name: "unknown modifiers dropped",
			req:  Request{Action: "keystroke", Config: json.RawMessage(`{"key":"x","modifiers":["hyper"]}`)},
			goos: "darwin",
			want: []string{"osascript", "-e", `tell application "System Events" to keystroke "x"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := handle(tt.req, tt.goos)
			if err != nil {
				t.Fatalf("handle() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("handle() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"unknown action", Request{Action: "type", Config: json.RawMessage(`{"key":"a"}`)}},
		{"unmapped gesture", Request{Action: "keystroke", Gesture: "fist", Config: json.RawMessage(`{"keys":{"punch":{"key":"j"}}}`)}},
		{"no key", Request{Action: "keystroke"}},
		{"bad config", Request{Action: "keystroke", Config: json.RawMessage(`[]`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := handle(tt.req, "linux"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
