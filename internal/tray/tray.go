// Package tray provides the system tray menu for the abhinaya daemon.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/abhinaya/internal/calibration"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/pipeline"
)

const (
	titleEnabled        = "● Recognition on"
	titleDisabled       = "○ Recognition off"
	titleStartCalibrate = "Start Calibration"
	titleStopCalibrate  = "Stop Calibration"
)

// Tray is the system tray menu. It is also a pipeline observer that shows
// the last committed gesture and the calibration status.
type Tray struct {
	onToggle    func(enabled bool) error
	onCalibrate func(start bool) error
	onSettings  func()
	onQuit      func()

	mu          sync.RWMutex
	enabled     bool
	calibrating bool
	lastGesture string
	status      string

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuCalibrate   *systray.MenuItem
	menuStatus      *systray.MenuItem
}

// New creates a Tray showing the given recognition state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
		status:  "Calibration: idle",
	}
}

// OnToggle sets the callback for the recognition toggle. When it fails the
// menu keeps its previous state.
func (t *Tray) OnToggle(fn func(enabled bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnCalibrate sets the callback that starts or stops a calibration session.
func (t *Tray) OnCalibrate(fn func(start bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCalibrate = fn
}

// OnSettings sets the callback for the settings item.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback for the quit item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It blocks until Quit is called and must run
// on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Abhinaya")
	systray.SetTooltip("Abhinaya Gesture Recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle gesture recognition")
	systray.AddSeparator()

	t.menuLastGesture = systray.AddMenuItem(lastGestureTitle(t.lastGesture), "Last detected gesture")
	t.menuLastGesture.Disable()
	systray.AddSeparator()

	t.menuCalibrate = systray.AddMenuItem(calibrateTitle(t.calibrating), "Run the calibration protocol")
	t.menuStatus = systray.AddMenuItem(t.status, "Calibration status")
	t.menuStatus.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Abhinaya")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuCalibrate.ClickedCh:
				t.handleCalibrate()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.RLock()
	next := !t.enabled
	callback := t.onToggle
	t.mu.RUnlock()

	// callbacks run outside the lock
	if callback != nil {
		if err := callback(next); err != nil {
			return
		}
	}
	t.SetEnabled(next)
}

func (t *Tray) handleCalibrate() {
	t.mu.RLock()
	start := !t.calibrating
	callback := t.onCalibrate
	t.mu.RUnlock()

	if callback == nil {
		return
	}
	if err := callback(start); err != nil {
		t.setStatus("Calibration: " + err.Error())
		return
	}
	if !start {
		t.setCalibrating(false, "Calibration: stopped")
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

// OnEvent updates the menu from a pipeline event.
func (t *Tray) OnEvent(e pipeline.Event) {
	switch e.Kind {
	case pipeline.KindGesture:
		if e.Gesture != nil {
			t.SetLastGesture(gestureLabel(*e.Gesture))
		}
	case pipeline.KindStepStarted:
		status := "Calibration: running"
		if e.Step != nil {
			status = fmt.Sprintf("Calibration: step %d (%s)", e.Step.StepIndex+1, e.Step.StepID)
		}
		t.setCalibrating(true, status)
	case pipeline.KindCalibrationGesture:
		if e.Step != nil {
			t.setStatus(fmt.Sprintf("Calibration: step %d (%s), %s detected", e.Step.StepIndex+1, e.Step.StepID, e.Step.Gesture))
		}
	case pipeline.KindCalibrationCompleted:
		t.setCalibrating(false, reportStatus(e.Report))
	}
}

// SetEnabled updates the recognition toggle.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetLastGesture updates the last gesture display in the menu.
func (t *Tray) SetLastGesture(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastGesture = name
	if t.menuLastGesture != nil {
		t.menuLastGesture.SetTitle(lastGestureTitle(name))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// LastGesture returns the label of the last committed gesture.
func (t *Tray) LastGesture() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastGesture
}

// Status returns the calibration status line.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Tray) setStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(status)
	}
}

func (t *Tray) setCalibrating(calibrating bool, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calibrating = calibrating
	t.status = status
	if t.menuCalibrate != nil {
		t.menuCalibrate.SetTitle(calibrateTitle(calibrating))
	}
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(status)
	}
}

func reportStatus(r *calibration.Report) string {
	switch {
	case r == nil:
		return "Calibration: done"
	case r.Ready:
		return "Calibration: ready"
	case len(r.Missed) > 0:
		return fmt.Sprintf("Calibration: not ready, %d gestures missed", len(r.Missed))
	default:
		return "Calibration: not ready"
	}
}

func gestureLabel(e gesture.Event) string {
	return fmt.Sprintf("%s (%s)", e.Type, e.Entity)
}

func toggleTitle(enabled bool) string {
	if enabled {
		return titleEnabled
	}
	return titleDisabled
}

func calibrateTitle(calibrating bool) string {
	if calibrating {
		return titleStopCalibrate
	}
	return titleStartCalibrate
}

func lastGestureTitle(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}
