// Package config loads the daemon configuration from a JSON file. Every
// field is optional; the Get* accessors fall back to the built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayusman/abhinaya/internal/calibration"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/pipeline"
)

// Defaults for the service settings.
const (
	DefaultListenAddr   = ":8080"
	DefaultDataDir      = "~/.abhinaya"
	DefaultHookTimeout  = 5 * time.Second
	DefaultHookWorkers  = 4
	DefaultRedisChannel = "abhinaya"
	DefaultLogLevel     = "info"
	DatabaseFile        = "abhinaya.db"
)

const maxFileSize = 1 * 1024 * 1024

// Thresholds are the classifier distances and velocities.
type Thresholds struct {
	PinchDistance *float64 `json:"pinch_distance,omitempty"`
	PunchVelocity *float64 `json:"punch_velocity,omitempty"`
	BlockVelocity *float64 `json:"block_velocity,omitempty"`
	SwipeVelocity *float64 `json:"swipe_velocity,omitempty"`
	FingerLength  *float64 `json:"finger_length,omitempty"`
	LeanOffset    *float64 `json:"lean_offset,omitempty"`
	CrouchDepth   *float64 `json:"crouch_depth,omitempty"`
}

// Step is a calibration step as written in the file.
type Step struct {
	ID               string   `json:"id"`
	Name             string   `json:"name,omitempty"`
	Instructions     string   `json:"instructions,omitempty"`
	Category         string   `json:"category"`
	RequiredGestures []string `json:"required_gestures,omitempty"`
	Duration         string   `json:"duration"` // duration string like "5s"
}

// Config is the root configuration.
type Config struct {
	// Recognition
	SmoothingFactor *float64    `json:"smoothing_factor,omitempty"`
	HoldTime        *string     `json:"hold_time,omitempty"` // duration string like "200ms"
	Cooldown        *string     `json:"cooldown,omitempty"`
	Thresholds      *Thresholds `json:"thresholds,omitempty"`

	// Calibration
	MinConfidence    *float64 `json:"min_confidence,omitempty"`
	CalibrationSteps []Step   `json:"calibration_steps,omitempty"`

	// Service
	ListenAddr *string `json:"listen_addr,omitempty"`
	DataDir    *string `json:"data_dir,omitempty"`
	WebDir     *string `json:"web_dir,omitempty"`
	LogLevel   *string `json:"log_level,omitempty"`
	Tray       *bool   `json:"tray,omitempty"`

	// Estimator subprocess
	EstimatorCommand      []string `json:"estimator_command,omitempty"`
	EstimatorStallTimeout *string  `json:"estimator_stall_timeout,omitempty"`

	// Hooks
	HookDir     *string `json:"hook_dir,omitempty"`
	HookTimeout *string `json:"hook_timeout,omitempty"`
	HookWorkers *int    `json:"hook_workers,omitempty"`

	// Event log
	EventRetention *string `json:"event_retention,omitempty"`

	// Redis fan-out, disabled when redis_addr is empty
	RedisAddr     *string `json:"redis_addr,omitempty"`
	RedisPassword *string `json:"redis_password,omitempty"`
	RedisDB       *int    `json:"redis_db,omitempty"`
	RedisChannel  *string `json:"redis_channel,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The path must have a .json
// extension and the file must be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.SmoothingFactor != nil && (*c.SmoothingFactor < 0 || *c.SmoothingFactor >= 1) {
		return fmt.Errorf("smoothing_factor must be in [0, 1), got %f", *c.SmoothingFactor)
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
	}
	if c.HookWorkers != nil && *c.HookWorkers < 1 {
		return fmt.Errorf("hook_workers must be positive, got %d", *c.HookWorkers)
	}

	durations := map[string]*string{
		"hold_time":               c.HoldTime,
		"cooldown":                c.Cooldown,
		"hook_timeout":            c.HookTimeout,
		"estimator_stall_timeout": c.EstimatorStallTimeout,
		"event_retention":         c.EventRetention,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if err := c.Gesture().Validate(); err != nil {
		return err
	}

	if len(c.CalibrationSteps) > 0 {
		steps, err := c.parseSteps()
		if err != nil {
			return err
		}
		if err := calibration.ValidateSteps(steps); err != nil {
			return fmt.Errorf("calibration_steps: %w", err)
		}
	}

	return nil
}

// GetSmoothingFactor returns smoothing_factor or the default.
func (c *Config) GetSmoothingFactor() float64 {
	if c.SmoothingFactor == nil {
		return landmark.DefaultSmoothingFactor
	}
	return *c.SmoothingFactor
}

// GetMinConfidence returns min_confidence or the default.
func (c *Config) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return calibration.DefaultMinConfidence
	}
	return *c.MinConfidence
}

// Gesture returns the recognizer settings with defaults filled in.
func (c *Config) Gesture() gesture.Config {
	g := gesture.DefaultConfig()
	g.HoldTime = duration(c.HoldTime, g.HoldTime)
	g.Cooldown = duration(c.Cooldown, g.Cooldown)

	if t := c.Thresholds; t != nil {
		setFloat(&g.PinchDistance, t.PinchDistance)
		setFloat(&g.PunchVelocity, t.PunchVelocity)
		setFloat(&g.BlockVelocity, t.BlockVelocity)
		setFloat(&g.SwipeVelocity, t.SwipeVelocity)
		setFloat(&g.FingerLength, t.FingerLength)
		setFloat(&g.LeanOffset, t.LeanOffset)
		setFloat(&g.CrouchDepth, t.CrouchDepth)
	}
	return g
}

// GetCalibrationSteps returns the configured protocol, or the default one.
// Invalid steps also yield the default; Validate reports them.
func (c *Config) GetCalibrationSteps() []calibration.Step {
	if len(c.CalibrationSteps) == 0 {
		return calibration.DefaultSteps()
	}
	steps, err := c.parseSteps()
	if err != nil {
		return calibration.DefaultSteps()
	}
	return steps
}

func (c *Config) parseSteps() ([]calibration.Step, error) {
	steps := make([]calibration.Step, 0, len(c.CalibrationSteps))
	for i, s := range c.CalibrationSteps {
		d, err := time.ParseDuration(s.Duration)
		if err != nil {
			return nil, fmt.Errorf("calibration_steps[%d]: invalid duration '%s': %w", i, s.Duration, err)
		}
		step := calibration.Step{
			ID:           s.ID,
			Name:         s.Name,
			Instructions: s.Instructions,
			Category:     calibration.Category(s.Category),
			Duration:     d,
		}
		for _, g := range s.RequiredGestures {
			step.RequiredGestures = append(step.RequiredGestures, gesture.Type(g))
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Pipeline returns the engine configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		SmoothingFactor: c.GetSmoothingFactor(),
		Gesture:         c.Gesture(),
		Steps:           c.GetCalibrationSteps(),
		MinConfidence:   c.GetMinConfidence(),
	}
}

// GetListenAddr returns listen_addr or the default.
func (c *Config) GetListenAddr() string {
	return str(c.ListenAddr, DefaultListenAddr)
}

// GetDataDir returns data_dir with a leading ~ expanded.
func (c *Config) GetDataDir() string {
	return expandHome(str(c.DataDir, DefaultDataDir))
}

// DatabasePath returns the SQLite file inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), DatabaseFile)
}

// GetWebDir returns web_dir, or "" when static files are not served.
func (c *Config) GetWebDir() string {
	return expandHome(str(c.WebDir, ""))
}

// GetLogLevel returns log_level or the default.
func (c *Config) GetLogLevel() string {
	return str(c.LogLevel, DefaultLogLevel)
}

// GetTray reports whether the system tray is enabled.
func (c *Config) GetTray() bool {
	return c.Tray != nil && *c.Tray
}

// GetEstimatorStallTimeout returns estimator_stall_timeout, or zero for the
// source default.
func (c *Config) GetEstimatorStallTimeout() time.Duration {
	return duration(c.EstimatorStallTimeout, 0)
}

// GetHookDir returns hook_dir, defaulting to hooks/ in the data directory.
func (c *Config) GetHookDir() string {
	if c.HookDir == nil || *c.HookDir == "" {
		return filepath.Join(c.GetDataDir(), "hooks")
	}
	return expandHome(*c.HookDir)
}

// GetHookTimeout returns hook_timeout or the default.
func (c *Config) GetHookTimeout() time.Duration {
	return duration(c.HookTimeout, DefaultHookTimeout)
}

// GetHookWorkers returns hook_workers or the default.
func (c *Config) GetHookWorkers() int {
	if c.HookWorkers == nil {
		return DefaultHookWorkers
	}
	return *c.HookWorkers
}

// GetEventRetention returns event_retention, or zero to keep every event.
func (c *Config) GetEventRetention() time.Duration {
	return duration(c.EventRetention, 0)
}

// GetRedisAddr returns redis_addr, or "" when Redis is disabled.
func (c *Config) GetRedisAddr() string {
	return str(c.RedisAddr, "")
}

// GetRedisPassword returns redis_password.
func (c *Config) GetRedisPassword() string {
	return str(c.RedisPassword, "")
}

// GetRedisDB returns redis_db.
func (c *Config) GetRedisDB() int {
	if c.RedisDB == nil {
		return 0
	}
	return *c.RedisDB
}

// GetRedisChannel returns redis_channel or the default.
func (c *Config) GetRedisChannel() string {
	return str(c.RedisChannel, DefaultRedisChannel)
}

func str(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
