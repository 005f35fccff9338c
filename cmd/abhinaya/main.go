// Command abhinaya runs the gesture recognition daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/abhinaya/internal/app"
	"github.com/ayusman/abhinaya/internal/config"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/store"
	"github.com/ayusman/abhinaya/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides listen_addr)")
	withTray := flag.Bool("tray", false, "show the system tray menu")
	flag.Parse()

	cfg := config.Empty()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "abhinaya: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	log.Init(cfg.GetLogLevel())

	opts := app.Options{ListenAddr: *addr}
	if cfg.GetWebDir() == "" {
		opts.WebDir = findWebDir()
	}

	a, err := app.New(cfg, opts)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	var t *tray.Tray
	if *withTray || cfg.GetTray() {
		t = newTray(a)
		a.Subscribe(t)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		log.Error("failed to start", "error", err)
		a.Stop()
		os.Exit(1)
	}
	if opts.WebDir != "" {
		log.Info("serving static files", "dir", opts.WebDir)
	}

	if t != nil {
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.SetEnabled(a.Runner().Enabled())
		t.Run()
	} else {
		<-ctx.Done()
	}

	a.Stop()
}

func newTray(a *app.App) *tray.Tray {
	t := tray.New(true)
	t.OnToggle(func(enabled bool) error {
		if err := a.Runner().SetEnabled(enabled); err != nil {
			log.Warn("failed to toggle recognition", "error", err)
			return err
		}
		if err := a.Store().Settings().SetBool(store.SettingRecognitionEnabled, enabled); err != nil {
			log.Warn("failed to persist recognition flag", "error", err)
		}
		return nil
	})
	t.OnCalibrate(func(start bool) error {
		if start {
			return a.Runner().StartCalibration()
		}
		if !a.Runner().StopCalibration() {
			return errors.New("no calibration running")
		}
		return nil
	})
	t.OnSettings(func() {
		if err := openBrowser(dashboardURL(a.Addr())); err != nil {
			log.Warn("failed to open settings", "error", err)
		}
	})
	return t
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, "[::]:") || strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "localhost" + addr[strings.LastIndex(addr, ":"):]
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	return exec.Command(name, url).Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.abhinaya/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".abhinaya", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
