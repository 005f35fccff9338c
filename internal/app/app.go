// Package app wires the abhinaya daemon together: store, pipeline, hooks,
// event fan-out and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ayusman/abhinaya/internal/config"
	"github.com/ayusman/abhinaya/internal/hook"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/pipeline"
	"github.com/ayusman/abhinaya/internal/publish"
	"github.com/ayusman/abhinaya/internal/server"
	"github.com/ayusman/abhinaya/internal/source"
	"github.com/ayusman/abhinaya/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Options override parts of the file configuration.
type Options struct {
	// ListenAddr replaces listen_addr when set.
	ListenAddr string
	// WebDir replaces web_dir when set.
	WebDir string
}

// App is the running daemon.
type App struct {
	config *config.Config
	opts   Options

	store      *store.Store
	engine     *pipeline.Engine
	runner     *pipeline.Runner
	hooks      *hook.Manager
	dispatcher *hook.Dispatcher
	recorder   *Recorder
	publisher  *publish.Publisher
	hub        *server.Hub
	server     *server.Server

	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	listener   net.Listener
	httpServer *http.Server
	feedDone   chan struct{}
}

// New opens the store and builds every component. Nothing runs until Start.
func New(cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine, err := pipeline.NewEngine(cfg.Pipeline(), st)
	if err != nil {
		st.Close()
		return nil, err
	}

	hooks := hook.NewManager(cfg.GetHookDir())
	if err := hooks.Discover(); err != nil {
		log.Warn("hook discovery failed", "dir", hooks.Dir(), "error", err)
	}

	a := &App{
		config:     cfg,
		opts:       opts,
		store:      st,
		engine:     engine,
		hooks:      hooks,
		dispatcher: hook.NewDispatcher(hooks, hook.NewExecutor(cfg.GetHookTimeout()), st.Bindings(), cfg.GetHookWorkers()),
		recorder:   NewRecorder(st.Events(), cfg.GetEventRetention(), nil),
		hub:        server.NewHub(),
	}

	engine.Subscribe(a.recorder)
	engine.Subscribe(a.dispatcher)

	if addr := cfg.GetRedisAddr(); addr != "" {
		pcfg := publish.DefaultConfig()
		pcfg.Addr = addr
		pcfg.Password = cfg.GetRedisPassword()
		pcfg.DB = cfg.GetRedisDB()
		pcfg.Channel = cfg.GetRedisChannel()
		p, err := publish.New(pcfg)
		if err != nil {
			log.Warn("redis fan-out disabled", "addr", addr, "error", err)
		} else {
			a.publisher = p
			engine.Subscribe(p)
			log.Info("publishing events to redis", "addr", addr, "channel", pcfg.Channel)
		}
	}

	engine.Subscribe(a.hub)

	a.runner = pipeline.NewRunner(engine, nil)
	a.server = server.New(server.Config{
		StaticDir:  a.webDir(),
		Controller: a.runner,
		Store:      st,
		Hooks:      hooks,
		Hub:        a.hub,
	})
	return a, nil
}

// Subscribe adds an observer after the built-in ones. It must be called
// before Start.
func (a *App) Subscribe(o pipeline.Observer) {
	a.engine.Subscribe(o)
}

// Start runs the pipeline, the background workers, the estimator feed when
// configured and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}

	ln, err := net.Listen("tcp", a.listenAddr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.listener = ln

	a.runner.Start(ctx)
	enabled, err := a.store.Settings().GetBool(store.SettingRecognitionEnabled, true)
	if err != nil {
		log.Warn("failed to read recognition flag", "error", err)
		enabled = true
	}
	if err := a.runner.SetEnabled(enabled); err != nil {
		log.Warn("failed to restore recognition flag", "error", err)
	}

	a.recorder.Start(ctx)
	a.dispatcher.Start(ctx)
	if a.publisher != nil {
		a.publisher.Start(ctx)
	}

	if cmd := a.config.EstimatorCommand; len(cmd) > 0 {
		src, err := source.NewProcessSource(cmd, a.config.GetEstimatorStallTimeout())
		if err != nil {
			log.Error("estimator disabled", "error", err)
		} else {
			a.feedDone = make(chan struct{})
			go a.feed(ctx, src)
		}
	}

	a.httpServer = &http.Server{Handler: a.server, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
		}
	}()

	a.started = true
	log.Info("abhinaya started", "addr", ln.Addr().String(), "hooks", len(a.hooks.List()), "recognition", enabled)
	return nil
}

// Stop shuts everything down in reverse order and closes the store.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.httpServer.Shutdown(ctx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		cancel()

		a.cancel()
		if a.feedDone != nil {
			<-a.feedDone
		}
		a.runner.Stop()
		a.started = false
	}

	a.hub.Close()
	a.dispatcher.Close()
	a.recorder.Close()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn("redis close", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		log.Warn("store close", "error", err)
	}
	log.Info("abhinaya stopped")
}

// Addr returns the address the HTTP server listens on, or "" before Start.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Runner returns the pipeline runner.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// Store returns the store.
func (a *App) Store() *store.Store {
	return a.store
}

// Hooks returns the hook manager.
func (a *App) Hooks() *hook.Manager {
	return a.hooks
}

func (a *App) feed(ctx context.Context, src *source.ProcessSource) {
	defer close(a.feedDone)
	defer src.Close()

	log.Info("estimator feed started", "command", a.config.EstimatorCommand[0])
	if err := a.runner.Feed(ctx, src); err != nil {
		log.Error("estimator feed failed", "error", err, "restarts", src.Restarts())
		return
	}
	log.Info("estimator feed ended", "restarts", src.Restarts())
}

func (a *App) listenAddr() string {
	if a.opts.ListenAddr != "" {
		return a.opts.ListenAddr
	}
	return a.config.GetListenAddr()
}

func (a *App) webDir() string {
	if a.opts.WebDir != "" {
		return a.opts.WebDir
	}
	return a.config.GetWebDir()
}
