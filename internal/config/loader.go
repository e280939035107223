package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/fishrules/internal/metrics"
)

// Loader reads a YAML rules file and watches it for changes. A file that
// fails to parse, validate or pass the check hook never replaces the
// current config.
type Loader struct {
	path     string
	logger   *slog.Logger
	check    func(*RuleConfig) error
	reloadMu sync.Mutex // serializes Reload, callbacks included
	mu       sync.RWMutex
	current  *RuleConfig
	onChange []func(*RuleConfig)
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for reload reporting.
func WithLogger(l *slog.Logger) Option { return func(ld *Loader) { ld.logger = l } }

// WithCheck installs an extra acceptance test run after validation, for
// example compiling the rules. A failing check rejects the file.
func WithCheck(fn func(*RuleConfig) error) Option { return func(ld *Loader) { ld.check = fn } }

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, opts ...Option) (*Loader, error) {
	l := &Loader{path: filepath.Clean(path), logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Path returns the watched file.
func (l *Loader) Path() string { return l.path }

// Config returns the current (latest) configuration.
func (l *Loader) Config() *RuleConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*RuleConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file
// changes. The parent directory is watched so that editors which replace
// the file by rename are picked up. Call the returned stop function to
// clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", dir, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != l.path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					// Errors are logged by Reload; the old config stays active.
					_, _ = l.Reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("config watcher error", "path", l.path, "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the config file. Concurrent
// reloads run one at a time, so OnChange callbacks observe configs in the
// order they became current.
func (l *Loader) Reload() (*RuleConfig, error) {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()
	start := time.Now()
	cfg, err := l.load()
	if err != nil {
		metrics.Reloads.WithLabelValues("rejected").Inc()
		l.logger.Error("rules reload rejected, keeping previous rule set", "path", l.path, "err", err)
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*RuleConfig), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	metrics.Reloads.WithLabelValues("applied").Inc()
	l.logger.Info("rules reloaded", "path", l.path, "rules", len(cfg.Rules), "took", time.Since(start))
	return cfg, nil
}

func (l *Loader) load() (*RuleConfig, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = l.path
		}
		return nil, err
	}
	if l.check != nil {
		if err := l.check(cfg); err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.File = l.path
			}
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a rules document.
func Parse(data []byte) (*RuleConfig, error) {
	var cfg RuleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		pe := &ParseError{Err: err}
		var ne *nodeError
		if errors.As(err, &ne) {
			pe.Line, pe.Err = ne.line, errors.New(ne.msg)
		}
		return nil, pe
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *RuleConfig) {
	s := &cfg.Settings
	if s.Server.Addr == "" {
		s.Server.Addr = ":8080"
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Placeholders.Namespace == "" {
		s.Placeholders.Namespace = "customfishing"
	}
	if s.Storage.Backend == "" {
		s.Storage.Backend = "memory"
	}
	if s.Storage.Redis.Addr == "" {
		s.Storage.Redis.Addr = "localhost:6379"
	}
	if s.Storage.Redis.KeyPrefix == "" {
		s.Storage.Redis.KeyPrefix = "fishrules"
	}
	if s.Dedupe.TTL == 0 {
		s.Dedupe.TTL = 10 * time.Minute
	}
	if s.Render.Mode == "" {
		s.Render.Mode = "plain"
	}
	if s.Workers.BatchWorkers == 0 {
		s.Workers.BatchWorkers = 4
	}
	if s.Workers.QueueDepth == 0 {
		s.Workers.QueueDepth = 1000
	}
}
