package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
)

// DefaultDebounce collapses bursts of writes from editors into one reload.
const DefaultDebounce = 200 * time.Millisecond

// PolicyWatcher serves the policy set read from a file and swaps it in
// place when the file changes. A reload that fails to parse or validate is
// logged and ignored; the previous set stays in force.
type PolicyWatcher struct {
	path     string
	defaults policy.Options
	loader   *Loader
	debounce time.Duration

	current atomic.Pointer[policy.Set]

	mu       sync.Mutex
	onReload []func(*policy.Set)
}

// WatcherOption configures a PolicyWatcher.
type WatcherOption func(*PolicyWatcher)

// WithDebounce sets the quiet period before a change is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *PolicyWatcher) {
		w.debounce = d
	}
}

// WithPolicyLoader sets the loader used to read the file.
func WithPolicyLoader(l *Loader) WatcherOption {
	return func(w *PolicyWatcher) {
		w.loader = l
	}
}

// NewPolicyWatcher loads path once and returns a watcher serving it.
func NewPolicyWatcher(path string, defaults policy.Options, opts ...WatcherOption) (*PolicyWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve policy file: %w", err)
	}
	w := &PolicyWatcher{
		path:     abs,
		defaults: defaults,
		loader:   NewLoader(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}

	set, err := w.loader.LoadPolicyFile(abs, defaults)
	if err != nil {
		return nil, err
	}
	set.Version = 1
	w.current.Store(set)
	return w, nil
}

// Current returns the set in force.
func (w *PolicyWatcher) Current() *policy.Set {
	return w.current.Load()
}

// Path returns the watched file.
func (w *PolicyWatcher) Path() string {
	return w.path
}

// OnReload registers fn to run after every successful reload.
func (w *PolicyWatcher) OnReload(fn func(*policy.Set)) {
	w.mu.Lock()
	w.onReload = append(w.onReload, fn)
	w.mu.Unlock()
}

// Reload reads the file now. On failure the current set is kept.
func (w *PolicyWatcher) Reload() error {
	set, err := w.loader.LoadPolicyFile(w.path, w.defaults)
	if err != nil {
		logging.Warn().
			Add(logging.Component("policy")).
			Add(logging.Str("path", w.path)).
			Add(logging.ErrorField(err)).
			Msg("policy reload rejected, keeping previous tables")
		return err
	}

	prev := w.current.Load()
	set.Version = prev.Version + 1
	w.current.Store(set)

	logging.Info().
		Add(logging.Component("policy")).
		Add(logging.Str("path", w.path)).
		Add(logging.Count("version", set.Version)).
		Msg("policy tables reloaded")

	w.mu.Lock()
	callbacks := append([]func(*policy.Set){}, w.onReload...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(set)
	}
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so atomic renames by editors are seen.
func (w *PolicyWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			_ = w.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				_ = w.Reload()
				continue
			}
			logging.Error().
				Add(logging.Component("policy")).
				Add(logging.ErrorField(err)).
				Msg("policy watcher error")
		}
	}
}
