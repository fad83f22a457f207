package permission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xdg/bastion/internal/clog"
)

var log = clog.For("permission")

// DefaultDebounce is how long the watcher waits after the last change to the
// policy file before reloading it. Editors often write a file several times
// in quick succession.
const DefaultDebounce = 250 * time.Millisecond

// LoadFunc reads the policy from its source.
type LoadFunc func() (Policy, error)

// PolicyWatcher holds the current Policy and reloads it when the file it
// was loaded from changes. If a reload fails the previous policy stays in
// effect.
type PolicyWatcher struct {
	mu       sync.RWMutex
	policy   Policy
	path     string
	load     LoadFunc
	debounce time.Duration
	onReload func(Policy)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// WatcherOption configures a PolicyWatcher.
type WatcherOption func(*PolicyWatcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *PolicyWatcher) { w.debounce = d }
}

// WithReloadHook registers fn to be called after every successful reload.
func WithReloadHook(fn func(Policy)) WatcherOption {
	return func(w *PolicyWatcher) { w.onReload = fn }
}

// NewPolicyWatcher loads the initial policy and prepares to watch path.
// Watching does not begin until Start is called.
func NewPolicyWatcher(path string, load LoadFunc, opts ...WatcherOption) (*PolicyWatcher, error) {
	if load == nil {
		return nil, errors.New("policy watcher: nil load function")
	}
	p, err := load()
	if err != nil {
		return nil, fmt.Errorf("load initial policy: %w", err)
	}
	w := &PolicyWatcher{
		policy:   p,
		path:     filepath.Clean(path),
		load:     load,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Current returns a copy of the policy in effect.
func (w *PolicyWatcher) Current() Policy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Policy{
		Allow:         slices.Clone(w.policy.Allow),
		Deny:          slices.Clone(w.policy.Deny),
		Strict:        w.policy.Strict,
		ShellDisabled: w.policy.ShellDisabled,
	}
}

// Reload reads the policy again. On failure the current policy is kept and
// the error returned.
func (w *PolicyWatcher) Reload() error {
	p, err := w.load()
	if err != nil {
		return fmt.Errorf("reload policy from %s: %w", w.path, err)
	}
	w.mu.Lock()
	w.policy = p
	hook := w.onReload
	w.mu.Unlock()

	log.Info("reloaded policy from %s (allow=%d deny=%d strict=%v)", w.path, len(p.Allow), len(p.Deny), p.Strict)
	if hook != nil {
		hook(p)
	}
	return nil
}

// Start begins watching the policy file. The parent directory is watched so
// that files replaced by rename are picked up. Start is non-blocking and a
// second call is a no-op.
func (w *PolicyWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	log.Debug("watching %s", w.path)

	go w.run(ctx, fw, w.stopCh, w.doneCh)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *PolicyWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh, doneCh, fw := w.stopCh, w.doneCh, w.watcher
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := fw.Close(); err != nil {
		log.Warn("close file watcher: %v", err)
	}
}

func (w *PolicyWatcher) run(ctx context.Context, fw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Debug("%s event for %s", event.Op, event.Name)
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn("file watcher error: %v", err)

		case <-timer.C:
			if err := w.Reload(); err != nil {
				log.Warn("%v; keeping previous policy", err)
			}
		}
	}
}
