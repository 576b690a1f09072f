package rules

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Holder publishes a RuleSet for concurrent readers.
type Holder struct {
	current atomic.Pointer[RuleSet]
}

// NewHolder creates a holder with an initial rule set.
func NewHolder(initial *RuleSet) *Holder {
	h := &Holder{}
	h.current.Store(initial)
	return h
}

// Current returns the rule set in effect.
func (h *Holder) Current() *RuleSet { return h.current.Load() }

// Swap installs rs.
func (h *Holder) Swap(rs *RuleSet) {
	if rs != nil {
		h.current.Store(rs)
	}
}

// DefaultDebounce is how long Run waits after the last change event before
// reloading.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a rule file whenever it changes on disk. A file that fails
// to parse is logged and ignored; the previous rules stay in effect.
type Watcher struct {
	*Holder
	// Debounce coalesces bursts of events into one reload. Zero reloads on
	// every event. Set it before calling Run.
	Debounce time.Duration

	path    string
	opts    []Option
	logger  *observability.Logger
	metrics *observability.Metrics
	fsw     *fsnotify.Watcher
}

// NewWatcher loads path and starts watching its directory. The initial load
// must succeed.
func NewWatcher(path string, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) (*Watcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules path: %w", err)
	}
	rs, err := LoadFile(abs, opts...)
	if err != nil {
		metrics.RulesReload("file", err)
		return nil, err
	}
	metrics.RulesReload("file", nil)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// editors replace files by rename, so watch the directory
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		Holder:   NewHolder(rs),
		Debounce: DefaultDebounce,
		path:     abs,
		opts:     opts,
		logger:   logger.WithField("rules_file", abs),
		metrics:  metrics,
		fsw:      fsw,
	}, nil
}

// Reload parses the file again and swaps it in when valid.
func (w *Watcher) Reload() error {
	rs, err := LoadFile(w.path, w.opts...)
	w.metrics.RulesReload("file", err)
	if err != nil {
		w.logger.WithError(err).Error("rules reload failed, keeping previous rules")
		return err
	}
	w.Swap(rs)
	w.logger.WithField("rules", rs.Len()).Info("rules reloaded")
	return nil
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	schedule := func() {
		if w.Debounce <= 0 {
			_ = w.Reload()
			return
		}
		if timer == nil {
			timer = time.NewTimer(w.Debounce)
		} else {
			timer.Reset(w.Debounce)
		}
		pending = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			pending = nil
			_ = w.Reload()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.WithField("op", event.Op.String()).Debug("rules file changed")
			schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				schedule()
				continue
			}
			w.logger.WithError(err).Error("rules watcher error")
		}
	}
}
