package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/semdict/tenant"
)

// DefaultDebounce is how long the watcher waits for more changes before
// resetting.
const DefaultDebounce = 500 * time.Millisecond

// Resetter rebuilds the dictionary of the tenant in ctx.
// *dictionary.Dictionary satisfies it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Watcher watches a models directory and resets the tenant owning each
// changed model file. Changes are debounced and files whose content did not
// change are ignored.
type Watcher struct {
	dir      *Directory
	resetter Resetter
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.Mutex
	hashes map[string]string

	done chan struct{}
}

// NewWatcher creates a watcher for the models directory of dir.
func NewWatcher(dir *Directory, resetter Resetter, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		resetter: resetter,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the models directory until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.dir.Root()
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Model watcher started", "models_dir", root, "debounce", w.debounce)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

// addWatchesRecursive watches every directory under root and records the
// content hash of every model file already present.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			if rel, ok := w.rel(path); ok {
				if _, isModel := w.dir.Matches(rel); isModel {
					if content, err := os.ReadFile(path); err == nil {
						w.setHash(rel, contentHash(content))
					}
				}
			}
			return nil
		}

		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}

	rel, ok := w.rel(path)
	if !ok {
		return
	}
	if _, isModel := w.dir.Matches(rel); !isModel {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("Model file change detected", "path", rel, "op", event.Op.String())
}

func (w *Watcher) handleNewDirectory(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	if err := w.addWatchesRecursive(path); err != nil {
		w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
	}
}

// flushPending resets each tenant with at least one model file whose content
// changed since the last flush.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	tenants := make(map[string]bool)
	for path := range toProcess {
		rel, _ := w.rel(path)
		domain, _ := w.dir.Matches(rel)

		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && w.deleteHash(rel) {
				tenants[domain] = true
			}
			continue
		}
		if w.setHash(rel, contentHash(content)) {
			tenants[domain] = true
		}
	}

	domains := make([]string, 0, len(tenants))
	for d := range tenants {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		if ctx.Err() != nil {
			return
		}
		if err := w.resetter.Reset(tenant.WithDomain(ctx, domain)); err != nil {
			w.logger.Error("Failed to reload models", "tenant", tenant.Label(domain), "error", err)
			continue
		}
		w.logger.Info("Reloaded models", "tenant", tenant.Label(domain))
	}
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.dir.Root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// setHash records the hash of rel and reports whether it changed.
func (w *Watcher) setHash(rel, hash string) bool {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	if old, ok := w.hashes[rel]; ok && old == hash {
		return false
	}
	w.hashes[rel] = hash
	return true
}

// deleteHash forgets rel and reports whether it was known.
func (w *Watcher) deleteHash(rel string) bool {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	_, ok := w.hashes[rel]
	delete(w.hashes, rel)
	return ok
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
