package memory

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DataWatcher watches a data directory for conversation records written by
// another process (an import job, a sync tool) and notifies a callback once
// changes have settled, so the store can reload them without racing a
// writer still mid-flush. Adapted from the same debounced single-directory
// watch pattern used for source trees, pointed at conversation export files
// instead of source code.
type DataWatcher struct {
	dir          string
	watcher      *fsnotify.Watcher
	onChange     func([]string)
	debounceTime time.Duration

	mu            sync.Mutex
	pendingEvents map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDataWatcher creates a watcher over dir. Start must be called to begin
// watching.
func NewDataWatcher(dir string) (*DataWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating data watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DataWatcher{
		dir:           dir,
		watcher:       watcher,
		debounceTime:  500 * time.Millisecond,
		pendingEvents: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// OnChange registers the callback invoked with the set of changed file
// paths (relative to dir) once pending events have debounced.
func (dw *DataWatcher) OnChange(callback func([]string)) {
	dw.onChange = callback
}

// Start begins watching dir.
func (dw *DataWatcher) Start() error {
	if err := dw.watcher.Add(dw.dir); err != nil {
		return fmt.Errorf("watching data directory %s: %w", dw.dir, err)
	}

	dw.wg.Add(2)
	go dw.eventLoop()
	go dw.debounceLoop()
	return nil
}

// Stop stops the watcher and waits for its goroutines to exit.
func (dw *DataWatcher) Stop() error {
	dw.cancel()
	dw.wg.Wait()
	return dw.watcher.Close()
}

func (dw *DataWatcher) eventLoop() {
	defer dw.wg.Done()
	for {
		select {
		case <-dw.ctx.Done():
			return
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			dw.handleEvent(event)
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("memory data watcher error: %v", err)
		}
	}
}

func (dw *DataWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".json") {
		return
	}
	if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
		return
	}

	relPath, err := filepath.Rel(dw.dir, event.Name)
	if err != nil {
		relPath = event.Name
	}

	dw.mu.Lock()
	dw.pendingEvents[relPath] = true
	dw.mu.Unlock()
}

func (dw *DataWatcher) debounceLoop() {
	defer dw.wg.Done()
	ticker := time.NewTicker(dw.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-dw.ctx.Done():
			return
		case <-ticker.C:
			dw.processPendingEvents()
		}
	}
}

func (dw *DataWatcher) processPendingEvents() {
	dw.mu.Lock()
	if len(dw.pendingEvents) == 0 {
		dw.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(dw.pendingEvents))
	for path := range dw.pendingEvents {
		paths = append(paths, path)
	}
	dw.pendingEvents = make(map[string]bool)
	dw.mu.Unlock()

	if dw.onChange != nil {
		dw.onChange(paths)
	}
}
