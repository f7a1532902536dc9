package config

import (
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ParamWatcher hot-reloads the parameter file when it changes on disk.
// A reload that fails validation is logged and discarded; the previous
// parameter set stays in effect.
type ParamWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.RWMutex
	current *Parameters
}

// NewParamWatcher loads the parameter file once and returns a watcher
// holding the result. Start must be called to begin watching.
func NewParamWatcher(path string) (*ParamWatcher, error) {
	params, err := LoadParameters(path)
	if err != nil {
		return nil, err
	}
	return &ParamWatcher{
		path:    path,
		done:    make(chan struct{}),
		current: params,
	}, nil
}

// Current returns the active parameter set. Safe for concurrent use; callers
// must treat the returned struct as read-only.
func (pw *ParamWatcher) Current() *Parameters {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.current
}

// Start begins watching the parameter file's directory for writes. Watching
// the directory rather than the file survives editors that replace via
// rename. No-op when the path is empty (built-in defaults).
func (pw *ParamWatcher) Start() error {
	if pw.path == "" {
		close(pw.done)
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(pw.path)); err != nil {
		_ = w.Close()
		return err
	}
	pw.watcher = w

	go pw.loop()
	log.Printf("config: watching %s for parameter changes", pw.path)
	return nil
}

// Stop shuts down the watcher.
func (pw *ParamWatcher) Stop() {
	if pw.watcher != nil {
		_ = pw.watcher.Close()
	}
	<-pw.done
}

func (pw *ParamWatcher) loop() {
	defer close(pw.done)
	for {
		select {
		case evt, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(evt.Name) != filepath.Clean(pw.path) {
				continue
			}
			pw.reload()
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}

func (pw *ParamWatcher) reload() {
	params, err := LoadParameters(pw.path)
	if err != nil {
		log.Printf("config: parameter reload rejected: %v", err)
		return
	}
	pw.mu.Lock()
	pw.current = params
	pw.mu.Unlock()
	log.Printf("config: parameters reloaded from %s", pw.path)
}
