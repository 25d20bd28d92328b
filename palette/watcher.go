package palette

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// Settle is how long the directory must be quiet before it is reloaded.
// Editors often write a file in several steps.
const Settle = 100 * time.Millisecond

// Watcher reloads a shader directory whenever a shader file in it changes.
type Watcher struct {
	dir    string
	w      *fsnotify.Watcher
	settle time.Duration
	reload func([]timeline.Shader)
}

// NewWatcher watches dir and calls reload with the full palette after each
// batch of changes. reload runs on the watcher goroutine.
func NewWatcher(dir string, reload func([]timeline.Shader)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{dir: dir, w: w, settle: Settle, reload: reload}, nil
}

// Run delivers reloads until ctx is done, then closes the watcher.
func (pw *Watcher) Run(ctx context.Context) {
	defer pw.w.Close()

	timer := time.NewTimer(pw.settle)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case ev, ok := <-pw.w.Events:
			if !ok {
				return
			}
			if !IsShaderFile(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			glog.V(2).Infof("shader %s: %v", ev.Name, ev.Op)
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(pw.settle)
			pending = true
		case <-timer.C:
			pending = false
			shaders, err := LoadDir(pw.dir)
			if err != nil {
				log.Println("[WARNING] reloading shaders:", err)
				continue
			}
			pw.reload(shaders)
		case err, ok := <-pw.w.Errors:
			if !ok {
				return
			}
			log.Println("[WARNING] shader watcher:", err)
		}
	}
}
