// Package watch calls back when a repository's git metadata changes, so the
// stack view can refresh after commands run outside of it.
package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bennycortese/graphite-control-plane/internal/logs"
)

// Delay is how long the repository must stay quiet before the callback runs.
const Delay = 350 * time.Millisecond

// Watcher watches a repository.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	done     chan struct{}
	once     sync.Once
}

// Start watches root and calls onChange, debounced by delay.
func Start(root string, delay time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	for _, path := range Paths(root) {
		logs.Debug().Str("path", path).Msg("watching")
		if err := fw.Add(path); err != nil {
			err := errors.Join(err, fw.Close())
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
	}
	w := &Watcher{
		watcher:  fw,
		debounce: NewDebouncer(delay, onChange),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops watching. Pending callbacks are dropped.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.debounce.Stop()
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if Ignored(ev.Name) {
				continue
			}
			logs.Debug().Str("op", ev.Op.String()).Str("path", ev.Name).Msg("fsnotify event")
			w.debounce.Trigger()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logs.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// Paths returns the directories to watch for root: the git dir and its
// branch refs, or root itself when there is no .git directory.
func Paths(root string) []string {
	if root == "" {
		return nil
	}
	gitDir := filepath.Join(root, ".git")
	if info, err := os.Stat(gitDir); err != nil || !info.IsDir() {
		return []string{root}
	}
	paths := []string{gitDir}
	heads := filepath.Join(gitDir, "refs", "heads")
	if info, err := os.Stat(heads); err == nil && info.IsDir() {
		paths = append(paths, heads)
	}
	return paths
}

// noise are files in the git dir that change without moving any branch.
// git status rewrites the index, and gt rewrites its own metadata while it
// reads the stack.
var noise = map[string]bool{
	"index":          true,
	"COMMIT_EDITMSG": true,
	"FETCH_HEAD":     true,
	"ORIG_HEAD":      true,
	"AUTO_MERGE":     true,
	"gitk.cache":     true,
}

// Ignored reports whether a change to name should not trigger a refresh.
// A refresh discards pending commit edits, so only changes that can move a
// branch count.
func Ignored(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".lock" || ext == ".ipc" {
		return true
	}
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".graphite") {
		return true
	}
	return noise[base] && filepath.Base(filepath.Dir(name)) == ".git"
}
