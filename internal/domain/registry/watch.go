package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch evicts cached services whose files change on disk. It blocks until ctx
// is done. New subdirectories are watched as they appear.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := m.addTree(watcher, m.dir); err != nil {
		return err
	}
	m.logger.Info("Watching service registry", zap.String("dir", m.dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			m.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("Registry watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := m.addTree(watcher, event.Name); err != nil {
				m.logger.Warn("Failed to watch directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}

	name := m.nameOf(event.Name)
	if name == "" {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		m.Evict(name)
		m.logger.Debug("Evicted service after file change",
			zap.String("service", name),
			zap.String("op", event.Op.String()),
		)
	}
}

// addTree watches root and every non-hidden directory below it.
func (m *Manager) addTree(watcher *fsnotify.Watcher, root string) error {
	var (
		mu   sync.Mutex
		dirs []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		mu.Lock()
		dirs = append(dirs, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}

	for _, dir := range dirs {
		if err := watcher.Add(filepath.Clean(dir)); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}
