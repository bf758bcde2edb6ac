package storage

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watch reports keys changed by other processes sharing the base directory.
// A removed key is reported with an empty value. Writes made through this
// Store are not reported.
func (s *Store) Watch(fn func(key, value string)) (stop func()) {
	if err := s.EnsureDirs(); err != nil {
		s.logger.Warn("watch preferences", slog.Any("error", err))
		return func() {}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("create preferences watcher", slog.Any("error", err))
		return func() {}
	}
	if err := w.Add(s.baseDir); err != nil {
		s.logger.Warn("watch preferences dir", slog.String("dir", s.baseDir), slog.Any("error", err))
		w.Close()
		return func() {}
	}

	s.mu.Lock()
	if values, err := s.load(); err == nil {
		s.remember(values)
	} else if s.known == nil {
		s.known = make(map[string]string)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != FileName {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
					continue
				}
				for _, c := range s.changes() {
					select {
					case <-done:
						return
					default:
					}
					fn(c.key, c.value)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("preferences watcher", slog.Any("error", err))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			w.Close()
		})
	}
}

type change struct {
	key   string
	value string
}

// changes reloads the file and diffs it against what this process last saw.
func (s *Store) changes() []change {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		s.logger.Debug("reload preferences", slog.Any("error", err))
		return nil
	}

	var out []change
	for k, v := range values {
		if old, ok := s.known[k]; !ok || old != v {
			out = append(out, change{key: k, value: v})
		}
	}
	for k := range s.known {
		if _, ok := values[k]; !ok {
			out = append(out, change{key: k})
		}
	}
	s.remember(values)
	return out
}
