package claudetail

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// startWatcher watches cfg.ProjectsDir (and every subdirectory that
// exists at startup) for filesystem events, signaling trigger on any
// write/create so Poll runs immediately instead of waiting out the
// rest of PollInterval. It degrades silently to ticker-only polling
// when ProjectsDir doesn't exist yet or fsnotify can't be set up —
// the watcher is a latency optimization, never a correctness
// requirement, since Poll's own stat-diff logic is what actually
// decides what's new.
func (r *Reader) startWatcher(trigger chan<- struct{}) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	added := 0
	_ = filepath.WalkDir(r.cfg.ProjectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return nil // best-effort: skip unreadable subtree, keep walking
		}
		if d.IsDir() {
			if watchErr := watcher.Add(path); watchErr == nil {
				added++
			}
		}
		return nil
	})

	if added == 0 {
		watcher.Close()
		return nil, nil
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name) // a new session subdirectory
					}
				}
				select {
				case trigger <- struct{}{}:
				default: // a poll is already pending; coalesce
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
