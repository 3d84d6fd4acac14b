package metastore

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when a new partition file is created in a queue directory. It allows a
// waiting get to retry as soon as an item arrives instead of waiting for the full wait
// interval. Signals are coalesced, a receiver is only told that at least one segment
// appeared since it last looked.
type Watcher struct {
	watcher *fsnotify.Watcher
	notify  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	log     *slog.Logger
	once    sync.Once
}

// NewWatcher begins watching dir. The directory must exist.
func NewWatcher(dir string, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		watcher: fw,
		log:     log,
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// C returns the channel which receives a value when a new segment is created
func (w *Watcher) C() <-chan struct{} {
	return w.notify
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case e, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// A new segment is either created in place or renamed into the directory
			if !e.Has(fsnotify.Create) || !isSegment(filepath.Base(e.Name)) {
				continue
			}
			select {
			case w.notify <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("while watching queue directory", "error", err)
		case <-w.done:
			return
		}
	}
}
