// Package filewatch reports content changes of a single file. It watches the
// parent directory so atomic replace (write temp, rename) is seen, debounces
// bursts of events and only fires when the SHA256 of the file changes.
package filewatch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 100 * time.Millisecond

type Sum = [sha256.Size]byte

// HashFile computes the SHA256 hash of the file at path.
func HashFile(path string) (Sum, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sum{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Sum{}, fmt.Errorf("hash %s: %w", path, err)
	}
	var sum Sum
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(Sum)

	mu     sync.Mutex
	last   Sum
	seeded bool
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithInitialSum treats sum as the content already seen, usually the hash
// taken right before the file was loaded. Run then reports a change made
// between that load and the start of watching.
func WithInitialSum(sum Sum) Option {
	return func(w *Watcher) {
		w.last = sum
		w.seeded = true
	}
}

// New prepares a watcher for path. onChange runs each time the content hash
// differs from the previously seen one.
func New(path string, onChange func(Sum), opts ...Option) *Watcher {
	w := &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	dir, name := filepath.Dir(w.path), filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if w.seeded {
		w.check()
	} else if sum, err := HashFile(w.path); err == nil {
		w.mu.Lock()
		w.last = sum
		w.mu.Unlock()
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.check)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "fsnotify error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) check() {
	sum, err := HashFile(w.path)
	if err != nil {
		slog.Warn("failed to hash watched file", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	changed := sum != w.last
	w.last = sum
	w.mu.Unlock()
	if changed {
		w.onChange(sum)
	}
}
