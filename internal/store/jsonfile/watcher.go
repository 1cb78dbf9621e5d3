package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/hay-kot/bell/internal/core/logging"
)

const (
	debounceDelay   = 50 * time.Millisecond
	eventBufferSize = 16
)

// Change reports that the entry for Key was modified outside this process.
type Change struct {
	Key       string
	Timestamp time.Time
}

// Watcher reports external edits to the files of a KV.
type Watcher struct {
	store   *KV
	watcher *fsnotify.Watcher
	log     zerolog.Logger

	mu          sync.Mutex
	subscribers map[string][]chan Change // pattern -> channels
	debounce    map[string]*time.Timer   // key -> pending notify

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher starts watching the directory of store, creating it if needed.
func NewWatcher(store *KV) (*Watcher, error) {
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(store.Dir()); err != nil {
		_ = fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		store:       store,
		watcher:     fw,
		log:         logging.Component("jsonfile"),
		subscribers: make(map[string][]chan Change),
		debounce:    make(map[string]*time.Timer),
		ctx:         ctx,
		cancel:      cancel,
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Watch returns a channel of changes to keys matching pattern: an exact key,
// a "prefix*" wildcard, or "*" for everything. The channel closes when ctx
// is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, pattern string) <-chan Change {
	ch := make(chan Change, eventBufferSize)

	w.mu.Lock()
	w.subscribers[pattern] = append(w.subscribers[pattern], ch)
	w.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.unsubscribe(pattern, ch)
		case <-w.ctx.Done():
		}
	}()

	return ch
}

// Close stops watching and closes every subscriber channel.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	for _, timer := range w.debounce {
		timer.Stop()
	}
	for _, subs := range w.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	w.subscribers = make(map[string][]chan Change)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) unsubscribe(pattern string, ch chan Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	subs := w.subscribers[pattern]
	for i, sub := range subs {
		if sub == ch {
			w.subscribers[pattern] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(w.subscribers[pattern]) == 0 {
		delete(w.subscribers, pattern)
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("file watch error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	key, ok := keyFromFile(filepath.Base(event.Name))
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if timer, exists := w.debounce[key]; exists {
		timer.Stop()
	}
	w.debounce[key] = time.AfterFunc(debounceDelay, func() {
		w.notify(key)
	})
}

func (w *Watcher) notify(key string) {
	// Our own writes fire events too; only report content we did not write.
	if w.store.ownWrite(key) {
		w.mu.Lock()
		delete(w.debounce, key)
		w.mu.Unlock()
		return
	}

	change := Change{Key: key, Timestamp: time.Now()}

	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.debounce, key)
	if w.ctx.Err() != nil {
		return
	}

	for pattern, subs := range w.subscribers {
		if !matchesPattern(pattern, key) {
			continue
		}
		for _, ch := range subs {
			select {
			case ch <- change:
			default:
			}
		}
	}
}

func matchesPattern(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}

// Notify calls fn for every change matching pattern until ctx is done.
func (w *Watcher) Notify(ctx context.Context, pattern string, fn func()) {
	events := w.Watch(ctx, pattern)
	go func() {
		for range events {
			fn()
		}
	}()
}
