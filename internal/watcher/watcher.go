package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/evtc"
	"github.com/SteelMorgan/evtc-log-uploader/internal/retry"
)

// DefaultInterval is the poll period of the directory scan
const DefaultInterval = 500 * time.Millisecond

var errEmptyFile = errors.New("log file is still empty")

// Handler receives each new log file once it can be opened
type Handler func(path string)

// Options configure a watcher
type Options struct {
	Interval time.Duration
	// OpenRetry is the backoff used while a new file cannot be opened yet
	OpenRetry retry.Config
}

// Watcher polls a directory tree for new combat logs
type Watcher struct {
	root    string
	opts    Options
	handler Handler

	seen     map[string]struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher for root. Files already present when Start runs are ignored.
func New(root string, handler Handler, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.OpenRetry.MaxAttempts == 0 {
		opts.OpenRetry = retry.FileOpenConfig()
	}
	return &Watcher{
		root:    root,
		opts:    opts,
		handler: handler,
		seen:    make(map[string]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start scans root until ctx is done or Stop is called. It fails right away
// when root is not a readable directory.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path is not a directory: %s", w.root)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		w.wg.Wait()
	}()

	existing := w.scan()
	for _, path := range existing {
		w.seen[path] = struct{}{}
	}

	log.Info().
		Str("dir", w.root).
		Int("existing_files", len(existing)).
		Dur("interval", w.opts.Interval).
		Msg("Starting log directory watcher")

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			for _, path := range w.scan() {
				if _, ok := w.seen[path]; ok {
					continue
				}
				w.seen[path] = struct{}{}

				w.wg.Add(1)
				go func(path string) {
					defer w.wg.Done()
					w.deliver(ctx, path)
				}(path)
			}
		}
	}
}

// Stop stops the watcher. Start returns after in-flight open checks gave up.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// scan lists every log file below root
func (w *Watcher) scan() []string {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() && path != w.root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && evtc.IsLogFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("dir", w.root).Msg("Error scanning log directory")
	}
	return files
}

// deliver waits until the file can be opened, then hands it to the handler
func (w *Watcher) deliver(ctx context.Context, path string) {
	err := retry.Do(ctx, w.opts.OpenRetry, func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			return errEmptyFile
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Dropping log file that could not be opened")
		return
	}

	log.Debug().Str("path", path).Msg("New log file")
	w.handler(path)
}
