package directory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

type fileEntry struct {
	Name string `yaml:"name" toml:"name"`
	Role string `yaml:"role" toml:"role"`
}

type fileDocument struct {
	Containers map[string]fileEntry `yaml:"containers" toml:"containers"`
}

// Parse decodes a directory document. The format follows the file
// extension: .yaml, .yml or .toml.
func Parse(path string, data []byte) (map[string]Entry, error) {
	var doc fileDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse toml %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported directory format %q", filepath.Ext(path))
	}

	entries := make(map[string]Entry, len(doc.Containers))
	for id, fe := range doc.Containers {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%s: container with empty id", path)
		}
		name := fe.Name
		if name == "" {
			name = id
		}
		entries[id] = Entry{ID: id, Name: name, Role: strings.TrimSpace(fe.Role)}
	}
	return entries, nil
}

// FileOption configures a File directory.
type FileOption func(*File)

// WithFileLogger sets the logger.
func WithFileLogger(l *zap.Logger) FileOption {
	return func(f *File) { f.logger = logging.OrNop(l) }
}

// WithReloadHook is called after every reload attempt with its result.
func WithReloadHook(fn func(error)) FileOption {
	return func(f *File) { f.onReload = fn }
}

// File is a directory loaded from a YAML or TOML document.
type File struct {
	*Memory

	path     string
	logger   *zap.Logger
	onReload func(error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// OpenFile loads path. The initial load must succeed.
func OpenFile(path string, opts ...FileOption) (*File, error) {
	f := &File{
		Memory: NewMemory(),
		path:   filepath.Clean(path),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the watched document path.
func (f *File) Path() string {
	return f.path
}

// Reload re-reads the document. On error the previous snapshot stays in place.
func (f *File) Reload() error {
	err := f.reload()
	if f.onReload != nil {
		f.onReload(err)
	}
	return err
}

func (f *File) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", f.path, err)
	}
	entries, err := Parse(f.path, data)
	if err != nil {
		return err
	}
	f.Replace(entries)
	f.logger.Info("container directory loaded",
		zap.String("path", f.path),
		zap.Int("containers", len(entries)))
	return nil
}

// Watch reloads the document whenever it changes until ctx is done or Close
// is called. The parent directory is watched so that editors which replace
// the file by rename are picked up.
func (f *File) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}

	f.mu.Lock()
	if f.watcher != nil {
		f.mu.Unlock()
		watcher.Close()
		return fmt.Errorf("already watching %s", f.path)
	}
	f.watcher = watcher
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.watchLoop(ctx, watcher)
	}()
	return nil
}

func (f *File) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := f.Reload(); err != nil {
				f.logger.Warn("directory reload failed, keeping previous snapshot",
					zap.String("path", f.path),
					zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("directory watcher error", zap.Error(err))

		case <-ctx.Done():
			return
		}
	}
}

// Close stops watching.
func (f *File) Close() error {
	f.mu.Lock()
	watcher := f.watcher
	f.watcher = nil
	f.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	f.wg.Wait()
	return err
}
