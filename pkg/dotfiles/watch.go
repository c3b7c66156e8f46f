package dotfiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/cel-go/cel"

	"github.com/macropower/dotup/pkg/expr"
	"github.com/macropower/dotup/pkg/log"
	"github.com/macropower/dotup/pkg/secret"
)

// Watcher re-applies a source tree whenever its files change on disk.
// Apply results are delivered to subscribers.
type Watcher struct {
	deployer      *Deployer
	watcher       *fsnotify.Watcher
	reloadProgram cel.Program
	watchedFiles  map[string]struct{}
	watchedDirs   map[string]struct{}
	listeners     []chan<- *Result
	mu            sync.Mutex
}

// NewWatcher creates a [Watcher] over the deployer's active entry sources.
func NewWatcher(d *Deployer, opts ...WatcherOpt) (*Watcher, error) {
	w := &Watcher{
		deployer:     d,
		watchedFiles: make(map[string]struct{}),
		watchedDirs:  make(map[string]struct{}),
	}

	for _, opt := range opts {
		err := opt(w)
		if err != nil {
			return nil, err
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w.watcher = fsw

	err = w.addWatchers()
	if err != nil {
		_ = fsw.Close()

		return nil, err
	}

	return w, nil
}

type WatcherOpt func(w *Watcher) error

// WithReload gates re-applies behind a CEL expression evaluated with the
// changed file path, the filesystem event, and host facts.
func WithReload(expression string) WatcherOpt {
	return func(w *Watcher) error {
		if expression == "" {
			return nil
		}

		env, err := expr.CreateEnvironment(
			cel.Variable("file", cel.StringType),
			cel.Variable("fs.event", cel.IntType),
		)
		if err != nil {
			return fmt.Errorf("create CEL environment: %w", err)
		}

		ast, issues := env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("compile reload expression: %w", issues.Err())
		}

		program, err := env.Program(ast)
		if err != nil {
			return fmt.Errorf("create CEL program: %w", err)
		}

		w.reloadProgram = program

		return nil
	}
}

// addWatchers registers the parent directory of every active entry
// source. Events are filtered back down to the tracked files.
func (w *Watcher) addWatchers() error {
	root := w.deployer.expandPath(w.deployer.source.Root)

	for _, e := range w.deployer.source.Entries {
		if !e.MatchFacts(w.deployer.facts.Vars()) {
			continue
		}

		srcPath := filepath.Join(root, filepath.FromSlash(e.Source))
		if e.Encrypted {
			srcPath += secret.Suffix
		}

		dir := filepath.Dir(srcPath)

		_, ok := w.watchedDirs[dir]
		if !ok {
			err := w.watcher.Add(dir)
			if err != nil {
				return fmt.Errorf("add path to watcher: %w", err)
			}

			w.watchedDirs[dir] = struct{}{}
		}

		w.watchedFiles[srcPath] = struct{}{}
	}

	slog.Debug("added file watchers",
		slog.Int("files", len(w.watchedFiles)),
		slog.Int("dirs", len(w.watchedDirs)),
	)

	return nil
}

// Subscribe registers a channel to receive apply results.
func (w *Watcher) Subscribe(ch chan<- *Result) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.listeners = append(w.listeners, ch)
}

func (w *Watcher) broadcast(res *Result) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ch := range w.listeners {
		ch <- res
	}
}

// Watch blocks, re-applying the source on relevant file events until the
// context is canceled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) error {
	logger := log.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			_, tracked := w.watchedFiles[evt.Name]
			if !tracked {
				continue
			}

			// Ignore events that are not related to file content changes.
			if evt.Has(fsnotify.Chmod) {
				continue
			}

			matched, err := w.matchFileEvent(evt.Name, evt.Op)
			if err != nil {
				logger.ErrorContext(ctx, "match file event",
					slog.String("event", evt.String()),
					slog.Any("error", err),
				)

				continue
			}
			if !matched {
				continue
			}

			logger.InfoContext(ctx, "source changed",
				slog.String("file", evt.Name),
			)

			res, err := w.deployer.Apply(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "apply after change",
					slog.Any("error", err),
				)

				continue
			}

			w.broadcast(res)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			logger.ErrorContext(ctx, "watch error", slog.Any("error", err))
		}
	}
}

// matchFileEvent evaluates the reload expression against a file event.
// Without an expression, every content event triggers a re-apply.
func (w *Watcher) matchFileEvent(filePath string, fsOp fsnotify.Op) (bool, error) {
	if w.reloadProgram == nil {
		return true, nil
	}

	evalVars := w.deployer.facts.Vars()
	evalVars["file"] = filePath
	evalVars["fs.event"] = int64(fsOp)

	result, _, err := w.reloadProgram.Eval(evalVars)
	if err != nil {
		return false, fmt.Errorf("evaluate reload expression: %w", err)
	}

	resultVal, ok := result.Value().(bool)
	if !ok {
		return false, errors.New("reload expression did not return a boolean value")
	}

	return resultVal, nil
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() {
	err := w.watcher.Close()
	if err != nil {
		slog.Error("close watcher", slog.Any("error", err))
	}
}
