package cli

import (
	"bufio"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"flowgate/internal/config"
	"flowgate/internal/hook"
	"flowgate/internal/router"
)

// reloadDebounce coalesces the burst of fsnotify events an editor save
// produces into one catalog reload.
const reloadDebounce = 250 * time.Millisecond

func newServeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as a persistent event filter",
		Long: `Read one JSON event per line from stdin and write one guidance JSON
per line to stdout, until stdin closes. For hosts that prefer a persistent
filter over a process per event.

While serving, the workflow catalog file is watched and reloaded on change,
so catalog edits take effect without restarting the filter.

serve always exits 0; per-event errors are logged to stderr and produce
empty guidance for that event only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe(app)
			return nil
		},
	}
}

// serveState holds the hot-swappable routing pair behind a lock so catalog
// reloads never race an in-flight event.
type serveState struct {
	mu     sync.RWMutex
	router *router.Router
}

func (st *serveState) route(ev *hook.Event) *hook.Guidance {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.router.Route(ev)
}

func (st *serveState) swap(r *router.Router) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.router = r
}

func runServe(app *App) {
	st := &serveState{router: app.Router}

	stop := watchCatalog(app, st)
	if stop != nil {
		defer stop()
	}

	scanner := bufio.NewScanner(app.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		ev, err := hook.ParseEvent(line)
		if err != nil {
			app.Logger.Warn("skipping unreadable event", "error", err.Error())
			(&hook.Guidance{}).WriteJSON(app.Stdout)
			continue
		}

		g := st.route(ev)
		if err := g.WriteJSON(app.Stdout); err != nil {
			app.Logger.Warn("guidance write failed", "error", err.Error())
		}
	}

	if err := scanner.Err(); err != nil {
		app.Logger.Warn("event stream read failed", "error", err.Error())
	}
}

// watchCatalog starts an fsnotify watcher on the loaded catalog file and
// swaps in a freshly loaded router when it changes. Returns a stop function,
// or nil when there is no file to watch (built-in defaults in use).
func watchCatalog(app *App, st *serveState) func() {
	loader := config.NewLoader(app.Logger)
	path := loader.ResolvePath()
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		app.Logger.Warn("catalog watch unavailable", "error", err.Error())
		return nil
	}

	// Watch the directory, not the file: atomic rename-replace saves would
	// otherwise drop the watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		app.Logger.Warn("catalog watch unavailable", "error", err.Error())
		watcher.Close()
		return nil
	}

	name := filepath.Base(path)
	done := make(chan struct{})

	go func() {
		var timer *time.Timer
		reload := func() {
			catalog := loader.Load()
			st.swap(router.New(catalog, app.Machine, app.Logger))
			app.Logger.Info("catalog reloaded", "path", path)
		}

		for {
			select {
			case <-done:
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				app.Logger.Warn("catalog watch error", "error", err.Error())
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}
}
