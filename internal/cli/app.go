// Package cli provides the flowgate command-line interface.
//
// The binary is invoked by an external host runtime, usually as a
// short-lived process per turn. The event-processing commands (route, gate,
// serve) honor a strict non-blocking contract: they always exit 0, logging
// internal errors to stderr, so a flowgate failure can never stall the
// host's pipeline. Session-control commands (advance, skip, abort, todo,
// status) are operator-facing and report failures normally.
//
// Key types:
//   - [App] - Dependency container injected into every command
//   - [ExecuteResult] - Exit code and error from one CLI run, for tests
package cli

import (
	"io"
	"log/slog"
	"os"

	"flowgate/internal/config"
	"flowgate/internal/gate"
	"flowgate/internal/router"
	"flowgate/internal/session"
)

// App holds the dependencies shared by all commands.
//
// Streams are injected so tests can capture output; production wiring uses
// the process streams via [NewApp].
type App struct {
	Catalog *config.Catalog
	Machine *session.Machine
	Gate    *gate.Gate
	Router  *router.Router
	Logger  *slog.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewApp wires the production application: catalog from the layered loader,
// sessions in the default file store, structured logs on stderr.
//
// NewApp never fails. If the file store cannot be created the sessions fall
// back to memory for this process, with a warning: a broken state directory
// must degrade orchestration, not block the host.
func NewApp() *App {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	catalog := config.NewLoader(logger).Load()

	var store session.Store
	fileStore, err := session.NewFileStore(session.DefaultStateDir(), logger)
	if err != nil {
		logger.Warn("session state dir unavailable, using in-memory store",
			slog.String("error", err.Error()))
		store = session.NewMemoryStore()
	} else {
		store = fileStore
	}

	machine := session.NewMachine(store, logger)

	return &App{
		Catalog: catalog,
		Machine: machine,
		Gate:    gate.New(logger),
		Router:  router.New(catalog, machine, logger),
		Logger:  logger,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// logLevel reads FLOWGATE_LOG_LEVEL; anything unrecognized means Info.
func logLevel() slog.Level {
	switch os.Getenv("FLOWGATE_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// bypassFromEnv reports whether the environment-level enforcement bypass is
// set. "0" and empty are off; anything else is on.
func bypassFromEnv() bool {
	v := os.Getenv(gate.EnvBypass)
	return v != "" && v != "0"
}
