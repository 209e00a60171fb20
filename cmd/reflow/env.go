package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/recera/reflow/cmd/reflow/internal/config"
	"github.com/recera/reflow/internal/cache"
	"github.com/recera/reflow/internal/session"
	"github.com/recera/reflow/pkg/debug"
	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/runtime"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
)

// environment is the state shared by every command: the loaded
// configuration, the logger and the optional program cache.
type environment struct {
	configPath string
	debug      bool
	logFile    string
	cacheDir   string

	cfg     *config.Config
	level   slog.LevelVar
	logger  *slog.Logger
	cache   *cache.Cache
	closers []func() error
}

func (e *environment) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&e.configPath, "config", "c", config.FileName, "Configuration file")
	flags.BoolVar(&e.debug, "debug", false, "Log debug traces")
	flags.StringVar(&e.logFile, "log-file", "", "Also write JSON logs to this file")
	flags.StringVar(&e.cacheDir, "cache-dir", "", "Persist compiled expressions in this directory")
}

func (e *environment) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("debug") && e.debug {
		cfg.Log.Level = "debug"
	}
	if flags.Changed("log-file") {
		cfg.Log.File = e.logFile
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Enabled = true
		cfg.Cache.Dir = e.cacheDir
	}
	e.cfg = cfg

	if err := e.level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger, err := e.newLogger(os.Stderr)
	if err != nil {
		return err
	}
	e.logger = logger
	slog.SetDefault(logger)
	if e.level.Level() <= slog.LevelDebug {
		debug.EnableLogging(logger)
	}

	if cfg.Cache.Enabled {
		cc := cache.DefaultConfig()
		if cfg.Cache.Dir != "" {
			cc.Dir = cfg.Cache.Dir
		}
		cc.MaxSize = int64(cfg.Cache.MaxSizeMB) << 20
		cc.Logger = logger
		c, err := cache.Open(cc)
		if err != nil {
			return err
		}
		e.cache = c
		expr.SetProgramStore(c.Programs())
		e.closers = append(e.closers, func() error {
			expr.SetProgramStore(nil)
			return c.Close()
		})
	}
	return nil
}

// newLogger fans out to a text handler on w and, when a log file is
// configured, a JSON handler on that file.
func (e *environment) newLogger(w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: &e.level}
	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}

	if path := e.cfg.Log.File; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
		e.closers = append(e.closers, f.Close)
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// quietLogger keeps only the log file, for commands that own the terminal.
func (e *environment) quietLogger() *slog.Logger {
	logger, err := e.newLogger(io.Discard)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

func (e *environment) close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}

// inputs returns the markup, state and script paths, with positional
// arguments overriding the configuration.
func (e *environment) inputs(args []string, state, script string) (markup, statePath, scriptPath string) {
	markup, statePath, scriptPath = e.cfg.Markup, e.cfg.State, e.cfg.Script
	if len(args) > 0 {
		markup = args[0]
	}
	if state != "" {
		statePath = state
	}
	if script != "" {
		scriptPath = script
	}
	return markup, statePath, scriptPath
}

func (e *environment) options(logger *slog.Logger, sinks ...diag.Sink) runtime.Options {
	return runtime.Options{
		Logger: logger,
		Sinks:  sinks,
		Retain: e.cfg.Retain,
	}
}

// load mounts markup and applies the script, if any.
func (e *environment) load(id, markup, state, script string, opts runtime.Options) (*session.Session, error) {
	s, err := session.Load(id, markup, state, opts)
	if err != nil {
		return nil, err
	}
	if script == "" {
		return s, nil
	}
	f, err := os.Open(script)
	if err != nil {
		s.Close()
		return nil, err
	}
	defer f.Close()
	actions, err := session.ParseScript(f)
	if err == nil {
		err = s.Run(actions)
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", script, err)
	}
	return s, nil
}
