// Command rembg removes image backgrounds in batches.
//
// Without a subcommand it starts the interactive flow. The other subcommands
// are run, methods, history, serve and watch; each has its own -h.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	removebg "github.com/DennySORA/Remove-Background"
	"github.com/DennySORA/Remove-Background/internal/config"
	"github.com/DennySORA/Remove-Background/internal/logging"
	"github.com/DennySORA/Remove-Background/internal/store"
	"github.com/DennySORA/Remove-Background/pkg/backend"
	"github.com/DennySORA/Remove-Background/pkg/registry"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

const usage = `usage: rembg [command] [flags]

commands:
  interactive   guided batch setup (default)
  run           process a folder without prompts
  methods       list the available methods
  history       show recorded batches
  serve         start the HTTP API
  watch         process images as they appear in a folder
  version       print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := "interactive"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "interactive":
		err = cmdInteractive(ctx, args, stdin, stdout, stderr)
	case "run":
		err = cmdRun(ctx, args, stdout, stderr)
	case "methods":
		err = cmdMethods(args, stdout, stderr)
	case "history":
		err = cmdHistory(ctx, args, stdout, stderr)
	case "serve":
		err = cmdServe(ctx, args, stderr)
	case "watch":
		err = cmdWatch(ctx, args, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "rembg %s\n", removebg.Version)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "rembg: unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errBatchFailed):
		return 1
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "rembg: cancelled")
		return 1
	}
	fmt.Fprintf(stderr, "rembg: %v\n", err)
	return 1
}

var (
	// errUsage marks a flag problem already reported by the FlagSet
	errUsage = errors.New("usage")
	// errBatchFailed marks a batch that finished with failures
	errBatchFailed = errors.New("batch had failures")
)

// common holds the flags every subcommand shares
type common struct {
	configPath string
	logLevel   string
	logFormat  string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (default "+config.GetConfigPath()+")")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug|info|warn|error")
	fs.StringVar(&c.logFormat, "log-format", "", "log format: text|json")
}

// env is what a subcommand needs after flag parsing
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

// setup loads the configuration, applies the logging overrides and builds the
// logger
func (c *common) setup(stderr io.Writer) (*env, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &env{cfg: cfg, logger: logger}, nil
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "unexpected arguments: %v\n", fs.Args())
		return errUsage
	}
	return nil
}

// registryOptions maps the configuration onto the built-in adapters
func registryOptions(cfg *config.Config) (registry.Options, error) {
	variant, err := backend.ParseVariant(cfg.GreenScreen.Variant)
	if err != nil {
		return registry.Options{}, err
	}
	return registry.Options{
		GreenScreenVariant: variant,
		GreenScreenKey: backend.KeyConfig{
			HueMin:        cfg.GreenScreen.HueMin,
			HueMax:        cfg.GreenScreen.HueMax,
			SaturationMin: cfg.GreenScreen.SaturationMin,
			ValueMin:      cfg.GreenScreen.ValueMin,
		},
		VisionBackend:  cfg.Vision.Backend,
		VisionURL:      cfg.Vision.URL,
		VisionModel:    cfg.Vision.Model,
		VisionSendSize: cfg.Vision.SendSize,
	}, nil
}

func (e *env) registry() (*registry.Registry, error) {
	opts, err := registryOptions(e.cfg)
	if err != nil {
		return nil, err
	}
	return registry.Default(opts)
}

// openStore opens the run store; failures are logged and the command goes on
// without recording
func (e *env) openStore(ctx context.Context) *store.Store {
	st, err := store.Open(ctx, e.cfg.History.DBPath, e.logger)
	if err != nil {
		e.logger.Warn("run store unavailable, batches will not be recorded", "path", e.cfg.History.DBPath, "error", err)
		return nil
	}
	return st
}

func (e *env) record(ctx context.Context, st *store.Store, job types.JobConfiguration, result types.BatchResult) {
	if st == nil || result.ID == "" {
		return
	}
	if err := st.SaveBatch(context.WithoutCancel(ctx), job, result); err != nil {
		e.logger.Warn("failed to record batch", "batch", result.ID, "error", err)
	}
}
