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

	"enrichdash/internal/channel"
	"enrichdash/internal/config"
	"enrichdash/internal/infrastructure"
	"enrichdash/internal/jobs"
	"enrichdash/pkg/contracts"
)

const usageText = `Usage: enrichctl [global flags] <command> [flags] [args]

Commands:
  jobs                         list lookup and enrichment jobs
  companies <jobId>            list the companies of a job
  create [-name n] [-type t] [-wait [-out path] [-timeout d]] <file>
                               create a lookup job from a CSV or XLSX file,
                               optionally waiting for it and saving the results
  enrich [-name n] [-source jobId] [-all] [companyId...]
                               start enrichment of selected companies
  watch [-timeout d] <jobId>   follow the live progress of a job
  delete <jobId> [companyId]   delete a job, or one company of a job
  report [-out path] [-text] <companyId>
                               download or print a company report
  export [-format csv|xlsx] <jobId>
                               write the companies of a job to a file
  version                      print the version

Global flags:
`

// exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// usageError marks bad command lines so they exit with exitUsage
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type command func(c *cli, ctx context.Context, args []string) error

var commands = map[string]command{
	"jobs":      (*cli).cmdJobs,
	"companies": (*cli).cmdCompanies,
	"create":    (*cli).cmdCreate,
	"enrich":    (*cli).cmdEnrich,
	"watch":     (*cli).cmdWatch,
	"delete":    (*cli).cmdDelete,
	"report":    (*cli).cmdReport,
	"export":    (*cli).cmdExport,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("enrichctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "path to a YAML config file")
	apiURL := global.String("api", "", "job API base URL (overrides the config)")
	dataDir := global.String("data", "", "directory for downloaded reports and exports")
	logLevel := global.String("log-level", "warn", "log level: debug|info|warn|error")
	global.Usage = func() {
		fmt.Fprint(stderr, usageText)
		global.PrintDefaults()
	}

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return exitUsage
	}

	name, rest := global.Arg(0), global.Args()[1:]
	if name == "version" {
		fmt.Fprintln(stdout, contracts.VersionString("enrichctl"))
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		global.Usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}
	// Logs go to stderr so command output stays parseable.
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = *logLevel

	c, err := newCLI(cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	// One trace ID per invocation ties the Job API calls of a command together.
	ctx = infrastructure.EnsureTraceID(ctx)
	if err := cmd(c, ctx, rest); err != nil {
		var ue *usageError
		switch {
		case errors.Is(err, flag.ErrHelp):
			return exitOK
		case errors.As(err, &ue):
			fmt.Fprintf(stderr, "%s: %v\n", name, err)
			return exitUsage
		default:
			c.logger.Debug("Command failed", slog.String("command", name), slog.String("error", err.Error()))
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	}
	return exitOK
}

// cli holds the clients shared by every command
type cli struct {
	cfg     *config.Config
	api     *jobs.Client
	channel *channel.Client
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
}

func newCLI(cfg *config.Config, stdout, stderr io.Writer) (*cli, error) {
	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	api, err := jobs.NewClient(cfg.API.BaseURL, cfg.API.Timeout, logger)
	if err != nil {
		return nil, err
	}

	ch := channel.NewClient(cfg.ChannelURL(), channel.Options{
		ReconnectAttempts: cfg.Channel.ReconnectAttempts,
		ReconnectDelay:    cfg.Channel.ReconnectDelay,
		PingPeriod:        cfg.Channel.PingPeriod,
		PongWait:          cfg.Channel.PongWait,
	}, logger)

	return &cli{
		cfg:     cfg,
		api:     api,
		channel: ch,
		logger:  logger,
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) paths() (*config.Paths, error) {
	paths, err := c.cfg.GetPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}
	return paths, nil
}
