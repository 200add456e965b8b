package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/bookshelf/internal/config"
	"github.com/lepinkainen/humanlog"
)

// CLI represents the complete command structure for the bookshelf application
type CLI struct {
	// Global flags
	Verbose bool   `short:"v" help:"Enable debug logging"`
	Config  string `help:"Path to config file (defaults to ./config.yaml when present)" type:"path"`
	JSON    bool   `help:"Print results as JSON"`

	Search  SearchCmd  `cmd:"" help:"Search the local library, or Open Library with --online"`
	Import  ImportCmd  `cmd:"" help:"Search Open Library and save the results to the library"`
	Enrich  EnrichCmd  `cmd:"" help:"Fetch work details for a stored book"`
	Popular PopularCmd `cmd:"" help:"List the most searched books"`
	List    ListCmd    `cmd:"" help:"List imported or manually added books"`
	Add     AddCmd     `cmd:"" help:"Add a book by hand"`
	Lookup  LookupCmd  `cmd:"" help:"Fetch Open Library editions by key"`
	Usage   UsageCmd   `cmd:"" help:"Show Open Library rate limit usage"`
	Cache   CacheCmd   `cmd:"" help:"Manage the Open Library response cache"`
	Serve   ServeCmd   `cmd:"" help:"Run the HTTP API"`
}

// runtime is bound into every command's Run method
type runtime struct {
	ctx     context.Context
	cfg     config.Config
	out     io.Writer
	json    bool
	verbose bool
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(false)

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("bookshelf"),
		kong.Description("Hybrid book search backed by a local library and Open Library."),
		kong.UsageOnError(),
	)

	if cli.Verbose {
		initLogging(true)
	}

	if err := initConfig(cli.Config); err != nil {
		slog.Error("Fatal error in config file", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rt := &runtime{
		ctx:     ctx,
		cfg:     config.Load(),
		out:     os.Stdout,
		json:    cli.JSON,
		verbose: cli.Verbose,
	}

	err := kctx.Run(rt)
	stop()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig(path string) error {
	config.InitConfig()
	return config.ReadConfigFile(path)
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
