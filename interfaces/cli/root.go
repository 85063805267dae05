// Package cli is the notemesh command line client. It runs the canvas and
// notebook services in-process against local storage.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"notemesh/infrastructure/config"
	"notemesh/infrastructure/di"
)

var version = "0.3.0"

// Opener builds the container a command runs against
type Opener func(ctx context.Context, flags *Flags) (*di.Container, func(), error)

// Flags are the persistent flags shared by every command
type Flags struct {
	User     string
	Storage  string
	Database string
	JSON     bool
	Verbose  bool
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand(OpenLocal).Execute()
}

// OpenLocal loads the configuration and overrides it for single-user local use
func OpenLocal(ctx context.Context, flags *Flags) (*di.Container, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.Storage.Provider = flags.Storage
	if flags.Database != "" {
		cfg.Storage.SQLitePath = flags.Database
	}
	cfg.Metrics.Enabled = false
	cfg.Logging.Format = "console"
	if !flags.Verbose {
		cfg.Logging.Level = "error"
	}
	return di.InitializeContainer(ctx, cfg)
}

// NewRootCommand builds the command tree
func NewRootCommand(open Opener) *cobra.Command {
	flags := &Flags{}
	app := &app{flags: flags, open: open}

	root := &cobra.Command{
		Use:           "notemesh",
		Short:         "notemesh, a canvas of tagged thoughts",
		Long:          brand.Sprint("notemesh") + " keeps chat-style notes on a canvas and groups them with AI\n",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate("notemesh {{ .Version }}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.User, "user", "u", "local-user", "User the commands run as")
	pf.StringVar(&flags.Storage, "storage", config.StorageSQLite, "Storage provider (sqlite, memory, dynamodb)")
	pf.StringVar(&flags.Database, "db", "", "SQLite database path (defaults to the configured path)")
	pf.BoolVar(&flags.JSON, "json", false, "Print results as JSON")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "Log service activity")

	root.AddCommand(
		canvasCmd(app),
		chatCmd(app),
		clusterCmd(app),
		clearCmd(app),
		parseCmd(app),
		notebookCmd(app),
		noteCmd(app),
	)
	return root
}

type app struct {
	flags *Flags
	open  Opener
}

// run opens a container for the duration of fn
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, c *di.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, cleanup, err := a.open(ctx, a.flags)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, c)
}

// emit prints v as JSON when --json is set and calls human otherwise
func (a *app) emit(w io.Writer, v any, human func()) error {
	if !a.flags.JSON {
		human()
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
