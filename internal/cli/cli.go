// Package cli defines the isak CLI.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tjper/isak/internal/blkdev"
	"github.com/tjper/isak/internal/config"
	"github.com/tjper/isak/internal/fsnotify"
	"github.com/tjper/isak/internal/log"
	"github.com/tjper/isak/internal/sysfs"
	"github.com/tjper/isak/internal/validator"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// logger is an object for logging package events to stderr.
var logger = log.New(os.Stderr, "cli")

const (
	ecSuccess = iota
	ecFailure
	ecUsage
	ecConfig
	ecInvalidInput
	ecDeviceNotFound
	ecPartitionNotFound
	ecPartitionUUIDMissing
	ecOracle
)

var (
	errUsage  = errors.New("usage")
	errConfig = errors.New("config")
)

// watchFunc starts watching dir for entries being added or removed. The
// returned function stops the watch.
type watchFunc func(dir string) (<-chan fsnotify.Event, func() error, error)

// env holds what commands need from the outside world.
type env struct {
	stdout io.Writer
	stderr io.Writer
	oracle func(config.Config) blkdev.Oracle
	watch  watchFunc
}

// Run is the entrypoint of the isak CLI.
func Run() int {
	e := &env{
		stdout: os.Stdout,
		stderr: os.Stderr,
		oracle: newOracle,
		watch:  watchDir,
	}
	return run(context.Background(), e, os.Args[1:])
}

func run(ctx context.Context, e *env, args []string) int {
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetOut(e.stderr)
	root.SetErr(e.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ecSuccess
	}

	if log.Verbose() {
		fmt.Fprintf(e.stderr, "isak: %+v\n", err)
	} else {
		fmt.Fprintf(e.stderr, "isak: %s\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return ecUsage
	case errors.Is(err, errConfig):
		return ecConfig
	case errors.Is(err, validator.ErrInvalidInput):
		return ecInvalidInput
	case errors.Is(err, blkdev.ErrDeviceNotFound), errors.Is(err, blkdev.ErrNotFound):
		return ecDeviceNotFound
	case errors.Is(err, blkdev.ErrPartitionNotFound):
		return ecPartitionNotFound
	case errors.Is(err, blkdev.ErrPartitionUUIDMissing):
		return ecPartitionUUIDMissing
	case errors.Is(err, blkdev.ErrOracle):
		return ecOracle
	default:
		return ecFailure
	}
}

func newRootCmd(e *env) *cobra.Command {
	var (
		configPath string
		verbose    bool
	)
	cfg := config.Default()

	root := &cobra.Command{
		Use:           "isak",
		Short:         "Initramfs Swiss Army Knife",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("%w; %w", errConfig, err)
			}
			cfg = loaded

			log.SetVerbose(verbose || cfg.Verbose)
			logger.Debugf("config; sys: %s, dev: %s, cache: %q", cfg.SysDir, cfg.DevDir, cfg.CacheFile)
			return nil
		},
		RunE: requireSubcommand,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default "+config.DefaultPath+")")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print diagnostics to stderr")
	root.SetFlagErrorFunc(flagError)

	root.AddCommand(newBlkdevCmd(e, &cfg))
	return root
}

func requireSubcommand(cmd *cobra.Command, args []string) error {
	_ = cmd.Help()
	return fmt.Errorf("%w; %s requires a subcommand", errUsage, cmd.CommandPath())
}

func flagError(cmd *cobra.Command, err error) error {
	return fmt.Errorf("%w; %s: %w", errUsage, cmd.CommandPath(), err)
}

func newOracle(cfg config.Config) blkdev.Oracle {
	return sysfs.New(
		sysfs.WithFs(afero.NewOsFs()),
		sysfs.WithSysDir(cfg.SysDir),
		sysfs.WithDevDir(cfg.DevDir),
	)
}
