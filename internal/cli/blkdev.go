package cli

import (
	"fmt"
	"time"

	"github.com/tjper/isak/internal/blkdev"
	"github.com/tjper/isak/internal/config"

	"github.com/spf13/cobra"
)

func newBlkdevCmd(e *env, cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blkdev",
		Short: "block device operations",
		Args:  cobra.NoArgs,
		RunE:  requireSubcommand,
	}
	cmd.AddCommand(newFindCmd(e, cfg))
	return cmd
}

func newFindCmd(e *env, cfg *config.Config) *cobra.Command {
	var (
		token  string
		path   string
		parent bool
		partno int
		wait   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "find block device",
		Long: `Find a block device and print its canonical path.

The device is taken from --device if given, otherwise from --token, a
KEY=VALUE pair such as LABEL=boot, UUID=..., PARTUUID=... or PARTLABEL=...
--parent then moves to the whole disk and --partno to a partition on it.`,
		Example: `  isak blkdev find --token LABEL=boot
  isak blkdev find --token LABEL=boot --parent --partno 3
  isak blkdev find --device /dev/nvme0n1p2 --parent`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := blkdev.Request{Token: token, Path: path, Parent: parent}
			if cmd.Flags().Changed("partno") {
				n := partno
				req.PartNo = &n
			}

			if !cmd.Flags().Changed("wait") {
				d, err := cfg.WaitDuration()
				if err != nil {
					return fmt.Errorf("%w; %w", errConfig, err)
				}
				wait = d
			}
			if wait < 0 {
				return fmt.Errorf("%w; --wait must be non-negative", errUsage)
			}

			logger.Debugf("find; token: %q, device: %q, parent: %t, wait: %s", token, path, parent, wait)
			if req.PartNo != nil {
				logger.Debugf("find; partno: %d", *req.PartNo)
			}

			resolver := blkdev.NewResolver(e.oracle(*cfg), blkdev.WithCacheSnapshot(cfg.CacheFile))
			dev, err := resolve(cmd.Context(), resolver, req, wait, cfg.DevDir, e.watch)
			if err != nil {
				return err
			}

			fmt.Fprintln(e.stdout, dev.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "token to search for, e.g. LABEL=boot")
	cmd.Flags().StringVar(&path, "device", "", "device to search for")
	cmd.Flags().BoolVar(&parent, "parent", false, "search for parent device")
	cmd.Flags().IntVar(&partno, "partno", 0, "partition number on the (parent) device")
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep retrying while devices appear, up to this long")
	return cmd
}
