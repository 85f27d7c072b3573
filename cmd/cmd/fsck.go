package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/internal/logger"
	"github.com/tabfs/tabfs/volume"
)

func DefineFsckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fsck <image>",
		Short:        "Mount a volume and report its block size, label and root entry count (the BAT and the entry-table tree are not checked)",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunFsck,
	}
	cmd.Flags().Int("block-size", 512, "block size in bytes")
	return cmd
}

func RunFsck(cmd *cobra.Command, args []string) error {
	blockSize, _ := cmd.Flags().GetInt("block-size")
	log := logger.New(os.Stdout, logger.InfoLevel)

	dev, err := blockdev.OpenFile(args[0], blockSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	v, err := volume.Mount(dev, 0, clock.System{})
	if err != nil {
		return err
	}

	log.Infof("volume %q: block size %d, label %q", args[0], v.BlockSize(), v.Label())

	count, err := v.Table.CountEntries(v.Root)
	if err != nil {
		log.Errorf("root entry-table walk failed: %s", err)
		return err
	}
	log.Infof("root directory: %d entries", count)
	log.Infof("fsck OK")
	return nil
}
