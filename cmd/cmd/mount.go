package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/internal/fuse"
	"github.com/tabfs/tabfs/volume"
)

func DefineMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mount <image> <mountpoint>",
		Short:        "Mount a TabFS volume as a FUSE filesystem (Linux only)",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         RunMount,
	}
	cmd.Flags().Int("block-size", 512, "block size in bytes")
	return cmd
}

func RunMount(cmd *cobra.Command, args []string) error {
	blockSize, _ := cmd.Flags().GetInt("block-size")

	dev, err := blockdev.OpenFile(args[0], blockSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	v, err := volume.Mount(dev, 0, clock.System{})
	if err != nil {
		return err
	}
	defer v.Destroy()

	return fuse.Mount(args[1], v)
}
