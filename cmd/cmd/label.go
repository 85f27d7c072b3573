package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/volume"
)

func DefineLabelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "label <image> [new-label]",
		Short:        "Print or change a volume's label",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE:         RunLabel,
	}
	cmd.Flags().Int("block-size", 512, "block size in bytes")
	return cmd
}

func RunLabel(cmd *cobra.Command, args []string) error {
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

	if len(args) == 1 {
		fmt.Println(v.Label())
		return nil
	}

	if err := v.SetLabel(args[1]); err != nil {
		return err
	}
	return v.Sync()
}
