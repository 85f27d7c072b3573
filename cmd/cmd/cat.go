package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/entrytable"
	"github.com/tabfs/tabfs/fat"
	"github.com/tabfs/tabfs/volume"
)

func DefineCatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cat <image> <path>",
		Short:        "Print a file's contents to stdout",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         RunCat,
	}
	cmd.Flags().Int("block-size", 512, "block size in bytes")
	return cmd
}

func RunCat(cmd *cobra.Command, args []string) error {
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

	_, _, e, err := v.Table.Traverse(v.Root, v.Root, args[1], true, 0, 0)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("tabfs: %s: not found", args[1])
	}

	switch e.Type {
	case entrytable.TypeContinuous, entrytable.TypeKernel:
		return catContinuous(dev, e, os.Stdout)
	case entrytable.TypeFatFile:
		return catFat(v, e, os.Stdout)
	default:
		return fmt.Errorf("tabfs: %s: not a readable file", args[1])
	}
}

func catContinuous(dev blockdev.Device, e *entrytable.Entry, out *os.File) error {
	size := e.Data.Size()
	buf := make([]byte, size)
	if err := dev.ReadAt(e.Data.TargetLBA(), false, 0, buf); err != nil {
		return err
	}
	_, err := out.Write(buf)
	return err
}

func catFat(v *volume.Volume, e *entrytable.Entry, out *os.File) error {
	head, err := loadFatHead(v, e)
	if err != nil {
		return err
	}

	size := int(e.Data.Size())
	buf := make([]byte, size)
	n, err := v.Fat.Read(head, 0, buf)
	if err != nil {
		return err
	}
	_, err = out.Write(buf[:n])
	return err
}

func loadFatHead(v *volume.Volume, e *entrytable.Entry) (*fat.Section, error) {
	return v.LoadFatHead(e.Data.TargetLBA())
}
