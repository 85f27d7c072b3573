package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/entrytable"
	"github.com/tabfs/tabfs/volume"
)

func DefineLsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ls <image> <path>",
		Short:        "List the entries of a directory in a TabFS volume",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         RunLs,
	}
	cmd.Flags().Int("block-size", 512, "block size in bytes")
	return cmd
}

func RunLs(cmd *cobra.Command, args []string) error {
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

	dir, _, e, err := v.Table.Traverse(v.Root, v.Root, args[1], true, 0, 0)
	if err != nil {
		return err
	}
	if e != nil {
		if e.Type != entrytable.TypeDirectory {
			return fmt.Errorf("tabfs: %s: not a directory", args[1])
		}
		// Traverse returns the section holding a named entry; load the
		// directory's own table.
		if dir, err = v.Table.LoadSection(e.Data.TargetLBA(), e.Data.Size()); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tUID\tGID\tSIZE\tNAME")

	if err := listDir(v, dir, w); err != nil {
		return err
	}
	return w.Flush()
}

func listDir(v *volume.Volume, dir *entrytable.Section, w *tabwriter.Writer) error {
	for cur := dir; cur != nil; {
		for i := 1; i < cur.NumSlots(); i++ {
			typ := cur.SlotType(i)
			if typ == entrytable.TypeUnknown || typ == entrytable.TypeTableInfo || typ == entrytable.TypeLongName {
				continue
			}
			e := cur.Entry(i)
			name := e.Name
			if e.LongName != nil {
				name = "<long-name>"
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", renderMode(e), e.UserID, e.GroupID, entrySize(e), name)
		}
		next, err := v.Table.NextSection(cur)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

func entrySize(e *entrytable.Entry) uint32 {
	switch e.Type {
	case entrytable.TypeFatFile, entrytable.TypeContinuous, entrytable.TypeKernel, entrytable.TypeDirectory:
		return e.Data.Size()
	}
	return 0
}

func renderMode(e *entrytable.Entry) string {
	b := []byte("----------")
	switch e.Type {
	case entrytable.TypeDirectory:
		b[0] = 'd'
	case entrytable.TypeSymlink:
		b[0] = 'l'
	case entrytable.TypeCharDev:
		b[0] = 'c'
	case entrytable.TypeBlockDev:
		b[0] = 'b'
	case entrytable.TypeFIFO:
		b[0] = 'p'
	case entrytable.TypeSocket:
		b[0] = 's'
	}
	setBit(b, 1, e.Flags.User.R)
	setBit(b, 2, e.Flags.User.W)
	setBit(b, 3, e.Flags.User.X)
	setBit(b, 4, e.Flags.Group.R)
	setBit(b, 5, e.Flags.Group.W)
	setBit(b, 6, e.Flags.Group.X)
	setBit(b, 7, e.Flags.Other.R)
	setBit(b, 8, e.Flags.Other.W)
	setBit(b, 9, e.Flags.Other.X)
	return string(b)
}

func setBit(b []byte, pos int, set bool) {
	if !set {
		return
	}
	switch (pos - 1) % 3 {
	case 0:
		b[pos] = 'r'
	case 1:
		b[pos] = 'w'
	case 2:
		b[pos] = 'x'
	}
}
