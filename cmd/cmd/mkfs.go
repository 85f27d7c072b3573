// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/internal/logger"
	"github.com/tabfs/tabfs/pkg/util/format"
	"github.com/tabfs/tabfs/volume"
)

func DefineMkfsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkfs <image> <blocks>",
		Short: "Format a new flat-file TabFS image",
		Long: `The 'mkfs' command creates a new flat file of the requested number of blocks and
writes a fresh boot header, volume descriptor, BAT chain, and root entry-table into it.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         RunMkfs,
	}

	cmd.Flags().Int("block-size", 512, "block size in bytes")
	cmd.Flags().String("label", "", "volume label")
	return cmd
}

func RunMkfs(cmd *cobra.Command, args []string) error {
	blocks, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	blockSize, _ := cmd.Flags().GetInt("block-size")
	label, _ := cmd.Flags().GetString("label")

	f, err := blockdev.CreateFile(args[0], blockSize, blocks)
	if err != nil {
		return err
	}
	defer f.Close()

	// Reserved bytes are a tooling-only stamp: mount never requires or
	// interprets them, so a descriptor written by a different writer with
	// zeroed reserved bytes still mounts.
	var reserved [32]byte
	id := uuid.New()
	copy(reserved[:], id[:])

	v, err := volume.Format(f, blocks, true, label, reserved, clock.System{})
	if err != nil {
		return err
	}
	defer v.Destroy()

	log := logger.New(os.Stdout, logger.InfoLevel)
	log.Infof("formatted %s: %s, label %q, volume id %s", args[0], format.FormatBytes(int64(blocks)*int64(blockSize)), v.Label(), id)
	return nil
}
