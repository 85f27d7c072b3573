//go:build !linux
// +build !linux

package fuse

import (
	"fmt"

	"github.com/tabfs/tabfs/volume"
)

func Mount(mountpoint string, vol *volume.Volume) error {
	return fmt.Errorf("FUSE mount is only supported on Linux")
}
