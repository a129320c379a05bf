//go:build linux

package probe

import (
	"fmt"

	"github.com/siderolabs/go-blockdevice/v2/blkid"
)

// Superblocks reads filesystem superblocks with blkid.
type Superblocks struct{}

// ReadSuperblock probes path for a filesystem or partition table signature.
func (Superblocks) ReadSuperblock(path string) (Superblock, error) {
	info, err := blkid.ProbePath(path)
	if err != nil {
		return Superblock{}, fmt.Errorf("probe superblock; path: %s, error: %w", path, err)
	}
	if info == nil {
		return Superblock{}, nil
	}
	return newSuperblock(info.Name, info.UUID, info.Label), nil
}
