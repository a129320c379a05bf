//go:build !linux

package probe

import "errors"

// Superblocks reads filesystem superblocks. Only Linux is supported.
type Superblocks struct{}

// ReadSuperblock always fails outside Linux.
func (Superblocks) ReadSuperblock(string) (Superblock, error) {
	return Superblock{}, errors.New("superblock probing is only supported on linux")
}
