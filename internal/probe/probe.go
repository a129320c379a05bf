// Package probe reads on-disk signatures: filesystem superblocks and
// partition tables.
package probe

import (
	"github.com/tjper/isak/internal/blkdev"

	"github.com/google/uuid"
)

// partitionTableTypes are signature names that denote a partition table
// rather than a filesystem.
var partitionTableTypes = map[string]bool{
	"gpt": true,
	"dos": true,
}

// Superblock is what a signature scan found on a device. The zero value means
// nothing was recognized.
type Superblock struct {
	// Type is the filesystem or volume name, such as "ext4" or "vfat".
	Type  string
	UUID  *uuid.UUID
	Label string

	// PTType and PTUUID describe a partition table found instead of a
	// filesystem, such as "gpt" and the disk GUID.
	PTType string
	PTUUID *uuid.UUID
}

// Found reports whether a filesystem signature was recognized.
func (s Superblock) Found() bool {
	return s.Type != ""
}

// HasPartitionTable reports whether a partition table signature was
// recognized.
func (s Superblock) HasPartitionTable() bool {
	return s.PTType != ""
}

// newSuperblock sorts a signature scan result into a filesystem or a
// partition table.
func newSuperblock(name string, id *uuid.UUID, label *string) Superblock {
	if name == "" {
		return Superblock{}
	}
	if partitionTableTypes[name] {
		return Superblock{PTType: name, PTUUID: id}
	}

	sb := Superblock{Type: name, UUID: id}
	if label != nil {
		sb.Label = *label
	}
	return sb
}

// SuperblockReader scans a device for a filesystem signature.
type SuperblockReader interface {
	ReadSuperblock(path string) (Superblock, error)
}

// PartitionTableReader reads a device's partition table. A device without a
// recognizable table yields an empty list and no error.
type PartitionTableReader interface {
	ReadPartitions(path string) (blkdev.PartitionList, error)
}
