// Package blkdev resolves tokens, device paths, whole-disk parents and
// partition numbers into a single block device.
//
// All device probing is delegated to an Oracle. Every Oracle call blocks until
// the probing subsystem answers; a device that never responds blocks the
// resolution indefinitely. No timeouts are applied here.
package blkdev

import (
	"github.com/tjper/isak/internal/device"

	"github.com/google/uuid"
)

// Oracle is the block device probing and caching facility the resolver
// consumes. Implementations must not be assumed to retain state between
// independent Cache calls.
type Oracle interface {
	// OpenByPath probes the device at path and returns its number.
	OpenByPath(path string) (device.Number, error)
	// Cache returns a fresh token cache. snapshot optionally names a location
	// the cache may persist to; empty means non-persistent.
	Cache(snapshot string) (Cache, error)
	// Name returns the canonical device path of dev.
	Name(dev device.Number) (string, error)
	// WholeDisk returns the name and number of the whole disk backing dev. A
	// whole disk is its own parent.
	WholeDisk(dev device.Number) (string, device.Number, error)
	// OpenProbe opens a low-level probe on the named device.
	OpenProbe(name string) (Probe, error)
}

// Cache maps tokens such as UUID=..., LABEL=... or PARTUUID=... to device
// paths.
type Cache interface {
	// ProbeAll re-enumerates every visible block device.
	ProbeAll() error
	// DevName returns the device path matching token. A miss is reported with
	// an error matching ErrNotFound.
	DevName(token string) (string, error)
	// Close releases the cache.
	Close() error
}

// Probe inspects one device for partition table and filesystem signatures.
type Probe interface {
	EnablePartitions(bool)
	EnableSuperblocks(bool)
	// SafeProbe runs a non-destructive, best-effort signature scan.
	SafeProbe() error
	// Partitions returns the partition table found by SafeProbe.
	Partitions() (PartitionList, error)
	Close() error
}

// Partition describes one entry of a probed partition table.
type Partition struct {
	// Number is the 1-based partition number.
	Number int
	// UUID is nil when the table format carries no per-partition UUID, as
	// with MBR.
	UUID  *uuid.UUID
	Label string
}

// PartitionList is the partition table of one probed device.
type PartitionList []Partition

// ByNumber returns the partition whose number is n.
func (l PartitionList) ByNumber(n int) (Partition, bool) {
	for _, p := range l {
		if p.Number == n {
			return p, true
		}
	}
	return Partition{}, false
}
