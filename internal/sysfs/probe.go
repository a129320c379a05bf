package sysfs

import (
	"errors"
	"fmt"

	"github.com/tjper/isak/internal/blkdev"
)

// ErrNotProbed indicates results were requested before a SafeProbe with the
// matching detection enabled.
var ErrNotProbed = errors.New("not probed")

// deviceProbe scans one device node for signatures. Filesystem detection is
// best-effort; a partition table that cannot be read fails the probe.
type deviceProbe struct {
	oracle *Oracle
	path   string

	partitions  bool
	superblocks bool

	probed bool
	parts  blkdev.PartitionList
}

func (p *deviceProbe) EnablePartitions(enable bool) { p.partitions = enable }

func (p *deviceProbe) EnableSuperblocks(enable bool) { p.superblocks = enable }

func (p *deviceProbe) SafeProbe() error {
	p.parts = nil

	if p.superblocks {
		p.logSuperblock()
	}

	if p.partitions {
		parts, err := p.oracle.tables.ReadPartitions(p.path)
		if err != nil {
			return fmt.Errorf("safe probe; device: %s, error: %w", p.path, err)
		}
		p.parts = parts
	}

	p.probed = true
	return nil
}

func (p *deviceProbe) Partitions() (blkdev.PartitionList, error) {
	if !p.probed || !p.partitions {
		return nil, fmt.Errorf("%w; device: %s, partitions enabled: %t", ErrNotProbed, p.path, p.partitions)
	}
	return p.parts, nil
}

// logSuperblock reports the signature found on the device at debug level.
func (p *deviceProbe) logSuperblock() {
	sb, err := p.oracle.superblocks.ReadSuperblock(p.path)
	switch {
	case err != nil:
		logger.Debugf("superblock not probed; device: %s, error: %s", p.path, err)
	case sb.HasPartitionTable():
		logger.Debugf("partition table signature; device: %s, type: %s", p.path, sb.PTType)
	case sb.Found():
		logger.Debugf("filesystem signature; device: %s, type: %s, label: %q", p.path, sb.Type, sb.Label)
	}
}

func (p *deviceProbe) Close() error {
	p.parts = nil
	return nil
}
