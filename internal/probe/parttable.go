package probe

import (
	"os"
	"strings"

	"github.com/tjper/isak/internal/blkdev"
	ierrors "github.com/tjper/isak/internal/errors"
	"github.com/tjper/isak/internal/log"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/google/uuid"
)

// logger is an object for logging package events to stderr.
var logger = log.New(os.Stderr, "probe")

// PartitionTables reads partition tables with go-diskfs. The device is opened
// read-only.
type PartitionTables struct{}

// ReadPartitions reads the partition table of the device at path.
func (PartitionTables) ReadPartitions(path string) (blkdev.PartitionList, error) {
	d, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, ierrors.Wrapf(err, "open disk; path: %s", path)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warnf("close disk; path: %s, error: %s", path, err)
		}
	}()

	table, err := d.GetPartitionTable()
	if err != nil {
		logger.Debugf("no partition table; path: %s, error: %s", path, err)
		return blkdev.PartitionList{}, nil
	}
	return partitions(table), nil
}

// partitions converts table into a PartitionList. Numbers follow the table's
// entry slots, so unused GPT entries and empty MBR slots leave gaps.
func partitions(table partition.Table) blkdev.PartitionList {
	list := blkdev.PartitionList{}

	switch t := table.(type) {
	case *gpt.Table:
		for i, p := range t.Partitions {
			if p == nil || p.Type == gpt.Unused {
				continue
			}
			list = append(list, blkdev.Partition{
				Number: i + 1,
				UUID:   parseGUID(p.GUID),
				Label:  p.Name,
			})
		}
	case *mbr.Table:
		for i, p := range t.Partitions {
			if p == nil || p.Type == mbr.Empty {
				continue
			}
			list = append(list, blkdev.Partition{Number: i + 1})
		}
	default:
		logger.Warnf("unsupported partition table; type: %s", table.Type())
	}

	return list
}

func parseGUID(s string) *uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return nil
	}
	return &id
}
