//go:build linux

package probe

import (
	"path/filepath"
	"testing"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	diskGUID = uuid.MustParse("aaaaaaaa-1111-2222-3333-444444444444")
	partGUID = uuid.MustParse("bbbbbbbb-1111-2222-3333-444444444444")
)

// gptImage writes a 16 MiB raw image holding a GPT with one partition.
func gptImage(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := diskfs.Create(path, 16*1024*1024, diskfs.Raw, diskfs.SectorSizeDefault)
	require.NoError(t, err)

	err = d.Partition(&gpt.Table{
		GUID:              diskGUID.String(),
		LogicalSectorSize: 512,
		ProtectiveMBR:     true,
		Partitions: []*gpt.Partition{
			{Start: 2048, End: 20479, Type: gpt.LinuxFilesystem, Name: "root", GUID: partGUID.String()},
		},
	})
	require.NoError(t, err)
	require.NoError(t, d.Close())
	return path
}

func TestReadSuperblockGPTDisk(t *testing.T) {
	path := gptImage(t)

	sb, err := Superblocks{}.ReadSuperblock(path)
	require.NoError(t, err)
	require.False(t, sb.Found(), "whole disk reported as filesystem: %+v", sb)
	require.Nil(t, sb.UUID)
	require.True(t, sb.HasPartitionTable())
	require.Equal(t, "gpt", sb.PTType)
	require.NotNil(t, sb.PTUUID)
	require.Equal(t, diskGUID, *sb.PTUUID)

	parts, err := PartitionTables{}.ReadPartitions(path)
	require.NoError(t, err)
	part, ok := parts.ByNumber(1)
	require.True(t, ok)
	require.Equal(t, &partGUID, part.UUID)
	require.Equal(t, "root", part.Label)
}
