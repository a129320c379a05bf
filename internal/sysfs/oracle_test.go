package sysfs

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/tjper/isak/internal/blkdev"
	"github.com/tjper/isak/internal/device"
	"github.com/tjper/isak/internal/probe"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type node struct {
	name   string
	number device.Number
	disk   string
	partno int
	size   string
}

var (
	efiUUID  = uuid.MustParse("5b1c7e2a-3b0e-4d8a-9c61-0a2f4d7e8b90")
	rootUUID = uuid.MustParse("a2a0d0eb-e5b9-3344-87c0-68b6b72699c7")
	dataUUID = uuid.MustParse("0fc63daf-8483-4772-8e79-3d69d8477de4")
	fsUUID   = uuid.MustParse("3e6be9de-8139-4f1a-a6b0-6c8bba9d7e21")
	diskUUID = uuid.MustParse("aaaaaaaa-1111-2222-3333-444444444444")

	nodes = []node{
		{name: "loop0", number: device.New(7, 0), size: "0"},
		{name: "nvme0n1", number: device.New(259, 0)},
		{name: "nvme0n1p1", number: device.New(259, 1), disk: "nvme0n1", partno: 1},
		{name: "sda", number: device.New(8, 0)},
		{name: "sda1", number: device.New(8, 1), disk: "sda", partno: 1},
		{name: "sda2", number: device.New(8, 2), disk: "sda", partno: 2},
		{name: "sda3", number: device.New(8, 3), disk: "sda", partno: 3},
		{name: "sdb", number: device.New(8, 16)},
		{name: "sdb1", number: device.New(8, 17), disk: "sdb", partno: 1},
	}
)

// newFs lays nodes out the way sysfs exposes them through class/block,
// dev/block and block.
func newFs(t *testing.T, nodes []node) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	write := func(path, content string) {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}

	for _, n := range nodes {
		devtype := "disk"
		if n.disk != "" {
			devtype = "partition"
		}
		uevent := fmt.Sprintf("MAJOR=%d\nMINOR=%d\nDEVNAME=%s\nDEVTYPE=%s\n", n.number.Major(), n.number.Minor(), n.name, devtype)
		size := n.size
		if size == "" {
			size = "2048"
		}

		dirs := []string{
			filepath.Join("/sys/class/block", n.name),
			filepath.Join("/sys/dev/block", n.number.String()),
		}
		if n.disk == "" {
			dirs = append(dirs, filepath.Join("/sys/block", n.name))
		} else {
			dirs = append(dirs, filepath.Join("/sys/block", n.disk, n.name))
		}

		for _, dir := range dirs {
			write(filepath.Join(dir, "dev"), n.number.String()+"\n")
			write(filepath.Join(dir, "uevent"), uevent)
			write(filepath.Join(dir, "size"), size+"\n")
			if n.disk != "" {
				write(filepath.Join(dir, "partition"), fmt.Sprintf("%d\n", n.partno))
			}
		}
	}
	return fs
}

func stat(nodes []node) func(string) (device.Number, error) {
	return func(path string) (device.Number, error) {
		for _, n := range nodes {
			if path == filepath.Join("/dev", n.name) {
				return n.number, nil
			}
		}
		return 0, fmt.Errorf("%w; path: %s", device.ErrNotBlockDevice, path)
	}
}

type superblocks map[string]probe.Superblock

func (s superblocks) ReadSuperblock(path string) (probe.Superblock, error) {
	return s[path], nil
}

type tables map[string]blkdev.PartitionList

func (tt tables) ReadPartitions(path string) (blkdev.PartitionList, error) {
	if path == "/dev/broken" {
		return nil, errors.New("read error")
	}
	return tt[path], nil
}

func newOracle(t *testing.T, options ...Option) *Oracle {
	t.Helper()

	base := []Option{
		WithFs(newFs(t, nodes)),
		WithStat(stat(nodes)),
		WithFind(func(root string, n device.Number) (string, error) {
			return "", fmt.Errorf("%w; number: %s", device.ErrNodeNotFound, n)
		}),
		WithSuperblockReader(superblocks{
			"/dev/loop0":     {Type: "squashfs", Label: "boot"},
			"/dev/sda":       {PTType: "gpt", PTUUID: &diskUUID},
			"/dev/sda1":      {Type: "vfat", Label: "boot"},
			"/dev/sda3":      {Type: "ext4", UUID: &fsUUID, Label: "root"},
			"/dev/sdb1":      {Type: "ext4", Label: "boot"},
			"/dev/nvme0n1p1": {Type: "xfs", Label: "data"},
		}),
		WithPartitionTableReader(tables{
			"/dev/sda": {
				{Number: 1, UUID: &efiUUID, Label: "EFI"},
				{Number: 2},
				{Number: 3, UUID: &rootUUID, Label: "root"},
			},
			"/dev/nvme0n1": {{Number: 1, UUID: &dataUUID}},
		}),
	}
	return New(append(base, options...)...)
}

func TestOpenByPath(t *testing.T) {
	o := newOracle(t)

	n, err := o.OpenByPath("/dev/sda1")
	require.NoError(t, err)
	require.Equal(t, device.New(8, 1), n)

	_, err = o.OpenByPath("/dev/null")
	require.ErrorIs(t, err, device.ErrNotBlockDevice)
}

func TestName(t *testing.T) {
	o := newOracle(t)

	name, err := o.Name(device.New(259, 1))
	require.NoError(t, err)
	require.Equal(t, "/dev/nvme0n1p1", name)

	_, err = o.Name(device.New(253, 0))
	require.ErrorIs(t, err, device.ErrNodeNotFound)
}

func TestNameFallsBackToFind(t *testing.T) {
	o := newOracle(t, WithFind(func(root string, n device.Number) (string, error) {
		return filepath.Join(root, "dm-0"), nil
	}))

	name, err := o.Name(device.New(253, 0))
	require.NoError(t, err)
	require.Equal(t, "/dev/dm-0", name)
}

func TestWholeDisk(t *testing.T) {
	tests := map[string]struct {
		dev    device.Number
		name   string
		parent device.Number
	}{
		"partition":      {dev: device.New(8, 3), name: "/dev/sda", parent: device.New(8, 0)},
		"nvme partition": {dev: device.New(259, 1), name: "/dev/nvme0n1", parent: device.New(259, 0)},
		"whole disk":     {dev: device.New(8, 16), name: "/dev/sdb", parent: device.New(8, 16)},
	}

	o := newOracle(t)
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			parentName, parent, err := o.WholeDisk(test.dev)
			require.NoError(t, err)
			require.Equal(t, test.name, parentName)
			require.Equal(t, test.parent, parent)

			_, again, err := o.WholeDisk(parent)
			require.NoError(t, err)
			require.Equal(t, parent, again)
		})
	}
}

func TestWholeDiskOrphanPartition(t *testing.T) {
	orphan := []node{{name: "sdc1", number: device.New(8, 33), disk: "sdc", partno: 1}}
	fs := newFs(t, orphan)
	require.NoError(t, fs.RemoveAll("/sys/block/sdc"))
	require.NoError(t, fs.MkdirAll("/sys/block", 0755))

	o := New(WithFs(fs), WithStat(stat(orphan)))
	_, _, err := o.WholeDisk(device.New(8, 33))
	require.ErrorIs(t, err, ErrWholeDiskNotFound)
}

func TestCacheDevName(t *testing.T) {
	tests := map[string]struct {
		token string
		path  string
		err   error
	}{
		"label":             {token: "LABEL=root", path: "/dev/sda3"},
		"uuid":              {token: "UUID=" + fsUUID.String(), path: "/dev/sda3"},
		"uuid upper case":   {token: "UUID=3E6BE9DE-8139-4F1A-A6B0-6C8BBA9D7E21", path: "/dev/sda3"},
		"type":              {token: "TYPE=xfs", path: "/dev/nvme0n1p1"},
		"partuuid":          {token: "PARTUUID=" + efiUUID.String(), path: "/dev/sda1"},
		"partuuid nvme":     {token: "PARTUUID=" + dataUUID.String(), path: "/dev/nvme0n1p1"},
		"partlabel":         {token: "PARTLABEL=EFI", path: "/dev/sda1"},
		"quoted value":      {token: `LABEL="data"`, path: "/dev/nvme0n1p1"},
		"first device wins": {token: "LABEL=boot", path: "/dev/sda1"},
		"bare token":        {token: "/dev/sdb1", path: "/dev/sdb1"},
		"ptuuid":            {token: "PTUUID=" + diskUUID.String(), path: "/dev/sda"},
		"pttype":            {token: "PTTYPE=gpt", path: "/dev/sda"},
		"disk guid":         {token: "UUID=" + diskUUID.String(), err: blkdev.ErrNotFound},
		"partition table":   {token: "TYPE=gpt", err: blkdev.ErrNotFound},
		"label is exact":    {token: "LABEL=ROOT", err: blkdev.ErrNotFound},
		"unknown":           {token: "LABEL=missing", err: blkdev.ErrNotFound},
		"empty device":      {token: "TYPE=squashfs", err: blkdev.ErrNotFound},
	}

	o := newOracle(t)
	cache, err := o.Cache("")
	require.NoError(t, err)
	require.NoError(t, cache.ProbeAll())
	defer cache.Close()

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			path, err := cache.DevName(test.token)
			require.ErrorIs(t, err, test.err)
			require.Equal(t, test.path, path)
		})
	}
}

func TestCacheBeforeProbeAll(t *testing.T) {
	cache, err := newOracle(t).Cache("")
	require.NoError(t, err)

	_, err = cache.DevName("LABEL=root")
	require.ErrorIs(t, err, blkdev.ErrNotFound)
}

func TestCacheSnapshot(t *testing.T) {
	fs := newFs(t, nodes)
	o := newOracle(t, WithFs(fs))

	cache, err := o.Cache("/run/isak/cache.yaml")
	require.NoError(t, err)
	require.NoError(t, cache.ProbeAll())

	b, err := afero.ReadFile(fs, "/run/isak/cache.yaml")
	require.NoError(t, err)

	var snap snapshot
	require.NoError(t, yaml.Unmarshal(b, &snap))
	require.Len(t, snap.Devices, len(nodes)-1)

	var sda3 *entry
	for i := range snap.Devices {
		if snap.Devices[i].Name == "/dev/sda3" {
			sda3 = &snap.Devices[i]
		}
	}
	require.NotNil(t, sda3)
	require.Equal(t, "8:3", sda3.Number)
	require.Equal(t, map[string]string{
		"TYPE":      "ext4",
		"UUID":      fsUUID.String(),
		"LABEL":     "root",
		"PARTUUID":  rootUUID.String(),
		"PARTLABEL": "root",
	}, sda3.Tags)
}

func TestProbe(t *testing.T) {
	o := newOracle(t)

	p, err := o.OpenProbe("/dev/sda")
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Partitions()
	require.ErrorIs(t, err, ErrNotProbed)

	p.EnablePartitions(true)
	p.EnableSuperblocks(true)
	require.NoError(t, p.SafeProbe())

	parts, err := p.Partitions()
	require.NoError(t, err)
	part, ok := parts.ByNumber(3)
	require.True(t, ok)
	require.Equal(t, &rootUUID, part.UUID)
}

func TestProbeErrors(t *testing.T) {
	broken := []node{{name: "broken", number: device.New(8, 48)}}
	o := newOracle(t, WithStat(stat(append(broken, nodes...))))

	_, err := o.OpenProbe("/dev/missing")
	require.ErrorIs(t, err, device.ErrNotBlockDevice)

	p, err := o.OpenProbe("/dev/broken")
	require.NoError(t, err)
	p.EnablePartitions(true)
	require.Error(t, p.SafeProbe())
}

func TestResolveThroughSysfs(t *testing.T) {
	three := 3
	tests := map[string]struct {
		req  blkdev.Request
		name string
	}{
		"label":                  {req: blkdev.Request{Token: "LABEL=boot"}, name: "/dev/sda1"},
		"label w/ parent":        {req: blkdev.Request{Token: "LABEL=boot", Parent: true}, name: "/dev/sda"},
		"label w/ parent partno": {req: blkdev.Request{Token: "LABEL=boot", Parent: true, PartNo: &three}, name: "/dev/sda3"},
		"device":                 {req: blkdev.Request{Path: "/dev/nvme0n1p1"}, name: "/dev/nvme0n1p1"},
	}

	r := blkdev.NewResolver(newOracle(t))
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dev, err := r.Resolve(test.req)
			require.NoError(t, err)
			require.Equal(t, test.name, dev.Name)
		})
	}
}
