package peripety

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlkInfoWithSysfsScsi(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "sda", "device", "wwid"), "wwid-sda\n")

	info, err := NewBlkInfoWithSysfs(Sysfs{Root: root}, "sda", true)
	require.NoError(t, err)
	assert.Equal(t, BlkTypeScsi, info.BlkType)
	assert.Equal(t, "sda", info.Name)
	assert.Equal(t, "wwid-sda", info.WWID)
	assert.Equal(t, "/dev/sda", info.BlkPath)
}

func TestNewBlkInfoWithSysfsDm(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "dm-0", "dm", "uuid"), "LVM-abcdef\n")
	mkfile(t, filepath.Join(root, "block", "dm-0", "dm", "name"), "myvg-mylv\n")

	info, err := NewBlkInfoWithSysfs(Sysfs{Root: root}, "dm-0", true)
	require.NoError(t, err)
	assert.Equal(t, BlkTypeDm, info.BlkType)
	assert.Equal(t, "myvg-mylv", info.Name)
	assert.Equal(t, "LVM-abcdef", info.WWID)
	assert.Equal(t, "/dev/mapper/myvg-mylv", info.BlkPath)
}

func TestNewBlkInfoWithSysfsMultipath(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "dm-1", "dm", "uuid"), "mpath-3600a09803830447a4f244c4657596665\n")
	mkfile(t, filepath.Join(root, "block", "dm-1", "dm", "name"), "mpatha\n")

	info, err := NewBlkInfoWithSysfs(Sysfs{Root: root}, "dm-1", true)
	require.NoError(t, err)
	assert.Equal(t, BlkTypeMultipath, info.BlkType)
	assert.Equal(t, "mpatha", info.Name)
	assert.Equal(t, "3600a09803830447a4f244c4657596665", info.WWID)
	assert.Equal(t, "/dev/mapper/mpatha", info.BlkPath)
}

func TestNewBlkInfoWithSysfsPartition(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "sda", "device", "wwid"), "wwid-sda\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "block", "sda", "sda1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "block", "sda1"), 0o755))

	info, err := NewBlkInfoWithSysfs(Sysfs{Root: root}, "sda1", true)
	require.NoError(t, err)
	assert.Equal(t, BlkTypePartition, info.BlkType)
	assert.Equal(t, "/dev/sda1", info.BlkPath)
}

func TestNewBlkInfoWithSysfsUnknown(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "block", "loop0"), 0o755))

	info, err := NewBlkInfoWithSysfs(Sysfs{Root: root}, "loop0", true)
	require.NoError(t, err)
	assert.Equal(t, BlkTypeUnknown, info.BlkType)
}

func TestNewBlkInfoWithSysfsNotFound(t *testing.T) {
	_, err := NewBlkInfoWithSysfs(Sysfs{Root: t.TempDir()}, "ghost", true)
	assert.ErrorIs(t, err, ErrBlkNotFound)
}

func TestNewBlkInfoWithSysfsMajorMinorResolution(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "sda", "device", "wwid"), "wwid-sda\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dev", "block"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "block", "sda"), filepath.Join(root, "dev", "block", "8:0")))

	info, err := NewBlkInfoWithSysfs(Sysfs{Root: root}, "8:0", true)
	require.NoError(t, err)
	assert.Equal(t, "sda", info.Name)
	assert.Equal(t, BlkTypeScsi, info.BlkType)
}

func TestNewBlkInfoOwnersEnrichment(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "sda", "device", "wwid"), "wwid-sda\n")
	mkfile(t, filepath.Join(root, "block", "dm-1", "dm", "uuid"), "mpath-3600a09803830447a4f244c4657596665\n")
	mkfile(t, filepath.Join(root, "block", "dm-1", "dm", "name"), "mpatha\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "block", "sda", "holders", "dm-1"), 0o755))

	info, err := NewBlkInfoWithSysfs(Sysfs{Root: root}, "sda", true)
	require.NoError(t, err)
	require.Len(t, info.OwnersNames, 1)
	assert.Equal(t, "dm-1", info.OwnersNames[0])
	assert.Equal(t, "Multipath", info.OwnersTypes[0])
	assert.Equal(t, "3600a09803830447a4f244c4657596665", info.OwnersWWIDs[0])
	assert.Equal(t, "/dev/mapper/mpatha", info.OwnersPaths[0])
}

func TestNewBlkInfoSkipExtraSkipsOwners(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "block", "sda", "device", "wwid"), "wwid-sda\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "block", "sda", "holders", "dm-1"), 0o755))

	info, err := NewBlkInfoWithSysfs(Sysfs{Root: root}, "sda", false)
	require.NoError(t, err)
	assert.Empty(t, info.OwnersNames, "skip-extra must not walk holders")
	assert.Empty(t, info.UUID)
	assert.Empty(t, info.MountPoint)
}

func TestBlkTypeString(t *testing.T) {
	assert.Equal(t, "Scsi", BlkTypeScsi.String())
	assert.Equal(t, "Dm", BlkTypeDm.String())
	assert.Equal(t, "Multipath", BlkTypeMultipath.String())
	assert.Equal(t, "Partition", BlkTypePartition.String())
	assert.Equal(t, "Unknown", BlkTypeUnknown.String())
}
