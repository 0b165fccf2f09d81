package peripety

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// BlkType classifies a resolved block device.
type BlkType int

const (
	BlkTypeUnknown BlkType = iota
	BlkTypeScsi
	BlkTypeDm
	BlkTypeMultipath
	BlkTypePartition
)

func (t BlkType) String() string {
	switch t {
	case BlkTypeScsi:
		return "Scsi"
	case BlkTypeDm:
		return "Dm"
	case BlkTypeMultipath:
		return "Multipath"
	case BlkTypePartition:
		return "Partition"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders the string form so blk_type reads the same way in
// prpt's JSON output as every other enum in the package.
func (t BlkType) MarshalJSON() ([]byte, error) {
	return marshalJSONString(t.String())
}

// BlkInfo is a sysfs-derived device record. Construction is fallible: it
// fails with ErrBlkNotFound when the identifier does not resolve to
// anything under sysfs, or ErrSysfsRead on unexpected I/O trouble.
type BlkInfo struct {
	BlkPath string  `json:"blk_path"`
	BlkType BlkType `json:"blk_type"`
	Name    string  `json:"name"`
	WWID    string  `json:"wwid"`

	OwnersWWIDs []string `json:"owners_wwids"`
	OwnersNames []string `json:"owners_names"`
	OwnersPaths []string `json:"owners_paths"`
	OwnersTypes []string `json:"owners_types"`

	UUID       string `json:"uuid"`
	MountPoint string `json:"mount_point"`
}

// ToJSONStringPretty is used by the CLI's `info -J` output mode.
func (i *BlkInfo) ToJSONStringPretty() (string, error) {
	b, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var majorMinorRe = regexp.MustCompile(`^\d+:\d+$`)
var trailingDigitsRe = regexp.MustCompile(`^(.*?)(\d+)$`)

// NewBlkInfo resolves blk (major:minor, a bare block name, a /dev path, or a
// symlink to one) against the real kernel sysfs, including owner and
// mount-point enrichment.
func NewBlkInfo(blk string) (*BlkInfo, error) {
	return NewBlkInfoWithSysfs(DefaultSysfs, blk, true)
}

// NewBlkInfoSkipExtra is the fast path used by prpt's --blk filter: it
// resolves blk_path/blk_type/name/wwid only, skipping the
// holders/uuid/mount-point walk spec.md §4.3.1 calls "without extension
// enrichment".
func NewBlkInfoSkipExtra(blk string) (*BlkInfo, error) {
	return NewBlkInfoWithSysfs(DefaultSysfs, blk, false)
}

// NewBlkInfoWithSysfs is the injectable form used by tests and by both
// parsers: the SCSI parser passes fullEnrich=false, the Multipath parser
// passes true.
func NewBlkInfoWithSysfs(s Sysfs, blk string, fullEnrich bool) (*BlkInfo, error) {
	name, err := resolveBlockName(s, blk)
	if err != nil {
		return nil, err
	}

	if !s.exists(filepath.Join("block", name)) && !s.exists(filepath.Join("class", "block", name)) {
		return nil, fmt.Errorf("%w: %q", ErrBlkNotFound, blk)
	}

	info := &BlkInfo{Name: name}

	switch {
	case s.exists(filepath.Join("block", name, "dm")):
		uuid := s.Read(filepath.Join("block", name, "dm", "uuid"))
		if dmName := s.Read(filepath.Join("block", name, "dm", "name")); dmName != "" {
			info.Name = dmName
		}
		if strings.HasPrefix(uuid, mpathUUIDPrefix) {
			info.BlkType = BlkTypeMultipath
			info.WWID = strings.TrimPrefix(uuid, mpathUUIDPrefix)
		} else {
			info.BlkType = BlkTypeDm
			info.WWID = uuid
		}
		info.BlkPath = "/dev/mapper/" + info.Name
	case s.exists(filepath.Join("block", name, "device")):
		info.BlkType = BlkTypeScsi
		info.WWID = s.Read(filepath.Join("block", name, "device", "wwid"))
		info.BlkPath = "/dev/" + name
	case isPartition(s, name):
		info.BlkType = BlkTypePartition
		info.BlkPath = "/dev/" + name
	default:
		info.BlkType = BlkTypeUnknown
		info.BlkPath = "/dev/" + name
	}

	if fullEnrich {
		populateOwners(s, name, info)
		info.UUID = lookupUUID(info.Name)
		info.MountPoint = lookupMountPoint(info.BlkPath)
	}

	return info, nil
}

func resolveBlockName(s Sysfs, blk string) (string, error) {
	switch {
	case majorMinorRe.MatchString(blk):
		link, err := os.Readlink(s.path("dev", "block", blk))
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%w: %q: %v", ErrBlkNotFound, blk, err)
			}
			return "", fmt.Errorf("%w: %q: %v", ErrSysfsRead, blk, err)
		}
		return filepath.Base(link), nil
	case strings.HasPrefix(blk, "/dev/"):
		if real, err := filepath.EvalSymlinks(blk); err == nil {
			return filepath.Base(real), nil
		}
		return filepath.Base(blk), nil
	default:
		return blk, nil
	}
}

func isPartition(s Sysfs, name string) bool {
	m := trailingDigitsRe.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	parent := m[1]
	if parent == "" || parent == name {
		return false
	}
	return s.exists(filepath.Join("block", parent, name))
}

// populateOwners walks the holders directory for name (preferring the
// class/block form, which exists for both whole disks and partitions) and
// appends a light, non-recursive description of each holder.
func populateOwners(s Sysfs, name string, info *BlkInfo) {
	holdersDir := filepath.Join("class", "block", name, "holders")
	if !s.exists(holdersDir) {
		holdersDir = filepath.Join("block", name, "holders")
		if !s.exists(holdersDir) {
			return
		}
	}
	entries, err := os.ReadDir(s.path(holdersDir))
	if err != nil {
		return
	}
	for _, e := range entries {
		holder := e.Name()
		ownerType, ownerWWID, ownerPath := describeHolder(s, holder)
		info.OwnersWWIDs = append(info.OwnersWWIDs, ownerWWID)
		info.OwnersNames = append(info.OwnersNames, holder)
		info.OwnersPaths = append(info.OwnersPaths, ownerPath)
		info.OwnersTypes = append(info.OwnersTypes, ownerType.String())
	}
}

func describeHolder(s Sysfs, name string) (BlkType, string, string) {
	if s.exists(filepath.Join("block", name, "dm")) {
		uuid := s.Read(filepath.Join("block", name, "dm", "uuid"))
		dmName := s.Read(filepath.Join("block", name, "dm", "name"))
		if dmName == "" {
			dmName = name
		}
		if strings.HasPrefix(uuid, mpathUUIDPrefix) {
			return BlkTypeMultipath, strings.TrimPrefix(uuid, mpathUUIDPrefix), "/dev/mapper/" + dmName
		}
		return BlkTypeDm, uuid, "/dev/mapper/" + dmName
	}
	if s.exists(filepath.Join("block", name, "device")) {
		return BlkTypeScsi, s.Read(filepath.Join("block", name, "device", "wwid")), "/dev/" + name
	}
	return BlkTypeUnknown, "", "/dev/" + name
}

// lookupUUID is a best-effort scan of /dev/disk/by-uuid; it is not rooted
// under Sysfs.Root because filesystem UUIDs live under /dev, not /sys, so
// it always reads the real system's /dev, even when a test points
// Sysfs.Root at a fake tree.
func lookupUUID(name string) string {
	const byUUID = "/dev/disk/by-uuid"
	entries, err := os.ReadDir(byUUID)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		target, err := filepath.EvalSymlinks(filepath.Join(byUUID, e.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == name {
			return e.Name()
		}
	}
	return ""
}

// lookupMountPoint scans /proc/self/mounts for the given device path.
func lookupMountPoint(blkPath string) string {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return ""
	}
	defer f.Close()
	resolved, err := filepath.EvalSymlinks(blkPath)
	if err != nil {
		resolved = blkPath
	}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[0] == blkPath || fields[0] == resolved {
			return fields[1]
		}
	}
	return ""
}
