package peripety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dwlehman/peripety/internal/plog"
)

// Sysfs is a root-relocatable view of the kernel pseudo-filesystem. Every
// probe is a pure function of the filesystem under Root: stateless, and
// every lookup returns a nullable/absent result on failure rather than
// raising — the caller decides whether absence is fatal. Root defaults to
// "/sys"; tests point it at a t.TempDir() tree to fake topology without
// root privileges or real hardware. Log is optional (nil is a silent
// no-op) and, per spec.md §4.1's failure policy, receives a Warn for any
// I/O error a probe hits that isn't the expected "path absent" case.
type Sysfs struct {
	Root string
	Log  *plog.Logger
}

// DefaultSysfs probes the real kernel pseudo-filesystem with no logger
// attached; callers that want unexpected I/O errors surfaced should copy it
// and set Log (see peripetyd/parsers/scsi and .../multipath).
var DefaultSysfs = Sysfs{Root: "/sys"}

func (s Sysfs) root() string {
	if s.Root == "" {
		return "/sys"
	}
	return s.Root
}

func (s Sysfs) path(elem ...string) string {
	return filepath.Join(append([]string{s.root()}, elem...)...)
}

// classifySysfsErr turns a raw os error from probing relPath into the
// sentinel spec.md §7 assigns it: ErrSysfsMissing when the path genuinely
// isn't there (the common, expected case), ErrSysfsRead for anything else
// (permissions, races, a sysfs that misbehaves).
func classifySysfsErr(relPath string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrSysfsMissing, relPath)
	}
	return fmt.Errorf("%w: %q: %v", ErrSysfsRead, relPath, err)
}

// warnUnexpected logs at Warn unless err classifies as the expected,
// unremarkable "path absent" case.
func (s Sysfs) warnUnexpected(relPath string, err error) {
	if err == nil {
		return
	}
	classified := classifySysfsErr(relPath, err)
	if errors.Is(classified, ErrSysfsMissing) {
		return
	}
	if s.Log != nil {
		s.Log.Warnf("sysfs: %v", classified)
	}
}

// Read reads a single-line sysfs attribute, trimming the trailing newline.
// It returns "" on any I/O error; an unexpected one (anything but the
// attribute simply not existing) is logged at Warn.
func (s Sysfs) Read(relPath string) string {
	b, err := os.ReadFile(s.path(relPath))
	if err != nil {
		s.warnUnexpected(relPath, err)
		return ""
	}
	return strings.TrimRight(string(b), "\n")
}

func (s Sysfs) exists(relPath string) bool {
	_, err := os.Stat(s.path(relPath))
	if err != nil {
		s.warnUnexpected(relPath, err)
		return false
	}
	return true
}

// ScsiHostIDOfDisk resolves a SCSI block device name (e.g. "sda") to its
// SCSI host id by reading its class/block symlink.
func (s Sysfs) ScsiHostIDOfDisk(name string) (string, bool) {
	target, err := os.Readlink(s.path("class", "block", name))
	if err != nil {
		s.warnUnexpected(filepath.Join("class", "block", name), err)
		return "", false
	}
	// .../devices/pci0000:00/.../host5/target5:0:0/5:0:0:0/block/sda
	m := hostIDRe.FindStringSubmatch(target)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var hostIDRe = regexp.MustCompile(`/host(\d+)/`)

// IsISCSIHost reports whether the given SCSI host id is backed by iSCSI.
func (s Sysfs) IsISCSIHost(hostID string) bool {
	return s.exists(filepath.Join("class", "iscsi_host", "host"+hostID))
}

// IsFCHost reports whether the given SCSI host id is backed by Fibre Channel.
func (s Sysfs) IsFCHost(hostID string) bool {
	return s.exists(filepath.Join("class", "fc_host", "host"+hostID))
}

var iscsiDevicesRe = regexp.MustCompile(`(devices/.+/host\d+)/iscsi_host/`)

// ISCSISessionIDOfHost resolves /sys/class/iscsi_host/hostN as a symlink,
// extracts the devices/.../hostN portion, and scans that directory for an
// entry whose name begins with "session", returning its numeric suffix.
func (s Sysfs) ISCSISessionIDOfHost(hostID string) (string, bool) {
	hostLink := filepath.Join("class", "iscsi_host", "host"+hostID)
	link, err := os.Readlink(s.path(hostLink))
	if err != nil {
		s.warnUnexpected(hostLink, err)
		return "", false
	}
	m := iscsiDevicesRe.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	devDir := s.path(m[1])
	entries, err := os.ReadDir(devDir)
	if err != nil {
		s.warnUnexpected(m[1], err)
		return "", false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "session") {
			return strings.TrimPrefix(e.Name(), "session"), true
		}
	}
	return "", false
}

// ISCSIHostInfo reads the conventional attributes under iscsi_session/sessionN
// and iscsi_connection/sessionN:0. It returns an empty map if either
// directory is missing, matching the design note's fallback behavior.
func (s Sysfs) ISCSIHostInfo(hostID string) map[string]string {
	ret := make(map[string]string)
	sid, ok := s.ISCSISessionIDOfHost(hostID)
	if !ok {
		return ret
	}
	sessionDir := filepath.Join("class", "iscsi_session", "session"+sid)
	connDir := filepath.Join("class", "iscsi_connection", "session"+sid+":0")
	if !s.exists(sessionDir) || !s.exists(connDir) {
		return ret
	}
	ret["address"] = s.Read(filepath.Join(connDir, "address"))
	ret["port"] = s.Read(filepath.Join(connDir, "port"))
	ret["tpgt"] = s.Read(filepath.Join(sessionDir, "tpgt"))
	ret["target_name"] = s.Read(filepath.Join(sessionDir, "targetname"))
	ret["iface_name"] = s.Read(filepath.Join(sessionDir, "ifacename"))
	return ret
}

// FCHostIDOfHost is an intentional stub: the upstream implementation never
// resolved an FC host id from a block device, and this port mirrors that
// rather than inventing a resolution path (see DESIGN.md Open Questions).
func (s Sysfs) FCHostIDOfHost(hostID string) (string, bool) {
	return "", false
}

// FCHostInfo mirrors the upstream stub: Fibre Channel host attribute
// collection was never implemented there either.
func (s Sysfs) FCHostInfo(hostID string) map[string]string {
	return map[string]string{}
}

// SCSIHostInfo resolves driver_name plus transport-specific attributes
// (iSCSI or FC) for the SCSI host backing blkName.
func (s Sysfs) SCSIHostInfo(blkName string) map[string]string {
	ret := make(map[string]string)
	hostID, ok := s.ScsiHostIDOfDisk(blkName)
	if !ok {
		return ret
	}
	ret["driver_name"] = s.Read(filepath.Join("class", "scsi_host", "host"+hostID, "proc_name"))
	switch {
	case s.IsISCSIHost(hostID):
		ret["transport"] = "iSCSI"
		for k, v := range s.ISCSIHostInfo(hostID) {
			ret[k] = v
		}
	case s.IsFCHost(hostID):
		ret["transport"] = "FC"
		for k, v := range s.FCHostInfo(hostID) {
			ret[k] = v
		}
	}
	return ret
}

const mpathUUIDPrefix = "mpath-"

// MpathInfoFromBlk reads /sys/dev/block/M:m/holders/, takes the first
// holder, and reads its dm/uuid. It only succeeds when the UUID begins with
// "mpath-", in which case the stripped UUID is the wwid and the holder's
// dm/name is the mpath device name.
func (s Sysfs) MpathInfoFromBlk(majorMinor string) (name, wwid string, ok bool) {
	holdersRel := filepath.Join("dev", "block", majorMinor, "holders")
	entries, err := os.ReadDir(s.path(holdersRel))
	if err != nil {
		s.warnUnexpected(holdersRel, err)
		return "", "", false
	}
	if len(entries) == 0 {
		return "", "", false
	}
	holder := entries[0].Name()
	uuid := s.Read(filepath.Join("dev", "block", majorMinor, "holders", holder, "dm", "uuid"))
	if !strings.HasPrefix(uuid, mpathUUIDPrefix) {
		return "", "", false
	}
	wwid = strings.TrimPrefix(uuid, mpathUUIDPrefix)
	name = s.Read(filepath.Join("dev", "block", majorMinor, "holders", holder, "dm", "name"))
	return name, wwid, true
}

// String implements fmt.Stringer purely so Sysfs is convenient to log.
func (s Sysfs) String() string {
	return fmt.Sprintf("Sysfs{Root: %s}", s.root())
}
