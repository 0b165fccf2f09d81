package peripety

import "fmt"

// StorageSubSystem tags the kernel subsystem an event originated from or
// pertains to. The string form is the wire form used in the journal and in
// CLI filters, so String/ParseStorageSubSystem must round-trip.
type StorageSubSystem int

const (
	Unknown StorageSubSystem = iota
	Scsi
	Multipath
	DeviceMapper
	Block
	FileSystem
	LVM
)

var subSystemNames = [...]string{
	Unknown:      "Unknown",
	Scsi:         "Scsi",
	Multipath:    "Multipath",
	DeviceMapper: "DeviceMapper",
	Block:        "Block",
	FileSystem:   "FileSystem",
	LVM:          "LVM",
}

func (s StorageSubSystem) String() string {
	if int(s) < 0 || int(s) >= len(subSystemNames) {
		return "Unknown"
	}
	return subSystemNames[s]
}

// ParseStorageSubSystem parses the wire form produced by String. An unknown
// or empty string is an InvalidEnum error, not a silent Unknown.
func ParseStorageSubSystem(s string) (StorageSubSystem, error) {
	for i, name := range subSystemNames {
		if name == s {
			return StorageSubSystem(i), nil
		}
	}
	return Unknown, fmt.Errorf("%w: invalid sub_system %q", ErrInvalidEnum, s)
}

// MarshalJSON renders the string form so the wire JSON matches the journal
// representation.
func (s StorageSubSystem) MarshalJSON() ([]byte, error) {
	return marshalJSONString(s.String())
}

func (s *StorageSubSystem) UnmarshalJSON(b []byte) error {
	str, err := unmarshalJSONString(b)
	if err != nil {
		return err
	}
	v, err := ParseStorageSubSystem(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
