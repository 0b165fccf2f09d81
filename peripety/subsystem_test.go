package peripety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageSubSystemRoundTrip(t *testing.T) {
	for _, s := range []StorageSubSystem{Unknown, Scsi, Multipath, DeviceMapper, Block, FileSystem, LVM} {
		parsed, err := ParseStorageSubSystem(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestParseStorageSubSystemInvalid(t *testing.T) {
	_, err := ParseStorageSubSystem("Nonsense")
	assert.ErrorIs(t, err, ErrInvalidEnum)
}

func TestStorageSubSystemJSON(t *testing.T) {
	b, err := Scsi.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"Scsi"`, string(b))

	var s StorageSubSystem
	require.NoError(t, s.UnmarshalJSON(b))
	assert.Equal(t, Scsi, s)
}
