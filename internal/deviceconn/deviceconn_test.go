package deviceconn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectSerialPicksSoleUsableDevice(t *testing.T) {
	devices := []Device{{Serial: "emulator-5554", Status: StatusDevice}}
	serial, err := SelectSerial(devices, "")
	require.NoError(t, err)
	require.Equal(t, "emulator-5554", serial)
}

func TestSelectSerialRequiresDisambiguation(t *testing.T) {
	devices := []Device{
		{Serial: "a", Status: StatusDevice},
		{Serial: "b", Status: StatusDevice},
	}
	_, err := SelectSerial(devices, "")
	require.Error(t, err)
}

func TestSelectSerialHonorsExplicitRequest(t *testing.T) {
	devices := []Device{
		{Serial: "a", Status: StatusDevice},
		{Serial: "b", Status: StatusOffline},
	}
	serial, err := SelectSerial(devices, "b")
	require.Error(t, err)
	require.Empty(t, serial)

	serial, err = SelectSerial(devices, "a")
	require.NoError(t, err)
	require.Equal(t, "a", serial)
}

func TestSelectSerialRejectsUnknownRequest(t *testing.T) {
	_, err := SelectSerial(nil, "nope")
	require.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	require.Equal(t, StatusDevice, parseStatus("device"))
	require.Equal(t, StatusOffline, parseStatus("offline"))
	require.Equal(t, StatusUnauthorized, parseStatus("unauthorized"))
	require.Equal(t, StatusUnknown, parseStatus("bootloader"))
}
