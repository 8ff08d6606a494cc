package serialport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestNormalizeDefaults(t *testing.T) {
	opts, err := Options{}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, 115200, opts.BaudRate)
	assert.Equal(t, 8, opts.DataBits)
	assert.Equal(t, 1, opts.StopBits)
	assert.Equal(t, "N", opts.Parity)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}

func TestNormalizeParityAliases(t *testing.T) {
	cases := map[string]string{
		"none": "N",
		" n ":  "N",
		"Even": "E",
		"e":    "E",
		"ODD":  "O",
	}
	for in, want := range cases {
		opts, err := Options{Parity: in}.Normalize()
		require.NoErrorf(t, err, "parity %q", in)
		assert.Equal(t, want, opts.Parity)
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	for name, opts := range map[string]Options{
		"data bits": {DataBits: 9},
		"stop bits": {StopBits: 3},
		"parity":    {Parity: "mark"},
	} {
		_, err := opts.Normalize()
		assert.Errorf(t, err, "%s should be rejected", name)
	}
}

func TestMode(t *testing.T) {
	mode, err := Options{}.Mode()
	require.NoError(t, err)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)

	mode, err = Options{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
}

func TestString(t *testing.T) {
	assert.Equal(t, "115200 8-N-1", Options{}.String())
	assert.Equal(t, "invalid", Options{DataBits: 4}.String())
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open("/dev/does-not-exist-alarm-gateway", Options{})
	require.Error(t, err)
}
