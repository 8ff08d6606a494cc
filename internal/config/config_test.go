package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/alarm-gateway/internal/logic"
	"github.com/sweeney/alarm-gateway/internal/serialport"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestDefaults checks that an empty file yields the reference deployment.
func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultHeartbeat, cfg.Heartbeat)
	assert.Equal(t, DefaultBroker, cfg.MQTT.Broker)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)

	assert.Equal(t, 100*time.Millisecond, cfg.Inputs.Poll)
	assert.Equal(t, []logic.ContactID{"1", "2", "5"}, cfg.Inputs.LineContacts())
	assert.Equal(t, []int{27, 22, 24}, cfg.Inputs.Pins())

	require.True(t, cfg.Pulse.On())
	assert.Equal(t, "6", cfg.Pulse.Contact)
	require.NotNil(t, cfg.Pulse.Pin)
	assert.Equal(t, 17, *cfg.Pulse.Pin)
	assert.Equal(t, logic.DefaultPulseThresholds(), cfg.Pulse.Thresholds())
	assert.Equal(t, time.Second, cfg.Pulse.CheckInterval)

	require.True(t, cfg.Serial.On())
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, "115200 8-N-1", cfg.Serial.Link.String())
	assert.Equal(t, time.Second, cfg.Serial.Link.ReadTimeout)
	assert.Equal(t, ModeNodes, cfg.Serial.Mode)

	nodes, ok := cfg.Serial.Resolver().(logic.NodeResolver)
	require.True(t, ok)
	assert.Equal(t, logic.NodeTable{{Contact: "3", Node: "29FF"}, {Contact: "4", Node: "14A0"}}, nodes.Nodes)
}

func TestLoadFullFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
log_level: debug
http_addr: ":8080"
heartbeat: 5m
mqtt:
  broker: tcp://broker:1883
  client_id: gw-1
  buffer_size: 20
journal:
  path: /tmp/j.db
contacts:
  - id: "1"
    site: Store 12
    location: Till
    floor: G
    zone: A
    table: "4"
    unit: Panic
    camera_id: cam-1
inputs:
  poll: 50ms
  lines:
    - {contact: "1", pin: 5}
pulse:
  enabled: false
serial:
  port: /dev/ttyS0
  baud_rate: 9600
  parity: even
  read_timeout: 500ms
  mode: fixed
  contact: "9"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Minute, cfg.Heartbeat)
	assert.Equal(t, MQTT{Broker: "tcp://broker:1883", ClientID: "gw-1", BufferSize: 20}, cfg.MQTT)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.Path)
	assert.Equal(t, 50*time.Millisecond, cfg.Inputs.Poll)
	assert.Equal(t, []int{5}, cfg.Inputs.Pins())
	assert.False(t, cfg.Pulse.On())

	assert.Equal(t, serialport.Options{
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    1,
		Parity:      "E",
		ReadTimeout: 500 * time.Millisecond,
	}, cfg.Serial.Link)
	assert.Equal(t, logic.FixedResolver{Contact: "9"}, cfg.Serial.Resolver())

	table, err := cfg.Table()
	require.NoError(t, err)
	c, ok := table.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "cam-1", c.DeviceID)
	assert.Equal(t, "4", c.Table)
}

func TestPulsePinZeroIsKept(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "pulse:\n  pin: 0\n"))
	require.NoError(t, err)

	require.NotNil(t, cfg.Pulse.Pin)
	assert.Equal(t, 0, *cfg.Pulse.Pin, "BCM 0 is a valid status pin")
}

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	if _, err := os.Stat(DefaultConfigFilename); err == nil {
		t.Skip("default config file exists on this machine")
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBroker, cfg.MQTT.Broker)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, "inputs: [unterminated"))
	require.Error(t, err)
}

func TestSerialLogMode(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "serial:\n  mode: log\n"))
	require.NoError(t, err)
	assert.Equal(t, logic.LogResolver{}, cfg.Serial.Resolver())
}

// TestValidateRejects covers each invalid configuration.
func TestValidateRejects(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"duplicate contact":  "contacts:\n  - id: \"1\"\n  - id: \"1\"\n",
		"empty contact id":   "contacts:\n  - site: x\n",
		"bad log level":      "log_level: loud\n",
		"negative poll":      "inputs:\n  poll: -1s\n",
		"empty lines":        "inputs:\n  lines: []\n",
		"line no contact":    "inputs:\n  lines:\n    - pin: 4\n",
		"duplicate pin":      "inputs:\n  lines:\n    - {contact: a, pin: 4}\n    - {contact: b, pin: 4}\n",
		"pulse on input":     "pulse:\n  pin: 27\n",
		"negative pulse pin": "pulse:\n  pin: -1\n",
		"threshold order":    "pulse:\n  armed_max_us: 200\n  unarmed_max_us: 150\n",
		"unknown mode":       "serial:\n  mode: fancy\n",
		"fixed no contact":   "serial:\n  mode: fixed\n",
		"empty nodes":        "serial:\n  nodes: []\n",
		"node no id":         "serial:\n  nodes:\n    - contact: \"3\"\n",
		"bad parity":         "serial:\n  parity: mark\n",
	} {
		_, err := Load(writeConfig(t, body))
		assert.Errorf(t, err, "%s should be rejected", name)
	}
}

func TestDisabledSerialSkipsValidation(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "serial:\n  enabled: false\n  mode: fancy\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Serial.On())
}
