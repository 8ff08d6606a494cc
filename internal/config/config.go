// Package config loads the gateway's YAML configuration file, fills in the
// reference deployment's defaults and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/gpio"
	"github.com/sweeney/alarm-gateway/internal/journal"
	"github.com/sweeney/alarm-gateway/internal/logger"
	"github.com/sweeney/alarm-gateway/internal/logic"
	"github.com/sweeney/alarm-gateway/internal/mqtt"
	"github.com/sweeney/alarm-gateway/internal/serialport"
)

// Serial resolution modes.
const (
	ModeNodes = "nodes"
	ModeFixed = "fixed"
	ModeLog   = "log"
)

const (
	// DefaultConfigFilename is read when no path is given.
	DefaultConfigFilename = "/etc/alarm-gateway/config.yaml"

	DefaultHTTPAddr      = ":80"
	DefaultBroker        = "tcp://localhost:1883"
	DefaultHeartbeat     = 15 * time.Minute
	DefaultPoll          = 100 * time.Millisecond
	DefaultCheckInterval = time.Second
)

var (
	errNoLines        = errors.New("inputs.lines must not be empty")
	errPulseContact   = errors.New("pulse.contact is required when pulse is enabled")
	errSerialContact  = errors.New("serial.contact is required in fixed mode")
	errSerialNodes    = errors.New("serial.nodes must not be empty in nodes mode")
	errThresholdOrder = errors.New("pulse.armed_max_us must be below pulse.unarmed_max_us")
)

// Config is the whole configuration file.
type Config struct {
	LogLevel  string        `yaml:"log_level"`
	HTTPAddr  string        `yaml:"http_addr"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	MQTT      MQTT          `yaml:"mqtt"`
	Journal   Journal       `yaml:"journal"`
	GPIO      GPIO          `yaml:"gpio"`
	Contacts  []Contact     `yaml:"contacts"`
	Inputs    Inputs        `yaml:"inputs"`
	Pulse     Pulse         `yaml:"pulse"`
	Serial    Serial        `yaml:"serial"`
}

// MQTT configures the broker sink.
type MQTT struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// Journal configures the SQLite event journal.
type Journal struct {
	Path string `yaml:"path"`
}

// GPIO names the character device holding every line.
type GPIO struct {
	Chip string `yaml:"chip"`
}

// Contact is one row of the contact table.
type Contact struct {
	ID       string `yaml:"id"`
	Site     string `yaml:"site"`
	Location string `yaml:"location"`
	Floor    string `yaml:"floor"`
	Zone     string `yaml:"zone"`
	Table    string `yaml:"table"`
	Unit     string `yaml:"unit"`
	CameraID string `yaml:"camera_id"`
}

// Inputs configures the polled digital contacts.
type Inputs struct {
	Poll  time.Duration `yaml:"poll"`
	Lines []Line        `yaml:"lines"`
}

// Line maps a BCM pin to the contact it reports.
type Line struct {
	Contact string `yaml:"contact"`
	Pin     int    `yaml:"pin"`
}

// Pulse configures the duty-cycle status line.
type Pulse struct {
	Enabled       *bool         `yaml:"enabled"`
	Contact       string        `yaml:"contact"`
	Pin           *int          `yaml:"pin"` // nil selects gpio.PinStatus
	ArmedMaxUs    uint32        `yaml:"armed_max_us"`
	UnarmedMaxUs  uint32        `yaml:"unarmed_max_us"`
	TimeoutUs     uint32        `yaml:"timeout_us"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Serial configures the alarm node serial link.
type Serial struct {
	Enabled *bool              `yaml:"enabled"`
	Port    string             `yaml:"port"`
	Link    serialport.Options `yaml:",inline"`
	Mode    string             `yaml:"mode"`
	Contact string             `yaml:"contact"`
	Nodes   []Node             `yaml:"nodes"`
}

// Node maps a device-id fragment to a contact.
type Node struct {
	Contact string `yaml:"contact"`
	Node    string `yaml:"node"`
}

// Load reads configuration from path and validates it. A missing file at the
// default location yields the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	var cfg Config
	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills defaults and rejects invalid values.
func Validate(cfg *Config) error {
	if cfg.LogLevel != "" {
		if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
		}
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must not be negative")
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}

	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = DefaultBroker
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = mqtt.DefaultClientID
	}
	if cfg.MQTT.BufferSize <= 0 {
		cfg.MQTT.BufferSize = mqtt.DefaultBufferSize
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = journal.DefaultPath
	}
	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = gpio.DefaultChip
	}

	if _, err := cfg.Table(); err != nil {
		return err
	}

	if err := validateInputs(&cfg.Inputs); err != nil {
		return err
	}
	if err := validatePulse(&cfg.Pulse); err != nil {
		return err
	}
	if cfg.Pulse.On() {
		for _, pin := range cfg.Inputs.Pins() {
			if pin == *cfg.Pulse.Pin {
				return fmt.Errorf("pulse.pin %d is also an input line", pin)
			}
		}
	}
	return validateSerial(&cfg.Serial)
}

func validateInputs(in *Inputs) error {
	if in.Poll < 0 {
		return fmt.Errorf("inputs.poll must not be negative")
	}
	if in.Poll == 0 {
		in.Poll = DefaultPoll
	}
	if in.Lines == nil {
		in.Lines = []Line{
			{Contact: "1", Pin: gpio.PinContact1},
			{Contact: "2", Pin: gpio.PinContact2},
			{Contact: "5", Pin: gpio.PinContact5},
		}
	}
	if len(in.Lines) == 0 {
		return errNoLines
	}

	pins := make(map[int]bool, len(in.Lines))
	for i, l := range in.Lines {
		if l.Contact == "" {
			return fmt.Errorf("inputs.lines[%d]: contact is required", i)
		}
		if l.Pin < 0 {
			return fmt.Errorf("inputs.lines[%d]: invalid pin %d", i, l.Pin)
		}
		if pins[l.Pin] {
			return fmt.Errorf("inputs.lines[%d]: pin %d used twice", i, l.Pin)
		}
		pins[l.Pin] = true
	}
	return nil
}

func validatePulse(p *Pulse) error {
	if p.Enabled == nil {
		on := true
		p.Enabled = &on
	}
	if !*p.Enabled {
		return nil
	}

	def := logic.DefaultPulseThresholds()
	if p.Contact == "" {
		p.Contact = "6"
	}
	if p.Pin == nil {
		pin := gpio.PinStatus
		p.Pin = &pin
	}
	if *p.Pin < 0 {
		return fmt.Errorf("pulse.pin: invalid pin %d", *p.Pin)
	}
	if p.ArmedMaxUs == 0 {
		p.ArmedMaxUs = def.ArmedMax
	}
	if p.UnarmedMaxUs == 0 {
		p.UnarmedMaxUs = def.UnarmedMax
	}
	if p.TimeoutUs == 0 {
		p.TimeoutUs = def.Silence
	}
	if p.CheckInterval <= 0 {
		p.CheckInterval = DefaultCheckInterval
	}
	if p.ArmedMaxUs >= p.UnarmedMaxUs {
		return errThresholdOrder
	}
	if strings.TrimSpace(p.Contact) == "" {
		return errPulseContact
	}
	return nil
}

func validateSerial(s *Serial) error {
	if s.Enabled == nil {
		on := true
		s.Enabled = &on
	}
	if !*s.Enabled {
		return nil
	}

	if s.Port == "" {
		s.Port = serialport.DefaultPath
	}
	link, err := s.Link.Normalize()
	if err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	s.Link = link

	if s.Mode == "" {
		s.Mode = ModeNodes
	}
	switch s.Mode {
	case ModeNodes:
		if s.Nodes == nil {
			s.Nodes = []Node{{Contact: "3", Node: "29FF"}, {Contact: "4", Node: "14A0"}}
		}
		if len(s.Nodes) == 0 {
			return errSerialNodes
		}
		for i, n := range s.Nodes {
			if n.Contact == "" || n.Node == "" {
				return fmt.Errorf("serial.nodes[%d]: contact and node are required", i)
			}
		}
	case ModeFixed:
		if s.Contact == "" {
			return errSerialContact
		}
	case ModeLog:
	default:
		return fmt.Errorf("unknown serial.mode %q: expected %s, %s or %s", s.Mode, ModeNodes, ModeFixed, ModeLog)
	}
	return nil
}

// Table builds the contact table from the configured rows.
func (c *Config) Table() (*alarm.Table, error) {
	rows := make([]alarm.Contact, 0, len(c.Contacts))
	for _, r := range c.Contacts {
		rows = append(rows, alarm.Contact{
			ID:       logic.ContactID(r.ID),
			Site:     r.Site,
			Location: r.Location,
			Floor:    r.Floor,
			Zone:     r.Zone,
			Table:    r.Table,
			Unit:     r.Unit,
			DeviceID: r.CameraID,
		})
	}
	table, err := alarm.NewTable(rows)
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}
	return table, nil
}

// LineContacts returns the polled contacts in configuration order.
func (in Inputs) LineContacts() []logic.ContactID {
	ids := make([]logic.ContactID, len(in.Lines))
	for i, l := range in.Lines {
		ids[i] = logic.ContactID(l.Contact)
	}
	return ids
}

// Pins returns the polled BCM pins in configuration order.
func (in Inputs) Pins() []int {
	pins := make([]int, len(in.Lines))
	for i, l := range in.Lines {
		pins[i] = l.Pin
	}
	return pins
}

// On reports whether the pulse monitor is enabled.
func (p Pulse) On() bool {
	return p.Enabled != nil && *p.Enabled
}

// Thresholds returns the classification thresholds.
func (p Pulse) Thresholds() logic.PulseThresholds {
	return logic.PulseThresholds{
		ArmedMax:   p.ArmedMaxUs,
		UnarmedMax: p.UnarmedMaxUs,
		Silence:    p.TimeoutUs,
	}
}

// On reports whether the serial monitor is enabled.
func (s Serial) On() bool {
	return s.Enabled != nil && *s.Enabled
}

// Resolver builds the frame resolver for the configured mode.
func (s Serial) Resolver() logic.Resolver {
	switch s.Mode {
	case ModeFixed:
		return logic.FixedResolver{Contact: logic.ContactID(s.Contact)}
	case ModeLog:
		return logic.LogResolver{}
	default:
		nodes := make(logic.NodeTable, 0, len(s.Nodes))
		for _, n := range s.Nodes {
			nodes = append(nodes, logic.NodeMapping{Contact: logic.ContactID(n.Contact), Node: n.Node})
		}
		return logic.NodeResolver{Nodes: nodes}
	}
}
