// Package serialport opens the alarm node serial line with a bounded read
// timeout so the reader can periodically observe shutdown.
package serialport

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Defaults of the alarm node link.
const (
	DefaultPath        = "/dev/ttyUSB0"
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
)

// Port is the minimal surface the serial monitor needs. A Read that hits the
// timeout returns 0 bytes and a nil error.
type Port interface {
	io.ReadCloser
}

// Options describes the serial connection parameters.
type Options struct {
	BaudRate    int           `yaml:"baud_rate"`
	DataBits    int           `yaml:"data_bits"`
	StopBits    int           `yaml:"stop_bits"`
	Parity      string        `yaml:"parity"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o Options) Normalize() (Options, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	return opts, nil
}

// Mode converts the options into the structure go.bug.st/serial expects.
func (o Options) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}

// String renders the options as e.g. "115200 8-N-1".
func (o Options) String() string {
	n, err := o.Normalize()
	if err != nil {
		return "invalid"
	}
	return fmt.Sprintf("%d %d-%s-%d", n.BaudRate, n.DataBits, n.Parity, n.StopBits)
}

// Open opens path and applies the read timeout.
func Open(path string, opts Options) (Port, error) {
	n, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := n.Mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := port.SetReadTimeout(n.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}

	return port, nil
}
