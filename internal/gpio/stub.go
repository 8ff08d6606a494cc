//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/alarm-gateway/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(string, []int) (*RealReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read() ([]bool, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}

// RealEdgeWatcher is not available on non-Linux platforms.
type RealEdgeWatcher struct{}

// NewRealEdgeWatcher returns an error on non-Linux platforms.
func NewRealEdgeWatcher(string, int, EdgeHandler) (*RealEdgeWatcher, error) {
	return nil, errUnsupported
}

// Now is not implemented on non-Linux platforms.
func (w *RealEdgeWatcher) Now() logic.Tick {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (w *RealEdgeWatcher) Close() error {
	return nil
}
