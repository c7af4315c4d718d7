package socket

import (
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidBufferSize is returned when a configured buffer capacity is
// too small to hold a single wire unit.
var ErrInvalidBufferSize = errors.New("invalid buffer size")

// Default configuration values. The buffer capacities match the
// protocol's reference transport layer.
const (
	// defaultOutputBufferSize is the capacity of the output buffer.
	defaultOutputBufferSize = 8192
	// defaultInputBufferSize is the capacity of the input buffer; a
	// single instruction larger than this cannot be received.
	defaultInputBufferSize = 32768
	// defaultKeepAliveInterval is how often the keep-alive agent
	// writes its no-op instruction.
	defaultKeepAliveInterval = 5 * time.Second
	// minOutputBufferSize is one full base64 group.
	minOutputBufferSize = 4
)

// options holds the configuration for a socket.
type options struct {
	logger Logger

	// dumpPath, when non-empty, enables a wire-exact dump of all
	// transmitted bytes to this file.
	dumpPath string

	keepAliveInterval time.Duration
	outputBufferSize  int
	inputBufferSize   int
}

// Option is a function that configures socket options.
type Option func(*options)

// checkOptions validates and sets default values for socket options.
func checkOptions(opts *options) error {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.keepAliveInterval <= 0 {
		opts.keepAliveInterval = defaultKeepAliveInterval
	}

	if opts.outputBufferSize == 0 {
		opts.outputBufferSize = defaultOutputBufferSize
	}
	if opts.outputBufferSize < minOutputBufferSize {
		return errors.Wrap(ErrInvalidBufferSize, "output buffer")
	}

	if opts.inputBufferSize == 0 {
		opts.inputBufferSize = defaultInputBufferSize
	}
	if opts.inputBufferSize < 1 {
		return errors.Wrap(ErrInvalidBufferSize, "input buffer")
	}

	return nil
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// DumpOption returns an Option that mirrors every transmitted wire byte
// to the file at path. The file is created at socket open and closed at
// socket close; write failures are logged and never fail primary I/O.
func DumpOption(path string) Option {
	return func(o *options) {
		o.dumpPath = path
	}
}

// KeepAliveIntervalOption returns an Option that sets the interval
// between keep-alive no-op instructions. The agent itself is started by
// RequireKeepAlive.
func KeepAliveIntervalOption(interval time.Duration) Option {
	return func(o *options) {
		o.keepAliveInterval = interval
	}
}

// OutputBufferSizeOption returns an Option that sets the output buffer
// capacity. Writes exceeding the remaining capacity trigger an implicit
// flush; the buffer never grows past this size.
func OutputBufferSizeOption(size int) Option {
	return func(o *options) {
		o.outputBufferSize = size
	}
}

// InputBufferSizeOption returns an Option that sets the input buffer
// capacity, bounding the largest instruction that can be accumulated
// before parsing.
func InputBufferSizeOption(size int) Option {
	return func(o *options) {
		o.inputBufferSize = size
	}
}
