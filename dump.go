package socket

import (
	"os"
)

// dumpSink mirrors every byte actually transmitted by a socket's write
// handler to a flat side file for diagnostics: wire-exact bytes, no
// header, no extra framing. Sink failures never fail primary I/O; the
// first failure is logged and the sink disables itself.
type dumpSink struct {
	file     *os.File
	logger   Logger
	socketID string
	failed   bool
}

// newDumpSink creates (truncating) the dump file. An unopenable path is
// a construction-time resource error surfaced by Open.
func newDumpSink(path string, logger Logger, socketID string) (*dumpSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &dumpSink{file: file, logger: logger, socketID: socketID}, nil
}

// mirror appends p to the dump file. Safe on a nil sink. Callers
// already serialize transmission, so no locking is needed here.
func (d *dumpSink) mirror(p []byte) {
	if d == nil || d.failed || len(p) == 0 {
		return
	}

	if _, err := d.file.Write(p); err != nil {
		d.failed = true
		d.logger.Warn("dump sink write failed, disabling sink",
			"socket_id", d.socketID, "error", err)
	}
}

// close closes the dump file. Safe on a nil sink.
func (d *dumpSink) close() {
	if d == nil {
		return
	}

	if err := d.file.Close(); err != nil {
		d.logger.Warn("dump sink close failed",
			"socket_id", d.socketID, "error", err)
	}
}
