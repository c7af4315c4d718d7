package socket

import (
	"errors"
	"testing"
	"time"
)

func TestCheckOptions_Defaults(t *testing.T) {
	var opts options
	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions: %v", err)
	}

	if opts.logger == nil {
		t.Error("logger not defaulted")
	}
	if opts.keepAliveInterval != defaultKeepAliveInterval {
		t.Errorf("keepAliveInterval = %v, want %v", opts.keepAliveInterval, defaultKeepAliveInterval)
	}
	if opts.outputBufferSize != defaultOutputBufferSize {
		t.Errorf("outputBufferSize = %d, want %d", opts.outputBufferSize, defaultOutputBufferSize)
	}
	if opts.inputBufferSize != defaultInputBufferSize {
		t.Errorf("inputBufferSize = %d, want %d", opts.inputBufferSize, defaultInputBufferSize)
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestDumpOption(t *testing.T) {
	opt := DumpOption("/tmp/socket.dump")

	var opts options
	opt(&opts)

	if opts.dumpPath != "/tmp/socket.dump" {
		t.Errorf("dumpPath = %q", opts.dumpPath)
	}
}

func TestKeepAliveIntervalOption(t *testing.T) {
	interval := 30 * time.Second
	opt := KeepAliveIntervalOption(interval)

	var opts options
	opt(&opts)

	if opts.keepAliveInterval != interval {
		t.Errorf("keepAliveInterval = %v, want %v", opts.keepAliveInterval, interval)
	}
}

func TestOutputBufferSizeOption(t *testing.T) {
	opt := OutputBufferSizeOption(4096)

	var opts options
	opt(&opts)

	if opts.outputBufferSize != 4096 {
		t.Errorf("outputBufferSize = %d, want 4096", opts.outputBufferSize)
	}
}

func TestInputBufferSizeOption(t *testing.T) {
	opt := InputBufferSizeOption(1024)

	var opts options
	opt(&opts)

	if opts.inputBufferSize != 1024 {
		t.Errorf("inputBufferSize = %d, want 1024", opts.inputBufferSize)
	}
}

func TestCheckOptions_RejectsTinyBuffers(t *testing.T) {
	// An output buffer smaller than one base64 group cannot make
	// progress.
	opts := options{outputBufferSize: 2}
	if err := checkOptions(&opts); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("tiny output buffer: %v, want ErrInvalidBufferSize", err)
	}

	opts = options{inputBufferSize: -1}
	if err := checkOptions(&opts); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("negative input buffer: %v, want ErrInvalidBufferSize", err)
	}
}

func TestOpen_InvalidOptions(t *testing.T) {
	if _, err := Open(&testTransport{}, OutputBufferSizeOption(1)); err == nil {
		t.Error("Open succeeded with an invalid output buffer size")
	}
}
