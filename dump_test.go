package socket

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDump_MirrorsWireBytes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "socket.dump")
	transport := &testTransport{}
	s, err := Open(transport, DumpOption(path))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.WriteInstruction("size", "1024", "768"); err != nil {
		t.Fatalf("WriteInstruction: %v", err)
	}
	if err := s.WriteBytes([]byte("raw")); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dumped, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}
	if string(dumped) != transport.wire() {
		t.Errorf("dump = %q, wire = %q", dumped, transport.wire())
	}
}

func TestDump_NestedSocketMirrorsItsOwnPayload(t *testing.T) {
	t.Parallel()

	parentPath := filepath.Join(t.TempDir(), "parent.dump")
	nestedPath := filepath.Join(t.TempDir(), "nested.dump")

	transport := &testTransport{}
	parent, err := Open(transport, DumpOption(parentPath))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer parent.Close()

	nested, err := Nest(parent, 5, DumpOption(nestedPath))
	if err != nil {
		t.Fatalf("Nest: %v", err)
	}

	if err := nested.WriteBytes([]byte("hello")); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if err := nested.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The nested dump holds what its handler transmitted: the payload
	// before wrapping. The parent dump holds the wrapped instruction.
	nestedDump, err := os.ReadFile(nestedPath)
	if err != nil {
		t.Fatalf("reading nested dump: %v", err)
	}
	if string(nestedDump) != "hello" {
		t.Errorf("nested dump = %q, want %q", nestedDump, "hello")
	}

	parentDump, err := os.ReadFile(parentPath)
	if err != nil {
		t.Fatalf("reading parent dump: %v", err)
	}
	if string(parentDump) != "4.nest,1.5,5.hello;" {
		t.Errorf("parent dump = %q, want %q", parentDump, "4.nest,1.5,5.hello;")
	}
}

func TestDump_FailureDoesNotFailPrimaryIO(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "socket.dump")
	logger := &mockLogger{}
	transport := &testTransport{}
	s, err := Open(transport, DumpOption(path), LoggerOption(logger))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// Force the sink to fail by closing its file out from under it.
	s.dump.file.Close()

	if err := s.WriteBytes([]byte("still fine")); err != nil {
		t.Fatalf("WriteBytes failed after dump sink broke: %v", err)
	}
	if transport.wire() != "still fine" {
		t.Errorf("wire = %q", transport.wire())
	}

	if !logger.warnCalled {
		t.Error("dump sink failure was not logged")
	}
	if !s.dump.failed {
		t.Error("dump sink did not disable itself")
	}
}

func TestDump_UnopenablePathFailsOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "nested", "socket.dump")
	if _, err := Open(&testTransport{}, DumpOption(path)); err == nil {
		t.Error("Open succeeded with an unopenable dump path")
	}
}
