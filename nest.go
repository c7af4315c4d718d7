package socket

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// nestOpcode is the wire-level envelope carrying another socket's
// traffic over a parent socket, addressed by stream index.
const nestOpcode = "nest"

// nestTransport redirects a nested socket's transmission step to its
// parent: every block reaching the point where a root socket would
// perform a raw write is instead re-framed as a nest instruction and
// written through the parent's own buffered path. The reference to the
// parent is non-owning; Close never touches it.
type nestTransport struct {
	parent *Socket
	index  int64
}

// Nest creates a socket that writes all of its output as nest
// instructions addressed to the given stream index on the parent. The
// nested socket owns its own buffers; only final transmission is
// redirected, so nesting composes: the parent may itself be nested.
//
// The parent must outlive the nested socket. Closing the nested socket
// flushes its own buffers, producing a final nest-wrapped write to the
// parent, but never closes or flushes the parent beyond that forwarded
// instruction.
func Nest(parent *Socket, index int, opt ...Option) (*Socket, error) {
	if parent == nil {
		return nil, errors.New("nest requires a parent socket")
	}

	s, err := Open(&nestTransport{parent: parent, index: int64(index)}, opt...)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("nested socket opened", "socket_id", s.id,
		"parent_id", parent.id, "index", index)
	return s, nil
}

func (t *nestTransport) Write(p []byte) (int, error) {
	err := t.parent.WriteInstruction(nestOpcode,
		strconv.FormatInt(t.index, 10), string(p))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *nestTransport) Read(p []byte) (int, error) {
	return 0, ErrUnsupported
}

func (t *nestTransport) Poll(timeout time.Duration) (bool, error) {
	return false, ErrUnsupported
}

func (t *nestTransport) Close() error {
	// Non-owning: the parent stays open.
	return nil
}
