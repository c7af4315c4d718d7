package socket

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// Transport is the pluggable byte-level backend of a Socket. A Socket
// delegates raw transmission, reception and readability waits to its
// Transport; everything above that boundary (framing, buffering,
// locking, keep-alive) is the Socket's own.
//
// Implementations in this package: NewConnTransport wraps an open
// net.Conn, NewPipe builds an in-memory connected pair, and nested
// sockets install their own forwarding transport internally.
type Transport interface {
	io.ReadWriteCloser

	// Poll waits until the transport is readable or the timeout
	// elapses. A timeout is a status, not an error: Poll returns
	// (false, nil). A negative timeout waits indefinitely. End of
	// stream counts as readable so the caller's next Read observes
	// it.
	Poll(timeout time.Duration) (bool, error)
}

// connTransport adapts an open net.Conn. The buffered reader exists so
// Poll can peek one byte under a read deadline without consuming it.
type connTransport struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewConnTransport wraps an already-open connection. The transport
// takes ownership: closing it closes the connection. Acquiring the
// connection in the first place (TCP accept, TLS handshake, process
// pipes) is the caller's business.
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (t *connTransport) Read(p []byte) (int, error) {
	return t.reader.Read(p)
}

func (t *connTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

func (t *connTransport) Poll(timeout time.Duration) (bool, error) {
	if timeout >= 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return false, err
		}
		defer t.conn.SetReadDeadline(time.Time{})
	}

	_, err := t.reader.Peek(1)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, io.EOF) {
		// Readable in the poll(2) sense: the next Read returns EOF
		// immediately.
		return true, nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false, nil
	}
	return false, err
}

// pipeBufferDepth is the number of in-flight write blocks each
// direction of a pipe can hold before Write blocks.
const pipeBufferDepth = 64

// pipeTransport is one end of an in-memory connected pair. Writes are
// delivered as blocks over a buffered channel; Read may split blocks,
// preserving byte-stream semantics.
type pipeTransport struct {
	send chan<- []byte
	recv <-chan []byte

	done     chan struct{} // closed when this end closes
	peerDone chan struct{} // closed when the peer closes

	closeOnce sync.Once
	pending   []byte // unread remainder of the last received block
}

// NewPipe creates a connected in-memory transport pair. Bytes written
// on one end are readable on the other. Both ends support Poll with
// timeouts, making the pair suitable as a test double or for layering
// a Socket over an in-process channel.
func NewPipe() (Transport, Transport) {
	ab := make(chan []byte, pipeBufferDepth)
	ba := make(chan []byte, pipeBufferDepth)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &pipeTransport{send: ab, recv: ba, done: aDone, peerDone: bDone}
	b := &pipeTransport{send: ba, recv: ab, done: bDone, peerDone: aDone}
	return a, b
}

func (t *pipeTransport) Write(p []byte) (int, error) {
	select {
	case <-t.done:
		return 0, io.ErrClosedPipe
	default:
	}

	block := make([]byte, len(p))
	copy(block, p)

	select {
	case t.send <- block:
		return len(p), nil
	case <-t.done:
		return 0, io.ErrClosedPipe
	case <-t.peerDone:
		return 0, io.ErrClosedPipe
	}
}

func (t *pipeTransport) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		block, err := t.nextBlock(nil)
		if err != nil {
			return 0, err
		}
		t.pending = block
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// nextBlock receives the next written block, honoring close of either
// end. A non-nil timer channel bounds the wait (Poll path); a nil
// channel blocks forever (Read path).
func (t *pipeTransport) nextBlock(timeout <-chan time.Time) ([]byte, error) {
	// Buffered blocks remain receivable after the peer closes; drain
	// them before reporting EOF.
	select {
	case block := <-t.recv:
		return block, nil
	default:
	}

	select {
	case block := <-t.recv:
		return block, nil
	case <-t.done:
		return nil, io.ErrClosedPipe
	case <-t.peerDone:
		select {
		case block := <-t.recv:
			return block, nil
		default:
			return nil, io.EOF
		}
	case <-timeout:
		return nil, errPollTimeout
	}
}

// errPollTimeout is internal to the pipe transport; Poll converts it to
// the (false, nil) status.
var errPollTimeout = errors.New("poll timeout")

func (t *pipeTransport) Poll(timeout time.Duration) (bool, error) {
	if len(t.pending) > 0 {
		return true, nil
	}

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	block, err := t.nextBlock(expired)
	switch {
	case err == nil:
		t.pending = block
		return true, nil
	case errors.Is(err, errPollTimeout):
		return false, nil
	case errors.Is(err, io.EOF):
		return true, nil
	default:
		return false, err
	}
}

func (t *pipeTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	return nil
}
