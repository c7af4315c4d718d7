// Package socket implements the transport layer of a remote-desktop
// protocol stack: it turns an arbitrary byte sink/source into a framed,
// buffered, optionally thread-safe channel for exchanging
// length-prefixed protocol instructions, including inline
// base64-encoded binary payloads.
//
// A Socket buffers small protocol tokens into few transport-level
// writes, can re-frame its traffic as "nest" instructions over a parent
// Socket, and can keep an idle connection alive with periodic no-op
// instructions. Instruction semantics (opcode meaning), display state
// and encryption are layered above or below this package.
package socket

import (
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Errors returned by socket operations.
var (
	// ErrClosed is returned when operating on a closed socket.
	ErrClosed = errors.New("socket closed")
	// ErrUnsupported is returned when an operation is not supported
	// by the socket's transport, such as reading from a nested socket.
	ErrUnsupported = errors.New("operation not supported by transport")
	// ErrInputOverflow is returned when the input buffer is full and
	// no bytes have been consumed by the parser.
	ErrInputOverflow = errors.New("input buffer full")
)

// Socket is a framed, buffered channel over a Transport. All write
// methods stage bytes in a fixed-capacity output buffer that is flushed
// to the transport on overflow or by an explicit Flush.
//
// A Socket is not safe for concurrent writers by default; call
// RequireThreadsafe before sharing it across goroutines.
type Socket struct {
	transport Transport
	logger    Logger
	id        string
	opts      options

	closed atomic.Bool

	// threadsafe arms the instruction and buffer locks. It must be
	// enabled before the socket is shared across goroutines; enabling
	// it while an instruction is in progress is a caller contract
	// violation.
	threadsafe    atomic.Bool
	instructionMu sync.Mutex
	bufferMu      sync.Mutex

	// out is the main write buffer; its capacity is fixed at
	// construction and its length never exceeds it.
	out []byte

	// ready stages base64 input three bytes at a time. readyLen is
	// 0..2 between WriteBase64 calls, never 3.
	ready    [3]byte
	readyLen int

	// in is the input buffer; bytes between inStart and inEnd are
	// unparsed. 0 <= inStart <= inEnd <= len(in) always holds.
	in      []byte
	inStart int
	inEnd   int

	lastWrite atomic.Int64 // unix nanoseconds of the last wire write

	mu        sync.Mutex
	fatal     error
	keepAlive *keepAliveAgent

	dump *dumpSink
}

// Open wraps a ready transport in a new Socket. Buffers start empty,
// the socket is open, and threadsafety and keep-alive are disabled.
// Resource errors (an unopenable dump file, invalid options) surface
// here.
func Open(transport Transport, opt ...Option) (*Socket, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	s := &Socket{
		transport: transport,
		logger:    opts.logger,
		id:        uuid.NewString(),
		opts:      opts,
		out:       make([]byte, 0, opts.outputBufferSize),
		in:        make([]byte, opts.inputBufferSize),
	}

	if opts.dumpPath != "" {
		dump, err := newDumpSink(opts.dumpPath, opts.logger, s.id)
		if err != nil {
			return nil, errors.Wrap(err, "open dump sink")
		}
		s.dump = dump
	}

	s.logger.Debug("socket opened", "socket_id", s.id,
		"output_buffer", opts.outputBufferSize,
		"input_buffer", opts.inputBufferSize,
		"dump", opts.dumpPath != "")

	return s, nil
}

// ID returns the socket's identity used in log and dump annotations.
func (s *Socket) ID() string {
	return s.id
}

// IsClosed returns true once the socket has been closed.
func (s *Socket) IsClosed() bool {
	return s.closed.Load()
}

// Err returns the socket's last fatal transport status, if any. Once
// set, write and flush operations fail fast without touching the
// transport.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// LastWrite returns the time the last block of data was written to the
// transport, or the zero time if nothing has been transmitted.
func (s *Socket) LastWrite() time.Time {
	nanos := s.lastWrite.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// RequireThreadsafe arms the instruction and buffer locks so that
// concurrent writers cannot corrupt the buffers or interleave
// mid-instruction. Must be called before the socket is shared across
// goroutines.
func (s *Socket) RequireThreadsafe() {
	s.threadsafe.Store(true)
}

func (s *Socket) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

// writable reports whether the socket can accept writes, failing fast
// on a closed or already-failed socket.
func (s *Socket) writable() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.Err()
}

// updateBufferBegin acquires exclusive access to the output and base64
// buffers when threadsafety is enabled; otherwise it is a no-op.
func (s *Socket) updateBufferBegin() {
	if s.threadsafe.Load() {
		s.bufferMu.Lock()
	}
}

// updateBufferEnd releases the access acquired by updateBufferBegin.
func (s *Socket) updateBufferEnd() {
	if s.threadsafe.Load() {
		s.bufferMu.Unlock()
	}
}

// transmit hands p to the transport, mirrors transmitted bytes to the
// dump sink, and records the last-write timestamp. A transport failure
// marks the socket fatal. Callers hold the buffer lock where required.
func (s *Socket) transmit(p []byte) error {
	written := 0
	for written < len(p) {
		n, err := s.transport.Write(p[written:])
		written += n
		if err != nil {
			s.dump.mirror(p[:written])
			err = errors.Wrap(err, "transport write")
			s.setFatal(err)
			return err
		}
	}

	s.dump.mirror(p)
	s.lastWrite.Store(time.Now().UnixNano())
	return nil
}

// flushLocked drains the output buffer through the transport. The
// buffer lock must be held when threadsafety is enabled.
func (s *Socket) flushLocked() error {
	if len(s.out) == 0 {
		return nil
	}

	err := s.transmit(s.out)
	s.out = s.out[:0]
	return err
}

// writeBufferedLocked stages p in the output buffer, flushing first
// when insufficient space remains. Writes at least as large as the
// whole buffer go straight to the transport after the flush.
func (s *Socket) writeBufferedLocked(p []byte) error {
	if len(p) > cap(s.out)-len(s.out) {
		if err := s.flushLocked(); err != nil {
			return err
		}
	}

	if len(p) >= cap(s.out) {
		return s.transmit(p)
	}

	s.out = append(s.out, p...)
	return nil
}

// WriteBytes transmits p immediately, bypassing the output buffer. Any
// buffered bytes are flushed first so the wire preserves call order.
func (s *Socket) WriteBytes(p []byte) error {
	if err := s.writable(); err != nil {
		return err
	}

	s.updateBufferBegin()
	defer s.updateBufferEnd()

	if err := s.flushLocked(); err != nil {
		return err
	}
	return s.transmit(p)
}

// WriteInt writes v as a length-prefixed decimal token into the output
// buffer, flushing first if insufficient space remains.
func (s *Socket) WriteInt(v int64) error {
	if err := s.writable(); err != nil {
		return err
	}

	var buf [24]byte
	token := appendIntToken(buf[:0], v)

	s.updateBufferBegin()
	defer s.updateBufferEnd()
	return s.writeBufferedLocked(token)
}

// WriteString writes str as a length-prefixed token into the output
// buffer. Strings containing the protocol's reserved separators must be
// escaped by the caller; they are not validated here.
func (s *Socket) WriteString(str string) error {
	if err := s.writable(); err != nil {
		return err
	}

	s.updateBufferBegin()
	defer s.updateBufferEnd()

	// The length header is written separately so large payloads are
	// chunked through the buffer without an intermediate copy of the
	// whole token.
	var hdr [24]byte
	h := strconv.AppendInt(hdr[:0], int64(len(str)), 10)
	h = append(h, '.')
	if err := s.writeBufferedLocked(h); err != nil {
		return err
	}
	return s.writeBufferedLocked([]byte(str))
}

// WriteBase64 feeds p into the base64 staging buffer, emitting each
// complete 4-character group into the output buffer. One or two
// leftover bytes are carried across calls; FlushBase64 must be called
// before any non-base64 write shares the stream.
func (s *Socket) WriteBase64(p []byte) error {
	if err := s.writable(); err != nil {
		return err
	}

	s.updateBufferBegin()
	defer s.updateBufferEnd()

	for _, b := range p {
		s.ready[s.readyLen] = b
		s.readyLen++

		if s.readyLen == 3 {
			if err := s.emitBase64GroupLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushBase64 emits any pending base64 bytes as a final padded group.
// One leftover byte produces two padding characters, two leftover bytes
// produce one.
func (s *Socket) FlushBase64() error {
	if err := s.writable(); err != nil {
		return err
	}

	s.updateBufferBegin()
	defer s.updateBufferEnd()
	return s.emitBase64GroupLocked()
}

// emitBase64GroupLocked encodes and stages the current staging buffer
// contents, if any. The buffer lock must be held when threadsafety is
// enabled.
func (s *Socket) emitBase64GroupLocked() error {
	if s.readyLen == 0 {
		return nil
	}

	var group [4]byte
	encodeBase64Group(&group, s.ready, s.readyLen)
	s.readyLen = 0
	return s.writeBufferedLocked(group[:])
}

// Flush drains the output buffer to the transport and updates the
// last-write timestamp.
func (s *Socket) Flush() error {
	if err := s.writable(); err != nil {
		return err
	}

	s.updateBufferBegin()
	defer s.updateBufferEnd()
	return s.flushLocked()
}

// Read reads up to len(p) bytes directly from the transport. It blocks
// until data is available and returns io.EOF at end of stream. The
// input buffer (FillInput and friends) is unaffected.
func (s *Socket) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	n, err := s.transport.Read(p)
	if err != nil && err != io.EOF {
		err = errors.Wrap(err, "transport read")
	}
	return n, err
}

// Poll waits for the transport to become readable. It returns
// (false, nil) if the timeout elapses first; the timeout is a status,
// not an error. A negative timeout waits indefinitely.
func (s *Socket) Poll(timeout time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	return s.transport.Poll(timeout)
}

// Close tears the socket down: pending base64 bytes are flushed with
// padding, the output buffer is drained, the keep-alive agent is
// stopped and joined before the buffers are released, the dump sink is
// closed and the transport is closed. Close is idempotent; all other
// operations fail with ErrClosed afterwards.
func (s *Socket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	agent := s.keepAlive
	s.mu.Unlock()
	if agent != nil {
		agent.stop()
	}

	s.updateBufferBegin()
	err := s.emitBase64GroupLocked()
	if flushErr := s.flushLocked(); err == nil {
		err = flushErr
	}
	s.updateBufferEnd()

	s.dump.close()

	if closeErr := s.transport.Close(); err == nil {
		err = closeErr
	}

	s.logger.Debug("socket closed", "socket_id", s.id, "error", err)
	return err
}
