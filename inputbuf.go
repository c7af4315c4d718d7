package socket

// The input buffer accumulates raw bytes until a complete instruction
// can be recognized by a collaborator parser. Parsing itself is outside
// this package; only the buffering contract lives here. The buffer is
// single-reader: no locking is applied, one consumer drains the stream.

// FillInput reads from the transport into the free tail of the input
// buffer, compacting parsed-away bytes first when the tail is
// exhausted. It returns the number of bytes read; io.EOF passes through
// at end of stream. When the buffer is full and nothing has been
// consumed, FillInput returns ErrInputOverflow: the pending instruction
// is larger than the buffer.
func (s *Socket) FillInput() (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	if s.inEnd == len(s.in) && s.inStart > 0 {
		n := copy(s.in, s.in[s.inStart:s.inEnd])
		s.inStart, s.inEnd = 0, n
	}
	if s.inEnd == len(s.in) {
		return 0, ErrInputOverflow
	}

	n, err := s.transport.Read(s.in[s.inEnd:])
	s.inEnd += n
	return n, err
}

// Input returns the unparsed window of the input buffer. The slice is
// valid until the next FillInput or ConsumeInput call.
func (s *Socket) Input() []byte {
	return s.in[s.inStart:s.inEnd]
}

// ConsumeInput marks the first n unparsed bytes as parsed. Consuming
// beyond the unparsed window is a caller contract violation and panics.
func (s *Socket) ConsumeInput(n int) {
	if n < 0 || n > s.inEnd-s.inStart {
		panic("socket: consume beyond unparsed input")
	}

	s.inStart += n
	if s.inStart == s.inEnd {
		s.inStart, s.inEnd = 0, 0
	}
}
