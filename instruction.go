package socket

// InstructionBegin marks the beginning of one protocol instruction. If
// threadsafety is enabled, other instructions are blocked from sending
// until the matching InstructionEnd, guaranteeing the span is
// contiguous on the wire. Without threadsafety both calls are no-ops.
//
// Threadsafety must not change between a Begin and its End.
func (s *Socket) InstructionBegin() {
	if s.threadsafe.Load() {
		s.instructionMu.Lock()
	}
}

// InstructionEnd marks the end of the instruction started by
// InstructionBegin.
func (s *Socket) InstructionEnd() {
	if s.threadsafe.Load() {
		s.instructionMu.Unlock()
	}
}

// writeSeparatorLocked stages a single separator byte, flushing first
// if the buffer is full.
func (s *Socket) writeSeparatorLocked(sep byte) error {
	return s.writeBufferedLocked([]byte{sep})
}

// WriteInstruction composes and sends one complete instruction: the
// opcode and each argument as length-prefixed tokens joined by ',',
// terminated by ';', flushed to the transport. The whole sequence runs
// inside InstructionBegin/End, so on a threadsafe socket it can never
// interleave with another writer's instruction.
//
// Arguments containing reserved separator characters must be escaped by
// the caller.
func (s *Socket) WriteInstruction(opcode string, args ...string) error {
	if err := s.writable(); err != nil {
		return err
	}

	s.InstructionBegin()
	defer s.InstructionEnd()

	if err := s.WriteString(opcode); err != nil {
		return err
	}

	for _, arg := range args {
		if err := s.writeSeparator(argSeparator); err != nil {
			return err
		}
		if err := s.WriteString(arg); err != nil {
			return err
		}
	}

	if err := s.writeSeparator(instructionTerminator); err != nil {
		return err
	}
	return s.Flush()
}

// writeSeparator is the unlocked entry point for staging a separator.
func (s *Socket) writeSeparator(sep byte) error {
	if err := s.writable(); err != nil {
		return err
	}

	s.updateBufferBegin()
	defer s.updateBufferEnd()
	return s.writeSeparatorLocked(sep)
}
