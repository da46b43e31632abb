package xmpp

import "bytes"

// Scanner accumulates inbound bytes and detects stage markers that may
// straddle chunk boundaries.
type Scanner struct {
	buf []byte
}

func NewScanner() *Scanner {
	return &Scanner{}
}

// Feed appends one inbound chunk.
func (s *Scanner) Feed(chunk []byte) {
	s.buf = append(s.buf, chunk...)
}

// Pending returns the number of buffered, unconsumed bytes.
func (s *Scanner) Pending() int {
	return len(s.buf)
}

// Consume reports whether the buffered input satisfies marker and, if
// so, discards it. An empty marker is satisfied by any buffered byte.
// When the marker is absent only its longest possible prefix is kept.
func (s *Scanner) Consume(marker string) bool {
	if marker == "" {
		if len(s.buf) == 0 {
			return false
		}
		s.Reset()
		return true
	}
	if bytes.Contains(s.buf, []byte(marker)) {
		s.Reset()
		return true
	}
	if keep := len(marker) - 1; len(s.buf) > keep {
		tail := s.buf[len(s.buf)-keep:]
		s.buf = append(s.buf[:0], tail...)
	}
	return false
}

func (s *Scanner) Reset() {
	s.buf = s.buf[:0]
}
