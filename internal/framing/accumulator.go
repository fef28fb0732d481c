package framing

// DefaultCeiling is the pending-byte limit above which the buffer is discarded
const DefaultCeiling = 128

// Accumulator owns the bytes received but not yet framed. It is not safe for
// concurrent use; a session's decode loop is its only mutator.
type Accumulator struct {
	buf     []byte
	ceiling int

	overflowResets uint64
	bytesDiscarded uint64
}

// NewAccumulator creates a buffer with the given ceiling; non-positive values use DefaultCeiling
func NewAccumulator(ceiling int) *Accumulator {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Accumulator{
		buf:     make([]byte, 0, ceiling*2),
		ceiling: ceiling,
	}
}

// Append adds a chunk to the end of the buffer. If the buffer already holds more
// than the ceiling it is emptied first rather than trimmed, so the next marker
// search starts on fresh data. It reports whether that reset happened.
func (a *Accumulator) Append(chunk []byte) bool {
	reset := false
	if len(a.buf) > a.ceiling {
		a.overflowResets++
		a.bytesDiscarded += uint64(len(a.buf))
		a.buf = a.buf[:0]
		reset = true
	}
	a.buf = append(a.buf, chunk...)
	return reset
}

// Consume removes the first n bytes, shifting the remainder to the front
func (a *Accumulator) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(a.buf) {
		a.buf = a.buf[:0]
		return
	}
	copy(a.buf, a.buf[n:])
	a.buf = a.buf[:len(a.buf)-n]
}

// Reset discards all pending bytes
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
}

// Bytes returns the pending bytes. The slice is only valid until the next mutation.
func (a *Accumulator) Bytes() []byte {
	return a.buf
}

// Len returns the number of pending bytes
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Ceiling returns the configured size limit
func (a *Accumulator) Ceiling() int {
	return a.ceiling
}

// OverflowResets returns how many times Append discarded the buffer
func (a *Accumulator) OverflowResets() uint64 {
	return a.overflowResets
}

// BytesDiscarded returns the total bytes thrown away by overflow resets
func (a *Accumulator) BytesDiscarded() uint64 {
	return a.bytesDiscarded
}
