package protocol

// FifoBuffer is a fixed-capacity byte ring used for the console transmit
// queue and for reassembling records on the host. Writes beyond capacity
// are truncated, never blocked.
type FifoBuffer struct {
	buf   []byte
	head  int
	count int
}

// NewFifoBuffer creates a FifoBuffer holding up to capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count stored
func (f *FifoBuffer) Write(data []byte) int {
	n := len(data)
	if free := f.Free(); n > free {
		n = free
	}
	if n == 0 {
		return 0
	}
	tail := (f.head + f.count) % len(f.buf)
	first := copy(f.buf[tail:], data[:n])
	copy(f.buf, data[first:n])
	f.count += n
	return n
}

// Read moves up to len(data) bytes out of the buffer
func (f *FifoBuffer) Read(data []byte) int {
	n := f.peek(data)
	f.Pop(n)
	return n
}

func (f *FifoBuffer) peek(data []byte) int {
	n := len(data)
	if n > f.count {
		n = f.count
	}
	first := copy(data[:n], f.buf[f.head:])
	copy(data[first:n], f.buf)
	return n
}

// Available returns the number of bytes queued
func (f *FifoBuffer) Available() int {
	return f.count
}

// Free returns the remaining capacity
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.count
}

// Data returns the queued bytes without consuming them. The slice aliases
// the buffer unless the contents wrap.
func (f *FifoBuffer) Data() []byte {
	if f.head+f.count <= len(f.buf) {
		return f.buf[f.head : f.head+f.count]
	}
	out := make([]byte, f.count)
	f.peek(out)
	return out
}

// Pop discards n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	if n > f.count {
		n = f.count
	}
	if len(f.buf) > 0 {
		f.head = (f.head + n) % len(f.buf)
	}
	f.count -= n
}

// IsEmpty reports whether nothing is queued
func (f *FifoBuffer) IsEmpty() bool {
	return f.count == 0
}

// Reset discards everything
func (f *FifoBuffer) Reset() {
	f.head = 0
	f.count = 0
}
