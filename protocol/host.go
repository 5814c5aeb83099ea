package protocol

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// HostLink exchanges binary records with a device over a byte stream.
// A background reader keeps the most recent status record and accumulates
// the reply bits seen since the caller last took them.
type HostLink struct {
	port io.ReadWriteCloser

	writeMutex sync.Mutex

	mu       sync.Mutex
	latest   Record
	haveData bool
	replies  uint32
	updated  chan struct{}

	inputBuffer *FifoBuffer

	stopChan chan struct{}
	doneChan chan struct{}
	readErr  error
}

// NewHostLink starts reading records from port
func NewHostLink(port io.ReadWriteCloser) *HostLink {
	h := &HostLink{
		port:        port,
		updated:     make(chan struct{}, 1),
		inputBuffer: NewFifoBuffer(4 * RecordSize),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	go h.readLoop()
	return h
}

// Send writes one host record
func (h *HostLink) Send(rec Record) error {
	h.writeMutex.Lock()
	defer h.writeMutex.Unlock()

	var buf [RecordSize]byte
	rec.Encode(buf[:])
	n, err := h.port.Write(buf[:])
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if n != RecordSize {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, RecordSize)
	}
	return nil
}

// Latest returns the most recent device record
func (h *HostLink) Latest() (Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.haveData
}

// TakeReplies returns the accumulated reply bits within mask and clears
// them. Bits outside mask stay pending.
func (h *HostLink) TakeReplies(mask uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.replies & mask
	h.replies &^= mask
	return r
}

// WaitReply blocks until a device record carrying any of mask arrives.
// A zero timeout waits forever.
func (h *HostLink) WaitReply(mask uint32, timeout time.Duration) (Record, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	for {
		h.mu.Lock()
		if h.replies&mask != 0 {
			h.replies &^= mask
			rec := h.latest
			h.mu.Unlock()
			return rec, nil
		}
		h.mu.Unlock()

		select {
		case <-h.updated:
		case <-expire:
			return Record{}, fmt.Errorf("reply %#x: %w", mask, ErrNotReady)
		case <-h.stopChan:
			return Record{}, fmt.Errorf("link closed")
		case <-h.doneChan:
			if h.readErr != nil {
				return Record{}, fmt.Errorf("link read: %w", h.readErr)
			}
			return Record{}, io.EOF
		}
	}
}

// WaitNext blocks until a device record newer than the current one
// arrives. A zero timeout waits forever.
func (h *HostLink) WaitNext(timeout time.Duration) (Record, error) {
	h.mu.Lock()
	after, have := h.latest.Counter, h.haveData
	h.mu.Unlock()

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	for {
		select {
		case <-h.updated:
		case <-expire:
			return Record{}, fmt.Errorf("heartbeat: %w", ErrNotReady)
		case <-h.stopChan:
			return Record{}, fmt.Errorf("link closed")
		case <-h.doneChan:
			return Record{}, io.EOF
		}
		h.mu.Lock()
		rec := h.latest
		h.mu.Unlock()
		if !have || rec.Counter != after {
			return rec, nil
		}
	}
}

func (h *HostLink) readLoop() {
	defer close(h.doneChan)

	buffer := make([]byte, 2*RecordSize)
	for {
		select {
		case <-h.stopChan:
			return
		default:
		}

		n, err := h.port.Read(buffer)
		if n > 0 {
			h.inputBuffer.Write(buffer[:n])
			h.processRecords()
		}
		if err != nil {
			if err != io.EOF {
				h.readErr = err
			}
			return
		}
	}
}

func (h *HostLink) processRecords() {
	for h.inputBuffer.Available() >= RecordSize {
		rec, err := DecodeRecord(h.inputBuffer.Data())
		h.inputBuffer.Pop(RecordSize)
		if err != nil {
			continue
		}
		h.mu.Lock()
		h.latest = rec
		h.haveData = true
		h.replies |= rec.Flags & ReplyFlags
		h.mu.Unlock()

		select {
		case h.updated <- struct{}{}:
		default:
		}
	}
}

// Close stops the reader and closes the port
func (h *HostLink) Close() error {
	select {
	case <-h.stopChan:
		return nil
	default:
		close(h.stopChan)
	}
	err := h.port.Close()
	<-h.doneChan
	return err
}
