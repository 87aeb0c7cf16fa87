package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAckTimeout      = errors.New("ACK timeout")
	ErrResponseTimeout = errors.New("response timeout")
	ErrClosed          = errors.New("transport closed")
)

// DefaultAckTimeout bounds the wait for each command's ACK
const DefaultAckTimeout = 2 * time.Second

// maxRetransmit bounds resends after a NAK
const maxRetransmit = 3

// ResponseHandler is called from the read goroutine for every response
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is one frame received by the host
type Message struct {
	Sequence uint8
	Payload  []byte // Own copy, command ID first
}

// HostTransport is the host end of the link: it frames commands, waits for
// their ACK and queues MCU responses.
type HostTransport struct {
	port io.ReadWriteCloser

	// Sequence of the next command sent (0x10..0x1F)
	currentSeq atomic.Uint32

	input   *StreamBuffer
	readMu  sync.Mutex
	writeMu sync.Mutex
	sendMu  sync.Mutex

	ackChan      chan Message
	responseChan chan *Message

	handlerMu       sync.RWMutex
	responseHandler ResponseHandler

	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewHostTransport starts reading port in the background
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		input:        NewStreamBuffer(1024),
		ackChan:      make(chan Message, 4),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.currentSeq.Store(MessageDest)

	go t.readLoop()
	return t
}

// SendCommand sends a command and waits for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout sends a command, retransmitting on NAK, and waits
// up to timeout for each ACK.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	payload := scratch.Result()

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.drainAcks()
	for attempt := 0; attempt <= maxRetransmit; attempt++ {
		seq := uint8(t.currentSeq.Load())
		msg, err := BuildFrame(seq, payload)
		if err != nil {
			return fmt.Errorf("failed to build command %d: %w", cmdID, err)
		}
		if err := t.writeMessage(msg); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}

		ack, err := t.waitForAck(timeout)
		if err != nil {
			return err
		}
		if ack.Sequence == NextSequence(seq) {
			t.currentSeq.Store(uint32(ack.Sequence))
			return nil
		}
		// NAK: adopt the sequence the MCU expects and resend
		t.currentSeq.Store(uint32(ack.Sequence))
	}
	return fmt.Errorf("command %d not acknowledged after %d attempts", cmdID, maxRetransmit+1)
}

func (t *HostTransport) drainAcks() {
	for {
		select {
		case <-t.ackChan:
		default:
			return
		}
	}
}

// writeMessage writes one complete frame
func (t *HostTransport) writeMessage(msg []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

func (t *HostTransport) waitForAck(timeout time.Duration) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-t.ackChan:
		return ack, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
	case <-t.stopChan:
		return Message{}, ErrClosed
	}
}

// ReceiveResponse returns the next queued response
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrResponseTimeout, timeout)
	case <-t.stopChan:
		return nil, ErrClosed
	}
}

// DrainResponses discards queued responses
func (t *HostTransport) DrainResponses() {
	for {
		select {
		case <-t.responseChan:
		default:
			return
		}
	}
}

// SetResponseHandler installs a callback run for each response before it
// is queued
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// feed appends received bytes and dispatches every complete frame
func (t *HostTransport) feed(chunk []byte) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for len(chunk) > 0 {
		w := t.input.Write(chunk)
		chunk = chunk[w:]
		t.processMessages()
		if w == 0 && t.input.Free() == 0 {
			// Nothing parseable in a full buffer
			t.input.Reset()
		}
	}
}

func (t *HostTransport) processMessages() {
	data := t.input.Data()
	for len(data) > 0 {
		data = SkipSync(data)
		frame, n, err := ScanFrame(data)
		if err == ErrIncomplete {
			break
		}
		if err != nil {
			data, _ = SkipToSync(data)
			continue
		}
		payload := make([]byte, len(frame.Payload))
		copy(payload, frame.Payload)
		data = data[n:]
		t.dispatchMessage(&Message{Sequence: frame.Sequence, Payload: payload})
	}
	t.input.Pop(t.input.Available() - len(data))
}

// dispatchMessage routes ACKs to the sender and responses to the queue.
// When the queue is full the oldest response is dropped.
func (t *HostTransport) dispatchMessage(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- *msg:
		default:
		}
		return
	}

	t.handlerMu.RLock()
	handler := t.responseHandler
	t.handlerMu.RUnlock()
	if handler != nil {
		data := msg.Payload
		if cmdID, err := DecodeVLQUint(&data); err == nil {
			_ = handler(uint16(cmdID), &data)
		}
	}

	for {
		select {
		case t.responseChan <- msg:
			return
		default:
		}
		select {
		case <-t.responseChan:
		default:
		}
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset restarts the command sequence and drops buffered input
func (t *HostTransport) Reset() {
	t.currentSeq.Store(MessageDest)
	t.drainAcks()
	t.DrainResponses()

	t.readMu.Lock()
	t.input.Reset()
	t.readMu.Unlock()
}

// GetCurrentSequence returns the sequence of the next command
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(t.currentSeq.Load())
}
