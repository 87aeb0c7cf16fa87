package protocol

import "sync/atomic"

// CommandHandler handles one decoded command; it consumes its own arguments
// from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU end of the link: it parses host frames, dispatches
// their commands, acknowledges them and encodes responses.
type Transport struct {
	synchronized atomic.Bool
	// Sequence expected from the host next (0x10..0x1F). ACKs and
	// responses carry the same value.
	nextSequence atomic.Uint32

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()

	// Errors returned by handlers since creation
	HandlerErrors atomic.Uint32
}

// NewTransport creates a synchronised transport expecting sequence 0x10
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		output:  output,
		handler: handler,
	}
	t.synchronized.Store(true)
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive parses every complete frame in input and consumes it.
// A partial frame is left in input for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synchronized.Load() {
			var found bool
			data, found = SkipToSync(data)
			if found {
				t.synchronized.Store(true)
				t.encodeAckNak()
			}
			continue
		}

		data = SkipSync(data)
		frame, n, err := ScanFrame(data)
		if err == ErrIncomplete {
			break
		}
		if err != nil {
			t.synchronized.Store(false)
			continue
		}
		data = data[n:]

		expected := uint8(t.nextSequence.Load())
		if frame.Sequence == MessageDest && expected != MessageDest {
			// Host restarted its sequence: treat as a reconnect
			t.nextSequence.Store(MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if frame.Sequence == expected {
			t.nextSequence.Store(uint32(NextSequence(expected)))
			if err := t.parseFrame(frame.Payload); err != nil {
				t.HandlerErrors.Add(1)
			}
		}
		// A repeated or out-of-order frame still gets an ACK carrying the
		// expected sequence, which the host reads as a NAK.
		t.encodeAckNak()
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame dispatches every command in one frame payload
func (t *Transport) parseFrame(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.synchronized.Store(false)
			err = ErrBadFrame
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synchronized.Store(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		// A failing handler has consumed an unknown amount of the payload;
		// the rest of the frame cannot be trusted.
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			return err
		}
	}
	return nil
}

// encodeAckNak writes an empty frame with the expected sequence and
// flushes it ahead of any response.
func (t *Transport) encodeAckNak() {
	EncodeFrame(t.output, uint8(t.nextSequence.Load()), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand encodes one message (ID plus arguments) as its own frame
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	EncodeFrame(t.output, uint8(t.nextSequence.Load()), func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the initial state, e.g. after a USB reconnect
func (t *Transport) Reset() {
	t.synchronized.Store(true)
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback is called when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback is called after every ACK so it can be pushed out at once
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// Synchronized reports whether the transport is aligned with frame boundaries
func (t *Transport) Synchronized() bool {
	return t.synchronized.Load()
}
