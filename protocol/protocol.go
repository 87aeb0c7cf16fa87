// Package protocol implements the Klipper-style framing used between the
// clock firmware and its host tools.
//
// A frame is: length, sequence, payload, CRC16 (big endian), sync byte.
// Payloads are a run of VLQ-encoded command IDs each followed by its
// arguments.
package protocol

import "errors"

// Version of the wire protocol implementation
const Version = "isrclock-0.1.0"

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax is the size of one output scratch buffer; it holds several frames
	MessageMax = 512
)

var (
	// ErrIncomplete means data holds the start of a frame but not all of it
	ErrIncomplete = errors.New("incomplete frame")
	// ErrBadFrame means data does not start with a valid frame
	ErrBadFrame = errors.New("bad frame")
	// ErrFrameTooLong is returned when a payload does not fit one frame
	ErrFrameTooLong = errors.New("frame too long")
)

// Frame is one decoded frame
type Frame struct {
	Sequence uint8
	Payload  []byte // Aliases the scanned data
}

// IsAck reports whether the frame is an empty ACK/NAK
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// NextSequence returns the sequence following seq (0x10..0x1F, wrapping)
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// ScanFrame decodes the frame at the start of data and returns it along
// with the number of bytes it occupies. Leading sync bytes must already be
// skipped. ErrIncomplete asks for more data; ErrBadFrame means the caller
// has to resynchronise with SkipToSync.
func ScanFrame(data []byte) (Frame, int, error) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, ErrIncomplete
	}
	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return Frame{}, 0, ErrBadFrame
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return Frame{}, 0, ErrBadFrame
	}
	if len(data) < msgLen {
		return Frame{}, 0, ErrIncomplete
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return Frame{}, 0, ErrBadFrame
	}
	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return Frame{}, 0, ErrBadFrame
	}
	return Frame{
		Sequence: seq,
		Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
	}, msgLen, nil
}

// SkipToSync drops everything up to and including the next sync byte.
// The second result is false when no sync byte was found.
func SkipToSync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// SkipSync drops leading sync bytes
func SkipSync(data []byte) []byte {
	for len(data) > 0 && data[0] == MessageValueSync {
		data = data[1:]
	}
	return data
}

// EncodeFrame wraps payload into a frame written to output
func EncodeFrame(output OutputBuffer, seq uint8, payload func(output OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if payload != nil {
		payload(output)
	}
	body := output.DataSince(cursor)
	output.Update(cursor, uint8(len(body)+MessageTrailerSize))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// BuildFrame returns one frame carrying payload
func BuildFrame(seq uint8, payload []byte) ([]byte, error) {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return nil, ErrFrameTooLong
	}
	out := make([]byte, 0, msgLen)
	out = append(out, uint8(msgLen), seq)
	out = append(out, payload...)
	crc := CRC16(out)
	return append(out, uint8(crc>>8), uint8(crc), MessageValueSync), nil
}
