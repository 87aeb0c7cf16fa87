// Package mcu is the host-side client for the clock firmware
package mcu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"isrclock/host/serial"
	"isrclock/protocol"
)

var (
	// ErrNotConnected is returned by calls made before Connect or after Close
	ErrNotConnected = errors.New("not connected to MCU")
	// ErrNoDictionary is returned by named commands before RetrieveDictionary
	ErrNoDictionary = errors.New("dictionary not loaded")
)

// Bootstrap IDs are fixed so the dictionary itself can be fetched
const (
	identifyResponseID = 0
	identifyID         = 1
	identifyChunk      = 40
)

// DefaultResponseTimeout bounds the wait for a command's response
const DefaultResponseTimeout = time.Second

// MCU is a connection to one clock firmware instance
type MCU struct {
	transport *protocol.HostTransport
	log       *slog.Logger

	dictionary     *Dictionary
	dictionaryData []byte

	responseTimeout time.Duration
}

// NewMCU creates an unconnected client
func NewMCU(logger *slog.Logger) *MCU {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCU{
		log:             logger,
		responseTimeout: DefaultResponseTimeout,
	}
}

// ConnectWithConfig opens a serial port and attaches to it
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.log.Info("connected", "device", cfg.Device, "baud", cfg.Baud)
	m.Attach(port)
	return nil
}

// Attach uses an already open stream, e.g. a pipe to a simulated MCU
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.transport.SetResponseHandler(m.handleResponse)
}

// Close closes the connection
func (m *MCU) Close() error {
	if m.transport == nil {
		return nil
	}
	err := m.transport.Close()
	m.transport = nil
	return err
}

// IsConnected reports whether a transport is attached
func (m *MCU) IsConnected() bool {
	return m.transport != nil
}

// SetResponseTimeout changes how long Query waits for a response
func (m *MCU) SetResponseTimeout(d time.Duration) {
	m.responseTimeout = d
}

// RetrieveDictionary fetches the dictionary with identify in fixed chunks
// until a short chunk arrives.
func (m *MCU) RetrieveDictionary() error {
	if m.transport == nil {
		return ErrNotConnected
	}

	var buf bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := m.identify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}

	data, err := InflateDictionary(buf.Bytes())
	if err != nil {
		return err
	}
	dict, err := ParseDictionary(data)
	if err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	m.dictionaryData = data
	m.dictionary = dict
	m.log.Debug("dictionary retrieved", "bytes", buf.Len(), "json_bytes", len(data),
		"commands", len(dict.Commands), "responses", len(dict.Responses), "version", dict.Version)
	return nil
}

func (m *MCU) identify(offset uint32, count uint8) ([]byte, error) {
	payload, err := m.query(identifyID, identifyResponseID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, err
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}
	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	return data, nil
}

// query sends cmdID and returns the arguments of the next respID response.
// Unrelated responses received meanwhile are skipped.
func (m *MCU) query(cmdID, respID uint16, args func(output protocol.OutputBuffer)) ([]byte, error) {
	m.transport.DrainResponses()
	if err := m.transport.SendCommand(cmdID, args); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.responseTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w waiting for response %d", protocol.ErrResponseTimeout, respID)
		}
		msg, err := m.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, err
		}
		payload := msg.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			continue
		}
		if uint16(id) == respID {
			return payload, nil
		}
		m.log.Debug("skipping response", "id", id, "want", respID)
	}
}

// SendCommand sends a named command without waiting for a response
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	cmdID, err := m.commandID(name)
	if err != nil {
		return err
	}
	return m.transport.SendCommand(cmdID, args)
}

// Query sends a named command and returns the arguments of the named
// response
func (m *MCU) Query(command, response string, args func(output protocol.OutputBuffer)) ([]byte, error) {
	cmdID, err := m.commandID(command)
	if err != nil {
		return nil, err
	}
	respID, ok := m.dictionary.ResponseID(response)
	if !ok {
		return nil, fmt.Errorf("unknown response: %s", response)
	}
	payload, err := m.query(cmdID, respID, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return payload, nil
}

func (m *MCU) commandID(name string) (uint16, error) {
	if m.transport == nil {
		return 0, ErrNotConnected
	}
	if m.dictionary == nil {
		return 0, ErrNoDictionary
	}
	id, ok := m.dictionary.CommandID(name)
	if !ok {
		return 0, fmt.Errorf("unknown command: %s", name)
	}
	return id, nil
}

func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	m.log.Debug("response", "id", cmdID, "len", len(*data))
	return nil
}

// GetDictionary returns the parsed dictionary (nil before retrieval)
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the dictionary JSON (inflated if it arrived
// compressed)
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}
