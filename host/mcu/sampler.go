package mcu

import (
	"fmt"
	"time"

	"isrclock/protocol"
)

// DFFState is a decoded dff_state report
type DFFState struct {
	OID   uint8
	Q     uint8
	Edges uint32
}

// ConfigDFFSampler creates a latch sampler watching pin on the MCU
func (m *MCU) ConfigDFFSampler(oid uint8, pin uint32) error {
	return m.SendCommand("config_dff_sampler", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, pin)
	})
}

// StartDFFSampler samples every sampleTicks MCU ticks, starting now, and
// reports after every reportEdges rising edges
func (m *MCU) StartDFFSampler(oid uint8, sampleTicks, reportEdges uint32) error {
	return m.SendCommand("query_dff_sampler", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, 0)
		protocol.EncodeVLQUint(output, sampleTicks)
		protocol.EncodeVLQUint(output, reportEdges)
	})
}

// StopDFFSampler stops a sampler; pending reports are dropped
func (m *MCU) StopDFFSampler(oid uint8) error {
	return m.StartDFFSampler(oid, 0, 0)
}

// SetDFFInput sets the D input the sampler latches on its next rising edge
func (m *MCU) SetDFFInput(oid uint8, d uint8) error {
	return m.SendCommand("set_dff_input", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(d&1))
	})
}

// WaitDFFState waits for the next dff_state report from oid
func (m *MCU) WaitDFFState(oid uint8, timeout time.Duration) (DFFState, error) {
	if m.transport == nil {
		return DFFState{}, ErrNotConnected
	}
	if m.dictionary == nil {
		return DFFState{}, ErrNoDictionary
	}
	respID, ok := m.dictionary.ResponseID("dff_state")
	if !ok {
		return DFFState{}, fmt.Errorf("unknown response: dff_state")
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return DFFState{}, fmt.Errorf("%w waiting for dff_state", protocol.ErrResponseTimeout)
		}
		msg, err := m.transport.ReceiveResponse(remaining)
		if err != nil {
			return DFFState{}, err
		}
		payload := msg.Payload
		var id, gotOID, q, edges uint32
		if err := protocol.DecodeVLQUints(&payload, &id, &gotOID, &q, &edges); err != nil {
			continue
		}
		if uint16(id) != respID || uint8(gotOID) != oid {
			continue
		}
		return DFFState{OID: oid, Q: uint8(q & 1), Edges: edges}, nil
	}
}
