package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"isrclock/protocol"
)

// encodeArgs builds a command payload from VLQ arguments
func encodeArgs(vals ...uint32) *[]byte {
	out := protocol.NewScratchOutput()
	for _, v := range vals {
		protocol.EncodeVLQUint(out, v)
	}
	data := append([]byte(nil), out.Result()...)
	return &data
}

// captureResponses installs a transport whose frames land in the returned
// buffer
func captureResponses(t *testing.T) *protocol.ScratchOutput {
	t.Helper()
	out := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(out, DispatchCommand))
	t.Cleanup(func() { SetGlobalTransport(nil) })
	return out
}

// takeResponses decodes every captured frame into its VLQ fields, the
// response ID first, and empties the buffer
func takeResponses(t *testing.T, out *protocol.ScratchOutput) [][]uint32 {
	t.Helper()
	data := out.Result()
	var msgs [][]uint32
	for len(data) > 0 {
		frame, n, err := protocol.ScanFrame(data)
		require.NoError(t, err)
		payload := frame.Payload
		var fields []uint32
		for len(payload) > 0 {
			v, err := protocol.DecodeVLQUint(&payload)
			require.NoError(t, err)
			fields = append(fields, v)
		}
		msgs = append(msgs, fields)
		data = data[n:]
	}
	out.Reset()
	return msgs
}

func responseID(t *testing.T, name string) uint32 {
	t.Helper()
	cmd, ok := GetGlobalRegistry().GetCommandByName(name)
	require.True(t, ok, "%s not registered", name)
	return uint32(cmd.ID)
}
