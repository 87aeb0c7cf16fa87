package core

import (
	"errors"
	"strings"
	"testing"

	"isrclock/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	id := registry.Register("clock_query", "", func(data *[]byte) error {
		called = true
		return nil
	})

	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	cmd, ok := registry.GetCommand(id)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name != "clock_query" {
		t.Errorf("Expected command name 'clock_query', got '%s'", cmd.Name)
	}

	var data []byte
	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	err := registry.Dispatch(999, &data)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand for unknown ID, got %v", err)
	}
}

func TestCommandRegistrySequentialIDs(t *testing.T) {
	registry := NewCommandRegistry()

	id0 := registry.Register("identify_response", "offset=%u data=%*s", nil)
	id1 := registry.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })
	id2 := registry.Register("clock_end", "", func(data *[]byte) error { return nil })

	if id0 != 0 || id1 != 1 || id2 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id0, id1, id2)
	}
	if registry.Count() != 3 {
		t.Errorf("Expected 3 messages, got %d", registry.Count())
	}
}

func TestCommandRegistryDuplicateName(t *testing.T) {
	registry := NewCommandRegistry()

	first := registry.Register("clock_begin", "pin=%u hz=%u", func(data *[]byte) error { return nil })
	again := registry.Register("clock_begin", "pin=%u hz=%u", func(data *[]byte) error { return nil })

	if first != again {
		t.Errorf("Re-registering returned a new ID: %d vs %d", first, again)
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 message, got %d", registry.Count())
	}
}

func TestResponseIsNotDispatchable(t *testing.T) {
	registry := NewCommandRegistry()
	id := registry.Register("clock_state", "active=%c", nil)

	var data []byte
	if err := registry.Dispatch(id, &data); err == nil {
		t.Error("Expected dispatching a response to fail")
	}
}

func TestCommandsAndResponsesSplit(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("dff_update", "q=%c d=%c rising=%c", func(data *[]byte) error { return nil })
	registry.Register("dff_result", "q=%c", nil)

	commands, responses := registry.GetCommandsAndResponses()
	if id, ok := commands["dff_update q=%c d=%c rising=%c"]; !ok || id != 0 {
		t.Errorf("dff_update missing from commands: %v", commands)
	}
	if id, ok := responses["dff_result q=%c"]; !ok || id != 1 {
		t.Errorf("dff_result missing from responses: %v", responses)
	}

	dict := registry.GetDictionary()
	if !strings.Contains(dict, "dff_result q=%c\n") {
		t.Errorf("Dictionary text missing response:\n%s", dict)
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var pin, hz uint32
	handler := func(data *[]byte) error {
		var err error
		if pin, err = protocol.DecodeVLQUint(data); err != nil {
			return err
		}
		hz, err = protocol.DecodeVLQUint(data)
		return err
	}

	id := registry.Register("clock_begin", "pin=%u hz=%u", handler)

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 4)
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if pin != 4 || hz != 12345 {
		t.Errorf("Expected pin=4 hz=12345, got pin=%d hz=%d", pin, hz)
	}
}

func TestCommandTruncatedArguments(t *testing.T) {
	registry := NewCommandRegistry()
	id := registry.Register("clock_begin", "pin=%u hz=%u", func(data *[]byte) error {
		if _, err := protocol.DecodeVLQUint(data); err != nil {
			return err
		}
		_, err := protocol.DecodeVLQUint(data)
		return err
	})

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 4)
	data := output.Result()

	if err := registry.Dispatch(id, &data); err == nil {
		t.Error("Expected an error for a missing argument")
	}
}
