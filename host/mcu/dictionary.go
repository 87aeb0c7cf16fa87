package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dictionary is the parsed MCU data dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commandIDs  map[string]uint16
	responseIDs map[string]uint16
}

// InflateDictionary returns the JSON form of a dictionary as downloaded.
// zlib streams are inflated, anything else is returned unchanged.
func InflateDictionary(raw []byte) ([]byte, error) {
	if len(raw) < 2 || raw[0] != 0x78 {
		return raw, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate dictionary: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate dictionary: %w", err)
	}
	return data, nil
}

// ParseDictionary decodes a dictionary, inflating it first if it is
// zlib-compressed.
func ParseDictionary(raw []byte) (*Dictionary, error) {
	data, err := InflateDictionary(raw)
	if err != nil {
		return nil, err
	}

	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	d.commandIDs = indexByName(d.Commands)
	d.responseIDs = indexByName(d.Responses)
	return d, nil
}

// indexByName maps "name arg=%u ..." signatures to their message name
func indexByName(sigs map[string]int) map[string]uint16 {
	ids := make(map[string]uint16, len(sigs))
	for sig, id := range sigs {
		name, _, _ := strings.Cut(sig, " ")
		ids[name] = uint16(id)
	}
	return ids
}

// CommandID returns the ID of a host-to-MCU command
func (d *Dictionary) CommandID(name string) (uint16, bool) {
	id, ok := d.commandIDs[name]
	return id, ok
}

// ResponseID returns the ID of an MCU-to-host response
func (d *Dictionary) ResponseID(name string) (uint16, bool) {
	id, ok := d.responseIDs[name]
	return id, ok
}

// Constant returns a config constant as a string
func (d *Dictionary) Constant(name string) (string, bool) {
	v, ok := d.Config[name]
	return v, ok
}

// ConstantUint returns a numeric config constant
func (d *Dictionary) ConstantUint(name string) (uint32, error) {
	v, ok := d.Config[name]
	if !ok {
		return 0, fmt.Errorf("constant %s not in dictionary", name)
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("constant %s: %w", name, err)
	}
	return uint32(n), nil
}
