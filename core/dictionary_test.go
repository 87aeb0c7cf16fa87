package core

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

type parsedDictionary struct {
	Version      string                    `json:"version"`
	Config       map[string]string         `json:"config"`
	Commands     map[string]int            `json:"commands"`
	Responses    map[string]int            `json:"responses"`
	Enumerations map[string]map[string]int `json:"enumerations"`
}

func newTestDictionary(t *testing.T) *Dictionary {
	t.Helper()
	reg := NewCommandRegistry()
	reg.Register("identify_response", "offset=%u data=%.*s", nil)
	reg.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })
	reg.Register("clock_begin", "pin=%u hz=%u", func(data *[]byte) error { return nil })
	reg.Register("clock_state", "active=%c pin=%u", nil)
	return NewDictionary(reg)
}

func TestDictionaryIsValidJSON(t *testing.T) {
	dict := newTestDictionary(t)
	dict.AddConstant("CLOCK_FREQ", uint32(16000000))
	dict.AddConstant("MCU", "test \"quoted\"")
	dict.AddConstant("CLOCK_MIRROR", false)
	dict.AddEnumeration("prescaler", []string{"", "div1", "div8"})
	dict.BuildDictionary()

	var parsed parsedDictionary
	if err := json.Unmarshal(dict.Generate(), &parsed); err != nil {
		t.Fatalf("Dictionary is not valid JSON: %v\n%s", err, dict.Generate())
	}

	if parsed.Version != "isrclock-0.1.0" {
		t.Errorf("Expected version isrclock-0.1.0, got %q", parsed.Version)
	}
	if got := parsed.Config["CLOCK_FREQ"]; got != "16000000" {
		t.Errorf("Expected CLOCK_FREQ 16000000, got %q", got)
	}
	if got := parsed.Config["MCU"]; got != `test "quoted"` {
		t.Errorf("Expected escaped MCU string, got %q", got)
	}
	if got := parsed.Config["CLOCK_MIRROR"]; got != "0" {
		t.Errorf("Expected CLOCK_MIRROR 0, got %q", got)
	}
	if id, ok := parsed.Commands["clock_begin pin=%u hz=%u"]; !ok || id != 2 {
		t.Errorf("Expected clock_begin with ID 2, got %d (present=%v)", id, ok)
	}
	if id, ok := parsed.Responses["identify_response offset=%u data=%.*s"]; !ok || id != 0 {
		t.Errorf("Expected identify_response with ID 0, got %d (present=%v)", id, ok)
	}

	enum := parsed.Enumerations["prescaler"]
	if len(enum) != 2 || enum["div1"] != 1 || enum["div8"] != 2 {
		t.Errorf("Unexpected prescaler enumeration: %v", enum)
	}
}

func TestDictionaryCacheInvalidation(t *testing.T) {
	dict := newTestDictionary(t)
	dict.BuildDictionary()
	before := string(dict.Generate())

	dict.AddConstant("LATE", uint32(1))
	after := string(dict.Generate())

	if before == after {
		t.Error("Expected a new constant to invalidate the cached dictionary")
	}
	if !strings.Contains(after, `"LATE":"1"`) {
		t.Errorf("Expected LATE constant in %s", after)
	}
}

func TestDictionaryChunks(t *testing.T) {
	dict := newTestDictionary(t)
	dict.BuildDictionary()
	full := dict.Compressed()

	var rebuilt []byte
	for offset := uint32(0); ; {
		chunk := dict.GetChunk(offset, 40)
		rebuilt = append(rebuilt, chunk...)
		offset += uint32(len(chunk))
		if len(chunk) < 40 {
			break
		}
	}
	if !bytes.Equal(rebuilt, full) {
		t.Errorf("Chunks do not reassemble the dictionary: got %d bytes, want %d", len(rebuilt), len(full))
	}

	if chunk := dict.GetChunk(uint32(len(full))+10, 40); len(chunk) != 0 {
		t.Errorf("Expected empty chunk past the end, got %d bytes", len(chunk))
	}

	// Chunks are copies
	chunk := dict.GetChunk(0, 4)
	chunk[0] = 'X'
	if dict.Compressed()[0] != 0x78 {
		t.Error("Modifying a chunk changed the dictionary")
	}
}

func TestDictionaryCompressedInflates(t *testing.T) {
	dict := newTestDictionary(t)
	dict.BuildDictionary()

	zr, err := zlib.NewReader(bytes.NewReader(dict.Compressed()))
	if err != nil {
		t.Fatalf("Compressed dictionary has no zlib header: %v", err)
	}
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("Inflate failed: %v", err)
	}
	if !bytes.Equal(plain, dict.Generate()) {
		t.Errorf("Inflated dictionary differs:\n%s\n%s", plain, dict.Generate())
	}

	// A later constant invalidates the packed form too
	dict.AddConstant("LATE", 1)
	zr2, err := zlib.NewReader(bytes.NewReader(dict.Compressed()))
	if err != nil {
		t.Fatalf("Repacked dictionary has no zlib header: %v", err)
	}
	defer zr2.Close()
	plain, _ = io.ReadAll(zr2)
	if !strings.Contains(string(plain), `"LATE":"1"`) {
		t.Errorf("Expected LATE constant after repack, got %s", plain)
	}
}
