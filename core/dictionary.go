package core

import (
	"sort"
	"sync"

	"isrclock/tinycompress"
)

// Constant represents a firmware constant exposed to the host
type Constant struct {
	Name  string
	Value interface{}
}

// Enumeration maps symbolic names to indexes (index = position in Values)
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary is the JSON data dictionary the host retrieves with identify
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cached        []byte
	packed        []byte // zlib form of cached, served by identify
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a dictionary describing the commands of cmdReg
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		commandReg:    cmdReg,
		version:       "isrclock-0.1.0",
		buildVersions: "go-tinygo",
	}
}

// RegisterConstant registers a constant in the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers an enumeration in the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant adds or replaces a constant
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
	d.cached = nil
	d.packed = nil
}

// AddEnumeration adds or replaces an enumeration. values is copied.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)
	d.enumerations[name] = &Enumeration{Name: name, Values: valuesCopy}
	d.cached = nil
	d.packed = nil
}

// SetBuildVersions sets the build versions string
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cached = nil
	d.packed = nil
}

// BuildDictionary renders and caches the dictionary.
// Call it once every command has been registered.
func (d *Dictionary) BuildDictionary() {
	// Registry lock is taken before the dictionary lock, never inside it
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = d.render(commands, responses)
	d.packed = tinycompress.Store(nil, d.cached)
	DebugPrintln("[DICT] built " + itoa(len(d.cached)) + " bytes, " +
		itoa(len(d.packed)) + " packed")
}

// Generate returns the dictionary JSON, rendering it if nothing is cached
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cached
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	commands, responses := d.commandReg.GetCommandsAndResponses()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.render(commands, responses)
}

// render writes the Klipper dictionary layout by hand (caller holds d.mu)
func (d *Dictionary) render(commands, responses map[string]int) []byte {
	out := make([]byte, 0, 1024)

	out = append(out, `{"version":"`...)
	out = append(out, d.version...)
	out = append(out, `","build_versions":"`...)
	out = append(out, d.buildVersions...)
	out = append(out, `","config":{`...)

	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, name)
		out = append(out, ':')
		out = appendQuoted(out, valueToString(d.constants[name].Value))
	}

	out = append(out, `},"commands":`...)
	out = appendIDMap(out, commands)
	out = append(out, `,"responses":`...)
	out = appendIDMap(out, responses)

	if len(d.enumerations) > 0 {
		out = append(out, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enumerations) {
			if i > 0 {
				out = append(out, ',')
			}
			out = appendQuoted(out, name)
			out = append(out, `:{`...)
			first := true
			for idx, value := range d.enumerations[name].Values {
				// Empty slots keep their index but are not published
				if value == "" {
					continue
				}
				if !first {
					out = append(out, ',')
				}
				out = appendQuoted(out, value)
				out = append(out, ':')
				out = append(out, itoa(idx)...)
				first = false
			}
			out = append(out, '}')
		}
		out = append(out, '}')
	}

	return append(out, '}')
}

// appendIDMap writes {"signature":id,...} ordered by id
func appendIDMap(out []byte, ids map[string]int) []byte {
	sigs := make([]string, 0, len(ids))
	for sig := range ids {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return ids[sigs[i]] < ids[sigs[j]] })

	out = append(out, '{')
	for i, sig := range sigs {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, sig)
		out = append(out, ':')
		out = append(out, itoa(ids[sig])...)
	}
	return append(out, '}')
}

// appendQuoted writes s as a JSON string. Formats and names only ever carry
// printable ASCII, so only quote and backslash need escaping.
func appendQuoted(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return append(out, '"')
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Compressed returns the zlib-wrapped dictionary the host downloads
func (d *Dictionary) Compressed() []byte {
	d.mu.RLock()
	packed := d.packed
	d.mu.RUnlock()
	if packed != nil {
		return packed
	}
	return tinycompress.Store(nil, d.Generate())
}

// GetChunk returns a copy of up to count bytes of the compressed dictionary
// starting at offset. Past the end it returns an empty chunk, which ends the
// host's retrieval loop.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Compressed()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
