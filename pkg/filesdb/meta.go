package filesdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Reserved top-level keys of the meta document.
const (
	metaKeyTables  = "tables"
	metaKeyPrefix  = "table_prefix"
	metaKeyEncrypt = "encrypt_flag"

	// DefaultTablePrefix is prepended to table names when the meta document
	// does not set table_prefix.
	DefaultTablePrefix = "TABLE_"
)

// metaDoc is the in-memory meta document. Per-table entries sit at the top
// level of the JSON object, keyed by qualified name.
type metaDoc struct {
	tables  []string
	prefix  string
	encrypt bool
	entries map[string]*tableEntry

	// extra holds unknown top-level keys, written back verbatim.
	extra map[string]json.RawMessage
}

type tableEntry struct {
	columns map[string]ColumnType
	key     KeyPolicy

	// next is the auto-increment generator state.
	next int64
}

type tableEntryJSON struct {
	Columns        map[string]ColumnType `json:"columns"`
	IDField        json.RawMessage       `json:"id_field"`
	GeneratorState *int64                `json:"generator_state"`
}

func newMetaDoc() *metaDoc {
	return &metaDoc{
		tables:  []string{},
		prefix:  DefaultTablePrefix,
		entries: make(map[string]*tableEntry),
		extra:   make(map[string]json.RawMessage),
	}
}

func (m *metaDoc) isReserved(key string) bool {
	switch key {
	case metaKeyTables, metaKeyPrefix, metaKeyEncrypt:
		return true
	}

	_, ok := m.extra[key]

	return ok
}

// encode renders the full document. Keys come out sorted.
func (m *metaDoc) encode() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.extra)+len(m.entries)+3)
	maps.Copy(out, m.extra)

	var err error

	if out[metaKeyTables], err = json.Marshal(m.tables); err != nil {
		return nil, err
	}

	if out[metaKeyPrefix], err = json.Marshal(m.prefix); err != nil {
		return nil, err
	}

	if out[metaKeyEncrypt], err = json.Marshal(m.encrypt); err != nil {
		return nil, err
	}

	for name, entry := range m.entries {
		raw, err := entry.encode()
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}

		out[name] = raw
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

func (e *tableEntry) encode() (json.RawMessage, error) {
	var (
		idField []byte
		err     error
	)

	if column, ok := e.key.Column(); ok {
		idField, err = json.Marshal(column)
	} else {
		idField, err = json.Marshal(e.key.Start())
	}

	if err != nil {
		return nil, err
	}

	return json.Marshal(tableEntryJSON{
		Columns:        e.columns,
		IDField:        idField,
		GeneratorState: &e.next,
	})
}

// decodeMeta parses and validates a meta document. tables must be a list of
// strings, encrypt_flag a bool and table_prefix a string; every listed table
// needs a well-formed entry.
func decodeMeta(data []byte) (*metaDoc, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding meta: %w", err)
	}

	if raw == nil {
		return nil, errors.New("decoding meta: document is not an object")
	}

	m := newMetaDoc()

	if v, ok := raw[metaKeyTables]; ok {
		var tables []string
		if err := json.Unmarshal(v, &tables); err != nil || tables == nil {
			return nil, fmt.Errorf("meta: %s must be a list of strings", metaKeyTables)
		}

		m.tables = tables
	}

	if v, ok := raw[metaKeyPrefix]; ok {
		if err := json.Unmarshal(v, &m.prefix); err != nil {
			return nil, fmt.Errorf("meta: %s must be a string", metaKeyPrefix)
		}
	}

	if v, ok := raw[metaKeyEncrypt]; ok {
		if err := json.Unmarshal(v, &m.encrypt); err != nil {
			return nil, fmt.Errorf("meta: %s must be a bool", metaKeyEncrypt)
		}
	}

	seen := make(map[string]bool, len(m.tables))

	for _, name := range m.tables {
		if seen[name] {
			return nil, fmt.Errorf("meta: table %s listed twice", name)
		}

		seen[name] = true

		v, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("meta: table %s has no entry", name)
		}

		entry, err := decodeTableEntry(v)
		if err != nil {
			return nil, fmt.Errorf("meta: table %s: %w", name, err)
		}

		m.entries[name] = entry
	}

	for key, v := range raw {
		if key == metaKeyTables || key == metaKeyPrefix || key == metaKeyEncrypt || seen[key] {
			continue
		}

		m.extra[key] = v
	}

	return m, nil
}

func decodeTableEntry(data []byte) (*tableEntry, error) {
	var wire tableEntryJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	entry := &tableEntry{columns: wire.Columns}

	if entry.columns == nil {
		entry.columns = make(map[string]ColumnType)
	}

	for _, name := range slices.Sorted(maps.Keys(entry.columns)) {
		if err := entry.columns[name].validate(); err != nil {
			return nil, columnError(name, err)
		}
	}

	idField := bytes.TrimSpace(wire.IDField)

	switch {
	case len(idField) == 0 || bytes.Equal(idField, []byte("null")):
		entry.key = AutoIncrement(0)
	case idField[0] == '"':
		var column string
		if err := json.Unmarshal(idField, &column); err != nil {
			return nil, err
		}

		entry.key = NaturalKey(column)
	default:
		var start int64
		if err := json.Unmarshal(idField, &start); err != nil {
			return nil, fmt.Errorf("id_field must be a column name or an integer: %w", err)
		}

		entry.key = AutoIncrement(start)
	}

	if wire.GeneratorState != nil {
		entry.next = *wire.GeneratorState
	}

	// Documents that never stored the counter, or stored one below the
	// start value, continue from the start value.
	if _, natural := entry.key.Column(); !natural && entry.next < entry.key.Start() {
		entry.next = entry.key.Start()
	}

	return entry, nil
}

// metaFromOverride builds the document written when no meta file exists.
func metaFromOverride(override map[string]any) (*metaDoc, error) {
	if override == nil {
		return newMetaDoc(), nil
	}

	data, err := json.Marshal(override)
	if err != nil {
		return nil, fmt.Errorf("encoding meta override: %w", err)
	}

	return decodeMeta(data)
}
