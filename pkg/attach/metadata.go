package attach

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Key names a metadata attribute.
type Key string

// Stable metadata keys.
const (
	KeyMimeType     Key = "mimeType"
	KeyFilename     Key = "filename"
	KeySize         Key = "size"
	KeyDigest       Key = "digest"
	KeyWidth        Key = "width"
	KeyHeight       Key = "height"
	KeyCapturedAt   Key = "capturedAt"
	KeyLastModified Key = "lastModified"
)

// Metadata is an insertion-ordered attribute map. The zero value is empty and
// ready to use. Copies share storage; use Clone before handing one out.
type Metadata struct {
	keys []Key
	vals map[Key]any
}

// Set stores v under k, keeping the original position of an existing key.
// Integer sizes and dimensions are normalized to int64 and int.
func (m *Metadata) Set(k Key, v any) {
	if m.vals == nil {
		m.vals = make(map[Key]any)
	}
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = normalizeValue(k, v)
}

// SetDefault stores v only when k is absent and reports whether it did.
func (m *Metadata) SetDefault(k Key, v any) bool {
	if m.Has(k) {
		return false
	}
	m.Set(k, v)
	return true
}

func (m Metadata) Get(k Key) (any, bool) {
	v, ok := m.vals[k]
	return v, ok
}

func (m Metadata) Has(k Key) bool {
	_, ok := m.vals[k]
	return ok
}

func (m *Metadata) Delete(k Key) {
	if _, ok := m.vals[k]; !ok {
		return
	}
	delete(m.vals, k)
	for i, key := range m.keys {
		if key == k {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []Key {
	return append([]Key(nil), m.keys...)
}

func (m Metadata) Len() int { return len(m.keys) }

// Clone returns an independent copy. Digest bytes are copied too.
func (m Metadata) Clone() Metadata {
	c := Metadata{keys: append([]Key(nil), m.keys...), vals: make(map[Key]any, len(m.vals))}
	for k, v := range m.vals {
		if b, ok := v.([]byte); ok {
			v = bytes.Clone(b)
		}
		c.vals[k] = v
	}
	return c
}

// Merge copies every entry of other into m, overwriting existing values.
func (m *Metadata) Merge(other Metadata) {
	for _, k := range other.keys {
		m.Set(k, other.vals[k])
	}
}

// ReverseMerge copies entries of other whose keys m lacks.
func (m *Metadata) ReverseMerge(other Metadata) {
	for _, k := range other.keys {
		m.SetDefault(k, other.vals[k])
	}
}

func (m Metadata) MimeType() string { return m.str(KeyMimeType) }
func (m Metadata) Filename() string { return m.str(KeyFilename) }

func (m Metadata) Size() int64 {
	n, _ := m.vals[KeySize].(int64)
	return n
}

func (m Metadata) Digest() []byte {
	b, _ := m.vals[KeyDigest].([]byte)
	return b
}

func (m Metadata) Width() int {
	n, _ := m.vals[KeyWidth].(int)
	return n
}

func (m Metadata) Height() int {
	n, _ := m.vals[KeyHeight].(int)
	return n
}

func (m Metadata) CapturedAt() time.Time   { return m.time(KeyCapturedAt) }
func (m Metadata) LastModified() time.Time { return m.time(KeyLastModified) }

func (m Metadata) str(k Key) string {
	s, _ := m.vals[k].(string)
	return s
}

func (m Metadata) time(k Key) time.Time {
	t, _ := m.vals[k].(time.Time)
	return t
}

// MarshalJSON writes the entries as a JSON object in insertion order.
// Digests are base64 encoded; times use RFC 3339 with nanoseconds.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(string(k))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.vals[k])
		if err != nil {
			return nil, fmt.Errorf("metadata %s: %w", k, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces m with the entries of a JSON object, preserving
// their order and restoring the Go types of the stable keys.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata: expected object, got %v", tok)
	}

	*m = Metadata{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		k := Key(name)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		v, err := decodeValue(k, raw)
		if err != nil {
			return fmt.Errorf("metadata %s: %w", k, err)
		}
		m.Set(k, v)
	}
	_, err = dec.Token()
	return err
}

func decodeValue(k Key, raw json.RawMessage) (any, error) {
	var err error
	switch k {
	case KeyMimeType, KeyFilename:
		var s string
		err = json.Unmarshal(raw, &s)
		return s, err
	case KeySize:
		var n int64
		err = json.Unmarshal(raw, &n)
		return n, err
	case KeyWidth, KeyHeight:
		var n int
		err = json.Unmarshal(raw, &n)
		return n, err
	case KeyDigest:
		var b []byte
		err = json.Unmarshal(raw, &b)
		return b, err
	case KeyCapturedAt, KeyLastModified:
		var t time.Time
		err = json.Unmarshal(raw, &t)
		return t, err
	}
	var v any
	err = json.Unmarshal(raw, &v)
	return v, err
}

func normalizeValue(k Key, v any) any {
	switch k {
	case KeySize:
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		case uint32:
			return int64(n)
		}
	case KeyWidth, KeyHeight:
		switch n := v.(type) {
		case int64:
			return int(n)
		case int32:
			return int(n)
		case uint32:
			return int(n)
		}
	}
	return v
}
