package domain

import (
	"bytes"
	"encoding/json"
)

// ShippingLine is the part of a WooCommerce shipping line the gateway inspects.
// Every field is optional; keys not listed here are carried through untouched
// by the code that rewrites the line.
type ShippingLine struct {
	MethodID   *string           `json:"method_id"`
	InstanceID json.RawMessage   `json:"instance_id,omitempty"`
	MetaData   []json.RawMessage `json:"meta_data"`
}

// HasMethod reports whether the line carries exactly the given method id.
func (l *ShippingLine) HasMethod(id string) bool {
	return l.MethodID != nil && *l.MethodID == id
}

// MetaEntry is a key/value annotation attached to a shipping line.
type MetaEntry struct {
	Key   *string         `json:"key"`
	Value json.RawMessage `json:"value"`
}

// HasKey reports whether the entry's key equals k.
func (m *MetaEntry) HasKey(k string) bool {
	return m.Key != nil && *m.Key == k
}

// ValuePresent reports whether the entry carries a non-null value.
func (m *MetaEntry) ValuePresent() bool {
	v := bytes.TrimSpace(m.Value)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// StringValue returns the value when it is a JSON string.
func (m *MetaEntry) StringValue() (string, bool) {
	if !m.ValuePresent() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(m.Value, &s); err != nil {
		return "", false
	}
	return s, true
}
