package fanout

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// OrderedMap is a string keyed mapping that remembers insertion order.
// JSON objects decoded into it keep the order in which keys appear in the document.
type OrderedMap struct {
	keys   []string
	values map[string]interface{}
}

func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: map[string]interface{}{}}
}

// Set stores value under key. A new key is appended; an existing key keeps its position.
func (m *OrderedMap) Set(key string, value interface{}) {
	if m.values == nil {
		m.values = map[string]interface{}{}
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *OrderedMap) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *OrderedMap) Delete(key string) {
	if _, exists := m.values[key]; !exists {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (m *OrderedMap) Keys() []string {
	return m.keys
}

func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// Range calls f for every entry in insertion order until f returns false.
func (m *OrderedMap) Range(f func(key string, value interface{}) bool) {
	for _, k := range m.keys {
		if !f(k, m.values[k]) {
			return
		}
	}
}

func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		value, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, errors.WithStack(err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts only JSON objects. Nested objects are decoded as map[string]interface{}.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	token, err := dec.Token()
	if err != nil {
		return errors.WithStack(err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return errors.Errorf("expected a JSON object, got %v", token)
	}

	m.keys = nil
	m.values = map[string]interface{}{}
	for dec.More() {
		token, err := dec.Token()
		if err != nil {
			return errors.WithStack(err)
		}
		key, ok := token.(string)
		if !ok {
			return errors.Errorf("expected an object key, got %v", token)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return errors.WithStack(err)
		}
		m.Set(key, normaliseNumbers(value))
	}
	if _, err := dec.Token(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// normaliseNumbers turns json.Number into int64 where the number is integral and float64 otherwise,
// so that integers print without a decimal point.
func normaliseNumbers(v interface{}) interface{} {
	switch value := v.(type) {
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}
		f, _ := value.Float64()
		return f
	case map[string]interface{}:
		for k, inner := range value {
			value[k] = normaliseNumbers(inner)
		}
		return value
	case []interface{}:
		for i, inner := range value {
			value[i] = normaliseNumbers(inner)
		}
		return value
	}
	return v
}
