package batch

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/G-Research/batchproc/internal/fanout"
)

// asMapping accepts the payload shapes a data job can arrive in. Plain Go maps have no order, so their keys
// are sorted.
func asMapping(payload interface{}) (*fanout.OrderedMap, bool) {
	switch p := payload.(type) {
	case *fanout.OrderedMap:
		return p, p != nil
	case map[string]interface{}:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := fanout.NewOrderedMap()
		for _, k := range keys {
			m.Set(k, p[k])
		}
		return m, true
	case json.RawMessage:
		return decodeMapping(p)
	case []byte:
		return decodeMapping(p)
	}
	return nil, false
}

func decodeMapping(raw []byte) (*fanout.OrderedMap, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	m := fanout.NewOrderedMap()
	if err := json.Unmarshal(trimmed, m); err != nil {
		return nil, false
	}
	return m, true
}

func asText(payload interface{}) (string, bool) {
	switch p := payload.(type) {
	case string:
		return p, true
	case json.RawMessage:
		return decodeText(p)
	case []byte:
		return decodeText(p)
	}
	return "", false
}

func decodeText(raw []byte) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
