package model

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// AnswerMap maps a question index to the option key a student selected.
// Stored documents use string keys ("0", "1", ...); arrays are accepted too.
type AnswerMap map[int]OptionKey

// FlagMap maps a question index to whether the student flagged it.
type FlagMap map[int]bool

// UnmarshalJSON accepts an object keyed by index or an array of keys.
// Keys that are not non-negative integers are dropped.
func (m *AnswerMap) UnmarshalJSON(data []byte) error {
	raw, err := decodeIndexed(data)
	if err != nil {
		return err
	}
	out := make(AnswerMap, len(raw))
	for idx, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil || s == "" {
			continue
		}
		out[idx] = OptionKey(s)
	}
	*m = out
	return nil
}

// UnmarshalJSON accepts an object keyed by index or an array, and treats any
// truthy value (true, non-zero number, non-empty string) as a flag.
func (m *FlagMap) UnmarshalJSON(data []byte) error {
	raw, err := decodeIndexed(data)
	if err != nil {
		return err
	}
	out := make(FlagMap, len(raw))
	for idx, v := range raw {
		out[idx] = truthy(v)
	}
	*m = out
	return nil
}

func decodeIndexed(data []byte) (map[int]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	out := map[int]json.RawMessage{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return out, nil
	}
	if data[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		for i, v := range arr {
			if !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				out[i] = v
			}
		}
		return out, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	// Keys such as "1" and "1.0" can name the same index. The canonical
	// spelling wins, otherwise the lexically smallest key.
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		idx, ok := ParseIndex(k)
		if !ok {
			continue
		}
		if _, seen := out[idx]; seen && k != strconv.Itoa(idx) {
			continue
		}
		out[idx] = obj[k]
	}
	return out, nil
}

// ParseIndex converts a stored question-index key to an int.
// Float-looking keys such as "2.0" are accepted when integral.
func ParseIndex(key string) (int, bool) {
	key = strings.TrimSpace(key)
	if n, err := strconv.Atoi(key); err == nil {
		return n, n >= 0
	}
	f, err := strconv.ParseFloat(key, 64)
	if err != nil || f < 0 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func truthy(v json.RawMessage) bool {
	var x any
	if err := json.Unmarshal(v, &x); err != nil {
		return false
	}
	switch t := x.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}
