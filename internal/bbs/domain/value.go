package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies which variant a Value currently holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is the tagged variant every app-facing key/value payload moves as.
// The host never hands a sandboxed app or a Store implementation a bare
// `any`; it hands a Value, whose JSON codec at the storage boundary is the
// plain JSON the tag implies (a Value never has code attached).
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

func Null() Value                 { return Value{kind: KindNull} }
func String(s string) Value       { return Value{kind: KindString, str: s} }
func Number(n float64) Value      { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func List(items []Value) Value    { return Value{kind: KindList, list: items} }
func Map(fields map[string]Value) Value {
	return Value{kind: KindMap, m: fields}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// FromAny lifts a decoded-JSON `any` (as produced by encoding/json into an
// interface{}) into a Value. Unsupported types are rejected rather than
// silently dropped, since a Value is never partially formed.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, raw := range t {
			item, err := FromAny(raw)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return List(items), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, raw := range t {
			field, err := FromAny(raw)
			if err != nil {
				return Value{}, err
			}
			fields[k] = field
		}
		return Map(fields), nil
	default:
		return Value{}, fmt.Errorf("domain: unsupported value type %T", v)
	}
}

// ToAny lowers a Value back into a plain Go value, the inverse of FromAny.
func (v Value) ToAny() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, field := range v.m {
			out[k] = field.ToAny()
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ContainsCodeLike reports whether a string-typed value (recursively, for
// lists/maps) looks like injected executable code. It backs the
// CapabilityFacade.storage.set heuristic in §4.8: substrings "function",
// "=>", "eval", "new Function" are rejected.
func (v Value) ContainsCodeLike() bool {
	switch v.kind {
	case KindString:
		return looksLikeCode(v.str)
	case KindList:
		for _, item := range v.list {
			if item.ContainsCodeLike() {
				return true
			}
		}
		return false
	case KindMap:
		for _, field := range v.m {
			if field.ContainsCodeLike() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func looksLikeCode(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range []string{"function", "=>", "eval", "new function"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
